package pod

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tbwo/engine/pkg/tbworder"
)

// buildTaskPrompt composes the per-task prompt per §4.3 step 3: base task
// framing, an artifact context slice (§4.3.1), drained inbox messages, and
// a recent-error summary. Prompt *wording* is a placeholder — only the
// composition contract is specified (§1 Non-goals).
func (p *Pod) buildTaskPrompt(in TaskExecutionInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", in.Task.Name)
	fmt.Fprintf(&b, "Description: %s\n", in.Task.Description)
	fmt.Fprintf(&b, "Objective: %s\n", in.Objective)
	fmt.Fprintf(&b, "Quality target: %s\n", in.QualityTarget)
	fmt.Fprintf(&b, "Time remaining: %.1f minutes\n", in.TimeRemainingMin)
	if in.TimeRemainingMin < 5 {
		b.WriteString("BUDGET WARNING: very little time remains; prioritize finishing over polish.\n")
	}

	slice := BuildArtifactContextSlice(in.ArtifactContext, p.State.Role)
	if slice != "" {
		b.WriteString("\nContext from prior artifacts:\n")
		b.WriteString(slice)
		b.WriteString("\n")
	}

	inboxMsgs := p.Deps.Bus.Drain(p.State.ID, MaxInboxMessagesInjected)
	if len(inboxMsgs) > 0 {
		b.WriteString("\nRecent messages:\n")
		for _, m := range inboxMsgs {
			fmt.Fprintf(&b, "- [%s] from %s\n", m.Type, m.From)
		}
	}

	if len(in.RecentErrors) > 0 {
		b.WriteString("\nRecent errors (warnings):\n")
		n := len(in.RecentErrors)
		start := 0
		if n > MaxRecentErrorsInjected {
			start = n - MaxRecentErrorsInjected
		}
		for _, e := range in.RecentErrors[start:] {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	return b.String()
}

// BuildArtifactContextSlice implements §4.3.1: an artifact is visible if it
// was produced in the same phase, the previous phase, or by an
// orchestrator pod across all phases; a QA-role pod sees every artifact.
// Sorted newest-first, truncated at MaxArtifactContextBytes with a
// "(... N more artifacts omitted)" marker.
//
// Phase-membership filtering is the caller's responsibility (the engine
// passes in only the candidate set visible per those rules); this function
// performs the sort/truncate half of §4.3.1 that is role-independent except
// for the QA "sees everything" carve-out, which the caller also applies by
// passing the full candidate set when role == qa.
func BuildArtifactContextSlice(artifacts []tbworder.Artifact, role tbworder.PodRole) string {
	if len(artifacts) == 0 {
		return ""
	}

	sorted := append([]tbworder.Artifact(nil), artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var b strings.Builder
	shown := 0
	for _, a := range sorted {
		entry := fmt.Sprintf("--- %s (v%d, %s) ---\n%s\n", a.Name, a.Version, a.Type, a.Content)
		if b.Len()+len(entry) > MaxArtifactContextBytes {
			break
		}
		b.WriteString(entry)
		shown++
	}

	if shown < len(sorted) {
		fmt.Fprintf(&b, "(... %d more artifacts omitted)\n", len(sorted)-shown)
	}

	return b.String()
}

// VisibleArtifacts implements the phase-membership half of §4.3.1: which
// artifacts a pod of the given role may see from the full artifact table,
// given the pod ids of its own phase, of the previous phase, and of the
// orchestrator pods. A QA-role pod sees every artifact.
func VisibleArtifacts(
	all []*tbworder.Artifact,
	role tbworder.PodRole,
	samePhasePodIDs map[string]struct{},
	previousPhasePodIDs map[string]struct{},
	orchestratorPodIDs map[string]struct{},
) []tbworder.Artifact {
	if role == tbworder.PodRoleQA {
		out := make([]tbworder.Artifact, len(all))
		for i, a := range all {
			out[i] = *a
		}
		return out
	}

	var out []tbworder.Artifact
	for _, a := range all {
		if _, ok := samePhasePodIDs[a.CreatedBy]; ok {
			out = append(out, *a)
			continue
		}
		if _, ok := previousPhasePodIDs[a.CreatedBy]; ok {
			out = append(out, *a)
			continue
		}
		if _, ok := orchestratorPodIDs[a.CreatedBy]; ok {
			out = append(out, *a)
			continue
		}
	}
	return out
}
