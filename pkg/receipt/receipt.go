// Package receipt implements the Receipt Generator (R1, §4.8): a per-pod,
// executive, pause-history, and rollback summary assembled once a WorkOrder
// reaches a terminal status. Grounded on the teacher's
// pkg/queue/executor_synthesis.go (generateExecutiveSummary's fail-open
// single-LLM-call-with-deterministic-fallback shape) and
// pkg/services/timeline_service.go's aggregation style.
package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/podpool"
	"github.com/tbwo/engine/pkg/tbworder"
)

// QualityScoreThreshold is the minimum computed quality score that counts
// the build as a success rather than a partial (§4.8).
const QualityScoreThreshold = 70.0

// Generator assembles a Receipt for a terminated WorkOrder.
type Generator struct {
	Model modelclient.Client
	Pool  *podpool.Pool
	log   *slog.Logger
}

// New builds a Generator. Model may be nil, in which case the executive
// summary is always the deterministic fallback.
func New(model modelclient.Client, pool *podpool.Pool) *Generator {
	return &Generator{Model: model, Pool: pool, log: slog.With("component", "receipt")}
}

// Generate produces the four-section Receipt for wo. success indicates
// whether the caller reached this point via the completion path (vs.
// failure); it only affects the executive summary wording, since the
// technical buildStatus is computed from the quality score regardless.
func (g *Generator) Generate(ctx context.Context, wo *tbworder.WorkOrder, success bool) *tbworder.Receipts {
	accomplishments, unfinished := g.accomplishmentsAndUnfinished(wo)
	filesCreated, totalLines := fileStats(wo)
	tokenTotal := totalTokens(wo)
	qualityScore := g.computeQualityScore(wo)

	summary := g.executiveSummary(ctx, wo, accomplishments, unfinished, success)

	exec := tbworder.ExecutiveSection{
		Summary:         summary,
		Accomplishments: accomplishments,
		UnfinishedItems: unfinished,
		FilesCreated:    filesCreated,
		TotalLines:      totalLines,
		TokenTotal:      tokenTotal,
		QualityScore:    qualityScore,
	}

	buildStatus := "partial"
	if qualityScore >= QualityScoreThreshold {
		buildStatus = "success"
	}

	tech := tbworder.TechnicalSection{
		BuildStatus:       buildStatus,
		PodReceipts:       g.podReceipts(wo),
		PerformanceTotals: performanceTotals(wo),
	}

	return &tbworder.Receipts{
		Executive:   exec,
		Technical:   tech,
		PauseEvents: pauseEventSummaries(wo),
		Rollback:    rollbackSection(wo),
	}
}

// accomplishmentsAndUnfinished walks every phase/task: a completed task is
// an accomplishment ("<phase>: <task>"); a phase that never started, or a
// task left pending/failed, is unfinished.
func (g *Generator) accomplishmentsAndUnfinished(wo *tbworder.WorkOrder) ([]string, []string) {
	var accomplishments, unfinished []string
	if wo.Plan == nil {
		return accomplishments, unfinished
	}
	for _, phase := range wo.Plan.Phases {
		if phase.Status == tbworder.PhaseStatusPending {
			unfinished = append(unfinished, fmt.Sprintf("phase %q was never started", phase.Name))
			continue
		}
		for _, t := range phase.Tasks {
			label := fmt.Sprintf("%s: %s", phase.Name, t.Name)
			switch t.Status {
			case tbworder.TaskStatusComplete:
				accomplishments = append(accomplishments, label)
			case tbworder.TaskStatusFailed:
				unfinished = append(unfinished, label+" (failed)")
			case tbworder.TaskStatusPending, tbworder.TaskStatusInProgress:
				unfinished = append(unfinished, label+" (not reached)")
			}
		}
	}
	return accomplishments, unfinished
}

// fileStats counts file- and code-typed artifacts with string content and sums their
// line counts (§4.8 executive.filesCreated / totalLines).
func fileStats(wo *tbworder.WorkOrder) (filesCreated, totalLines int) {
	for _, a := range wo.Artifacts {
		if a.Type != tbworder.ArtifactFile && a.Type != tbworder.ArtifactCode {
			continue
		}
		if a.Content == "" {
			continue
		}
		filesCreated++
		totalLines += strings.Count(a.Content, "\n") + 1
	}
	return filesCreated, totalLines
}

func totalTokens(wo *tbworder.WorkOrder) int {
	total := 0
	for _, p := range wo.Pods {
		total += p.ResourceUsage.TokensUsed
	}
	return total
}

// computeQualityScore is a deterministic heuristic: the share of tasks
// completed (vs. completed+failed) scaled to 0-100, with a penalty for
// phases left wholly unstarted. A WorkOrder with no tasks at all scores 100
// (nothing to fail).
func (g *Generator) computeQualityScore(wo *tbworder.WorkOrder) float64 {
	if wo.Plan == nil || len(wo.Plan.Phases) == 0 {
		return 100
	}
	completed, failed, unstarted := 0, 0, 0
	for _, phase := range wo.Plan.Phases {
		if phase.Status == tbworder.PhaseStatusPending {
			unstarted++
		}
		for _, t := range phase.Tasks {
			switch t.Status {
			case tbworder.TaskStatusComplete:
				completed++
			case tbworder.TaskStatusFailed:
				failed++
			}
		}
	}
	settled := completed + failed
	if settled == 0 {
		return 100
	}
	score := float64(completed) / float64(settled) * 100
	if unstarted > 0 {
		penalty := float64(unstarted) / float64(len(wo.Plan.Phases)) * 20
		score -= penalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

// podReceipts builds the per-pod technical section from each pod's
// per-work-order state in wo.Pods; the pool's cross-work-order stats are
// not read.
func (g *Generator) podReceipts(wo *tbworder.WorkOrder) []tbworder.PodReceipt {
	ids := make([]string, 0, len(wo.Pods))
	for id := range wo.Pods {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]tbworder.PodReceipt, 0, len(ids))
	for _, id := range ids {
		p := wo.Pods[id]
		completed, failed := 0, 0
		for range p.CompletedTasks {
			completed++
		}
		// Failures aren't tracked on the Pod directly; derive from health.
		failed = p.Health.ErrorCount
		total := completed + failed
		successRate := 1.0
		if total > 0 {
			successRate = float64(completed) / float64(total)
		}
		out = append(out, tbworder.PodReceipt{
			PodID:          p.ID,
			Role:           p.Role,
			TasksCompleted: completed,
			TasksFailed:    failed,
			Tokens:         p.ResourceUsage.TokensUsed,
			TimeUsedMin:    p.ResourceUsage.ExecutionTime.Minutes(),
			SuccessRate:    successRate,
			Warnings:       append([]string(nil), p.Health.Warnings...),
		})
	}
	return out
}

func performanceTotals(wo *tbworder.WorkOrder) tbworder.ResourceUsage {
	var total tbworder.ResourceUsage
	for _, p := range wo.Pods {
		total.CPUPercent += p.ResourceUsage.CPUPercent
		total.MemoryMB += p.ResourceUsage.MemoryMB
		total.TokensUsed += p.ResourceUsage.TokensUsed
		total.APICalls += p.ResourceUsage.APICalls
		total.ExecutionTime += p.ResourceUsage.ExecutionTime
	}
	return total
}

// pauseEventSummaries condenses resolved PauseRequests into their
// question/resolution/duration triple (§4.8 pauseEvents).
func pauseEventSummaries(wo *tbworder.WorkOrder) []tbworder.PauseEventSummary {
	var out []tbworder.PauseEventSummary
	for _, pr := range wo.PauseRequests {
		if pr.ResolvedAt == nil {
			continue
		}
		resolution := pr.UserResponse
		if resolution == "" {
			resolution = pr.InferredValues
		}
		out = append(out, tbworder.PauseEventSummary{
			PauseRequestID: pr.ID,
			Question:       pr.Question,
			Resolution:     resolution,
			Duration:       pr.ResolvedAt.Sub(pr.CreatedAt),
		})
	}
	return out
}

// rollbackSection builds the per-artifact undo map in creation order
// (§4.8). canRollback is false only if no file artifacts exist.
func rollbackSection(wo *tbworder.WorkOrder) tbworder.RollbackSection {
	var entries []tbworder.RollbackEntry
	for _, a := range wo.Artifacts {
		if a.Path == "" {
			continue
		}
		action := "delete"
		if a.PreviousVersion != nil {
			action = "revert"
		}
		entries = append(entries, tbworder.RollbackEntry{
			Order:  len(entries) + 1,
			Path:   a.Path,
			Action: action,
		})
	}
	return tbworder.RollbackSection{
		Entries:     entries,
		CanRollback: len(entries) > 0,
		Limitations: []string{"external side effects cannot be undone"},
	}
}

// executiveSummary attempts a single AI-drafted summary call and falls back
// to a deterministic one built from the ledger on any failure (§4.8).
func (g *Generator) executiveSummary(ctx context.Context, wo *tbworder.WorkOrder, accomplishments, unfinished []string, success bool) string {
	if g.Model != nil {
		if s, err := g.draftExecutiveSummary(ctx, wo, accomplishments, unfinished); err == nil && s != "" {
			return s
		} else if err != nil {
			g.log.Warn("AI-drafted executive summary failed; using deterministic fallback", "work_order_id", wo.ID, "error", err)
		}
	}
	return deterministicSummary(wo, accomplishments, unfinished, success)
}

func (g *Generator) draftExecutiveSummary(ctx context.Context, wo *tbworder.WorkOrder, accomplishments, unfinished []string) (string, error) {
	prompt := fmt.Sprintf(
		"Objective: %s\nCompleted:\n- %s\nUnfinished:\n- %s\nWrite a 2-3 sentence executive summary.",
		wo.Objective, strings.Join(accomplishments, "\n- "), strings.Join(unfinished, "\n- "),
	)
	ch, err := g.Model.Generate(ctx, modelclient.GenerateInput{
		SessionID: "receipt-" + wo.ID,
		Messages: []modelclient.ConversationMessage{
			{Role: modelclient.RoleSystem, Content: "Summarize the execution for a stakeholder in 2-3 sentences."},
			{Role: modelclient.RoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   256,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", tbworder.ErrModelFailure, err)
	}
	var out strings.Builder
	for chunk := range ch {
		switch c := chunk.(type) {
		case modelclient.TextChunk:
			out.WriteString(c.Text)
		case modelclient.ErrorChunk:
			return "", fmt.Errorf("%w: %v", tbworder.ErrModelFailure, c.Err)
		}
	}
	return out.String(), nil
}

func deterministicSummary(wo *tbworder.WorkOrder, accomplishments, unfinished []string, success bool) string {
	if success {
		return fmt.Sprintf("Work order %q completed with %d task(s) accomplished and %d unfinished item(s).", wo.Objective, len(accomplishments), len(unfinished))
	}
	return fmt.Sprintf("Work order %q ended early with %d task(s) accomplished and %d unfinished item(s).", wo.Objective, len(accomplishments), len(unfinished))
}
