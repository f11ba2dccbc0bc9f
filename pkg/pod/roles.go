package pod

import (
	"fmt"
	"strings"

	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
)

// baseBehavior implements the shared parts of RoleBehavior; concrete role
// behaviors embed it and override only what differs, matching the spec's
// "single structure plus role behaviors, no deep inheritance" note (§9) —
// here expressed as composition over a small set of sibling structs rather
// than a class hierarchy.
type baseBehavior struct {
	role         tbworder.PodRole
	promptName   string
	toolNames    []tooldispatch.Name
	artifactType tbworder.ArtifactType
}

// SystemPrompt composes the base role prompt with the pool context
// summary, the dynamic objective, and quality-tier rules (§4.1 step 5).
// Prompt *wording* is out of scope (§1); this is the composition contract
// only — a real deployment substitutes the actual role prompt text.
func (b baseBehavior) SystemPrompt(spc SystemPromptContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s pod. Follow the task instructions precisely.\n", b.promptName)

	if spc.PoolContext != "" {
		sb.WriteString("\nAccumulated context from this pod's prior work:\n")
		sb.WriteString(spc.PoolContext)
		sb.WriteString("\n")
	}

	if spc.Objective != "" {
		fmt.Fprintf(&sb, "\nWork order objective: %s\n", spc.Objective)
	}

	sb.WriteString("\n" + qualityTierRules(spc.QualityTarget))

	return sb.String()
}

// qualityTierRules returns the rule text for a quality target, ordered
// from fastest/loosest to slowest/strictest (§3 quality target enum).
func qualityTierRules(target tbworder.QualityTarget) string {
	switch target {
	case tbworder.QualityDraft:
		return "Quality target: draft. Favor speed; rough edges and TODOs are acceptable."
	case tbworder.QualityPremium:
		return "Quality target: premium. Favor thoroughness: handle edge cases, add tests where relevant."
	case tbworder.QualityAppleLevel:
		return "Quality target: apple_level. Hold the highest bar: polish, consistency, and attention to detail take priority over speed."
	default:
		return "Quality target: standard. Balance speed and correctness."
	}
}

func (b baseBehavior) SpecializedTools() []modelclient.ToolDefinition {
	defs := make([]modelclient.ToolDefinition, 0, len(b.toolNames))
	for _, name := range b.toolNames {
		defs = append(defs, modelclient.ToolDefinition{Name: string(name)})
	}
	return defs
}

func (b baseBehavior) ProcessTaskOutput(task *tbworder.Task, text string) []ArtifactDraft {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []ArtifactDraft{{
		Name:        task.Name,
		Type:        b.artifactType,
		Description: task.Description,
		Content:     text,
	}}
}

var commonTools = []tooldispatch.Name{
	tooldispatch.FileRead, tooldispatch.FileWrite, tooldispatch.FileList,
	tooldispatch.ScanDirectory, tooldispatch.CodeSearch, tooldispatch.EditFile,
	tooldispatch.MemoryStore, tooldispatch.MemoryRecall, tooldispatch.SystemStatus,
	tooldispatch.RequestClarification,
}

// NewFrontendBehavior builds the Frontend role's behavior.
func NewFrontendBehavior() RoleBehavior {
	return baseBehavior{
		role:         tbworder.PodRoleFrontend,
		promptName:   "Frontend",
		toolNames:    append(append([]tooldispatch.Name{}, commonTools...), tooldispatch.ExecuteCode, tooldispatch.RunCommand),
		artifactType: tbworder.ArtifactFile,
	}
}

// NewBackendBehavior builds the Backend role's behavior.
func NewBackendBehavior() RoleBehavior {
	return baseBehavior{
		role:         tbworder.PodRoleBackend,
		promptName:   "Backend",
		toolNames:    append(append([]tooldispatch.Name{}, commonTools...), tooldispatch.ExecuteCode, tooldispatch.RunCommand, tooldispatch.Git),
		artifactType: tbworder.ArtifactCode,
	}
}

// NewQABehavior builds the QA role's behavior. QA pods see every artifact
// regardless of phase membership (§4.3.1) — enforced in VisibleArtifacts,
// not here.
func NewQABehavior() RoleBehavior {
	return baseBehavior{
		role:         tbworder.PodRoleQA,
		promptName:   "QA",
		toolNames:    append(append([]tooldispatch.Name{}, commonTools...), tooldispatch.ExecuteCode, tooldispatch.RunCommand),
		artifactType: tbworder.ArtifactDocument,
	}
}

// NewOrchestratorBehavior builds the Orchestrator role's behavior.
// Orchestrator-pod artifacts are visible across all phases (§4.3.1).
func NewOrchestratorBehavior() RoleBehavior {
	return baseBehavior{
		role:         tbworder.PodRoleOrchestrator,
		promptName:   "Orchestrator",
		toolNames:    append(append([]tooldispatch.Name{}, commonTools...), tooldispatch.WebSearch),
		artifactType: tbworder.ArtifactDocument,
	}
}

// NewDesignBehavior builds the Design role's behavior.
func NewDesignBehavior() RoleBehavior {
	return baseBehavior{
		role:         tbworder.PodRoleDesign,
		promptName:   "Design",
		toolNames:    append(append([]tooldispatch.Name{}, commonTools...), tooldispatch.GenerateImage),
		artifactType: tbworder.ArtifactDesign,
	}
}

// NewGeneralistBehavior builds the Generalist role's behavior, used when a
// task has no role-specific pod available.
func NewGeneralistBehavior() RoleBehavior {
	return baseBehavior{
		role:         tbworder.PodRoleGeneralist,
		promptName:   "Generalist",
		toolNames:    append(append([]tooldispatch.Name{}, commonTools...), tooldispatch.ExecuteCode, tooldispatch.RunCommand, tooldispatch.WebSearch),
		artifactType: tbworder.ArtifactFile,
	}
}

// BehaviorForRole resolves the default RoleBehavior for a role.
func BehaviorForRole(role tbworder.PodRole) RoleBehavior {
	switch role {
	case tbworder.PodRoleFrontend:
		return NewFrontendBehavior()
	case tbworder.PodRoleBackend:
		return NewBackendBehavior()
	case tbworder.PodRoleQA:
		return NewQABehavior()
	case tbworder.PodRoleOrchestrator:
		return NewOrchestratorBehavior()
	case tbworder.PodRoleDesign:
		return NewDesignBehavior()
	default:
		return NewGeneralistBehavior()
	}
}
