// Package storage implements the persisted-state layout (§6.6) and
// durable storage for WorkOrders: a Postgres-backed persistor grounded on
// the teacher's pkg/database/client.go (pgx-stdlib *sql.DB +
// golang-migrate) with the ent ORM dropped in favor of plain JSON columns,
// since the core's persistence surface is a single flat WorkOrder document
// rather than a relational schema (see DESIGN.md for the ent drop
// rationale).
package storage

import (
	"encoding/json"
	"time"

	"github.com/tbwo/engine/pkg/tbworder"
)

// workOrderDoc is the wire-level persisted shape of a WorkOrder (§6.6):
// Pods, ActivePods, PodStrategy.Dependencies, and Receipts.PodReceipts are
// flattened from their in-memory map/set representations into ordered
// pair lists, mirroring the spec's explicit persistence contract. On load
// these reconstitute into the live map/set-shaped WorkOrder.
type workOrderDoc struct {
	ID        string                  `json:"id"`
	Type      string                  `json:"type"`
	Status    tbworder.WorkOrderStatus `json:"status"`
	Objective string                  `json:"objective"`

	TimeBudget    tbworder.TimeBudget    `json:"timeBudget"`
	QualityTarget tbworder.QualityTarget `json:"qualityTarget"`
	Scope         tbworder.Scope         `json:"scope"`
	Authority     tbworder.Authority     `json:"authority"`

	Plan *planDoc `json:"plan"`

	Pods       []podPair `json:"pods"`
	ActivePods []string  `json:"activePods"`

	Artifacts     []*tbworder.Artifact     `json:"artifacts"`
	Checkpoints   []*tbworder.Checkpoint   `json:"checkpoints"`
	PauseRequests []*tbworder.PauseRequest `json:"pauseRequests"`
	ActivePauseID *string                  `json:"activePauseId"`

	Progress int `json:"progress"`

	Receipts *receiptsDoc `json:"receipts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ExecutionAttemptID *string `json:"executionAttemptId"`
}

type podPair struct {
	ID  string        `json:"id"`
	Pod *tbworder.Pod `json:"pod"`
}

type dependencyPair struct {
	Role tbworder.PodRole   `json:"role"`
	On   []tbworder.PodRole `json:"on"`
}

type planDoc struct {
	Phases           []*tbworder.Phase `json:"phases"`
	PodStrategy      podStrategyDoc    `json:"podStrategy"`
	RequiresApproval bool              `json:"requiresApproval"`
	ApprovedAt       *time.Time        `json:"approvedAt"`
}

type podStrategyDoc struct {
	Mode          tbworder.PodStrategyMode `json:"mode"`
	MaxConcurrent int                      `json:"maxConcurrent"`
	PriorityOrder []tbworder.PodRole       `json:"priorityOrder"`
	Dependencies  []dependencyPair         `json:"dependencies"`
}

type podReceiptPair struct {
	PodID   string                `json:"podId"`
	Receipt tbworder.PodReceipt `json:"receipt"`
}

type receiptsDoc struct {
	Executive   tbworder.ExecutiveSection    `json:"executive"`
	BuildStatus string                       `json:"buildStatus"`
	PodReceipts []podReceiptPair             `json:"podReceipts"`
	Performance tbworder.ResourceUsage       `json:"performanceTotals"`
	PauseEvents []tbworder.PauseEventSummary `json:"pauseEvents"`
	Rollback    tbworder.RollbackSection     `json:"rollback"`
}

// Marshal renders a WorkOrder into its persisted-layout JSON document.
func Marshal(wo *tbworder.WorkOrder) ([]byte, error) {
	return json.Marshal(toDoc(wo))
}

// Unmarshal parses a persisted-layout JSON document back into a WorkOrder.
// Per the spec's round-trip law, all transient per-execution state (which
// never appears in the document) is left zero/nil on the result.
func Unmarshal(data []byte) (*tbworder.WorkOrder, error) {
	var doc workOrderDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return fromDoc(&doc), nil
}

func toDoc(wo *tbworder.WorkOrder) *workOrderDoc {
	doc := &workOrderDoc{
		ID: wo.ID, Type: wo.Type, Status: wo.Status, Objective: wo.Objective,
		TimeBudget: wo.TimeBudget, QualityTarget: wo.QualityTarget, Scope: wo.Scope, Authority: wo.Authority,
		Artifacts: wo.Artifacts, Checkpoints: wo.Checkpoints, PauseRequests: wo.PauseRequests,
		ActivePauseID: wo.ActivePauseID, Progress: wo.Progress,
		CreatedAt: wo.CreatedAt, UpdatedAt: wo.UpdatedAt, ExecutionAttemptID: wo.ExecutionAttemptID,
	}

	for id := range wo.ActivePods {
		doc.ActivePods = append(doc.ActivePods, id)
	}
	for id, p := range wo.Pods {
		doc.Pods = append(doc.Pods, podPair{ID: id, Pod: p})
	}

	if wo.Plan != nil {
		var deps []dependencyPair
		for role, on := range wo.Plan.PodStrategy.Dependencies {
			deps = append(deps, dependencyPair{Role: role, On: on})
		}
		doc.Plan = &planDoc{
			Phases: wo.Plan.Phases,
			PodStrategy: podStrategyDoc{
				Mode: wo.Plan.PodStrategy.Mode, MaxConcurrent: wo.Plan.PodStrategy.MaxConcurrent,
				PriorityOrder: wo.Plan.PodStrategy.PriorityOrder, Dependencies: deps,
			},
			RequiresApproval: wo.Plan.RequiresApproval, ApprovedAt: wo.Plan.ApprovedAt,
		}
	}

	if wo.Receipts != nil {
		var pairs []podReceiptPair
		for _, pr := range wo.Receipts.Technical.PodReceipts {
			pairs = append(pairs, podReceiptPair{PodID: pr.PodID, Receipt: pr})
		}
		doc.Receipts = &receiptsDoc{
			Executive: wo.Receipts.Executive, BuildStatus: wo.Receipts.Technical.BuildStatus,
			PodReceipts: pairs, Performance: wo.Receipts.Technical.PerformanceTotals,
			PauseEvents: wo.Receipts.PauseEvents, Rollback: wo.Receipts.Rollback,
		}
	}

	return doc
}

func fromDoc(doc *workOrderDoc) *tbworder.WorkOrder {
	wo := &tbworder.WorkOrder{
		ID: doc.ID, Type: doc.Type, Status: doc.Status, Objective: doc.Objective,
		TimeBudget: doc.TimeBudget, QualityTarget: doc.QualityTarget, Scope: doc.Scope, Authority: doc.Authority,
		Pods: map[string]*tbworder.Pod{}, ActivePods: map[string]struct{}{},
		Artifacts: doc.Artifacts, Checkpoints: doc.Checkpoints, PauseRequests: doc.PauseRequests,
		ActivePauseID: doc.ActivePauseID, Progress: doc.Progress,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
		// ExecutionAttemptID and all per-execution in-memory state are
		// intentionally dropped on load (§8 round-trip law).
	}

	for _, pair := range doc.Pods {
		wo.Pods[pair.ID] = pair.Pod
	}
	for _, id := range doc.ActivePods {
		wo.ActivePods[id] = struct{}{}
	}

	if doc.Plan != nil {
		deps := map[tbworder.PodRole][]tbworder.PodRole{}
		for _, pair := range doc.Plan.PodStrategy.Dependencies {
			deps[pair.Role] = pair.On
		}
		wo.Plan = &tbworder.Plan{
			Phases: doc.Plan.Phases,
			PodStrategy: tbworder.PodStrategy{
				Mode: doc.Plan.PodStrategy.Mode, MaxConcurrent: doc.Plan.PodStrategy.MaxConcurrent,
				PriorityOrder: doc.Plan.PodStrategy.PriorityOrder, Dependencies: deps,
			},
			RequiresApproval: doc.Plan.RequiresApproval, ApprovedAt: doc.Plan.ApprovedAt,
		}
	}

	if doc.Receipts != nil {
		podReceipts := make([]tbworder.PodReceipt, 0, len(doc.Receipts.PodReceipts))
		for _, pair := range doc.Receipts.PodReceipts {
			podReceipts = append(podReceipts, pair.Receipt)
		}
		wo.Receipts = &tbworder.Receipts{
			Executive: doc.Receipts.Executive,
			Technical: tbworder.TechnicalSection{
				BuildStatus: doc.Receipts.BuildStatus, PodReceipts: podReceipts, PerformanceTotals: doc.Receipts.Performance,
			},
			PauseEvents: doc.Receipts.PauseEvents, Rollback: doc.Receipts.Rollback,
		}
	}

	return wo
}
