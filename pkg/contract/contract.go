// Package contract implements the Contract Service (C1, §4.7): it snapshots
// a WorkOrder's scope into an immutable Contract, validates tool/path
// actions against it, and accumulates a usage ledger. Grounded on the
// teacher's pkg/masking/service.go (a service wrapping mutable per-id
// state behind a mutex) and pkg/services/errors.go's sentinel style.
package contract

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbwo/engine/pkg/tbworder"
)

// Service manages the lifecycle of Contracts for in-flight WorkOrders.
type Service struct {
	mu        sync.Mutex
	contracts map[string]*tbworder.Contract
}

// NewService builds an empty Service.
func NewService() *Service {
	return &Service{contracts: map[string]*tbworder.Contract{}}
}

// CreateContract snapshots scope into a new, immutable-scope Contract in
// draft status.
func (s *Service) CreateContract(workOrderID string, scope tbworder.Scope, budgetTokens int, deadline time.Time, now time.Time) *tbworder.Contract {
	c := &tbworder.Contract{
		ID:           uuid.NewString(),
		WorkOrderID:  workOrderID,
		CreatedAt:    now,
		Scope:        scope,
		BudgetTokens: budgetTokens,
		Deadline:     deadline,
		Status:       tbworder.ContractDraft,
	}
	s.mu.Lock()
	s.contracts[c.ID] = c
	s.mu.Unlock()
	return c
}

// ActivateContract flips a draft Contract to active.
func (s *Service) ActivateContract(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("%w: contract %q", tbworder.ErrNotFound, id)
	}
	c.Status = tbworder.ContractActive
	return nil
}

// Action describes one candidate operation to validate against a Contract.
type Action struct {
	Tool      string
	Path      string
	Operation string
}

// ValidationResult is the allow/forbid/warn verdict for one Action.
type ValidationResult struct {
	Allowed    bool
	Violations []string
	Warnings   []string
}

// ValidateAction evaluates an Action against the Contract's scope. A
// contract already in `violated` status short-circuits to allowed=false
// for everything afterward (§4.7).
func (s *Service) ValidateAction(id string, action Action) (ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return ValidationResult{}, fmt.Errorf("%w: contract %q", tbworder.ErrNotFound, id)
	}

	if c.Status == tbworder.ContractViolated {
		return ValidationResult{Allowed: false, Violations: []string{"contract already violated"}}, nil
	}

	result := ValidationResult{Allowed: true}

	if action.Tool != "" {
		if toolForbidden(c.Scope, action.Tool) {
			result.Allowed = false
			result.Violations = append(result.Violations, fmt.Sprintf("tool %q is forbidden", action.Tool))
		} else if !toolAllowed(c.Scope, action.Tool) {
			result.Allowed = false
			result.Violations = append(result.Violations, fmt.Sprintf("tool %q is not in the allowed list", action.Tool))
		}
	}

	if action.Path != "" {
		if pathForbidden(c.Scope, action.Path) {
			result.Allowed = false
			result.Violations = append(result.Violations, fmt.Sprintf("path %q is forbidden", action.Path))
		} else if !pathAllowed(c.Scope, action.Path) {
			result.Allowed = false
			result.Violations = append(result.Violations, fmt.Sprintf("path %q is not in the allowed list", action.Path))
		}
	}

	if !result.Allowed {
		c.Status = tbworder.ContractViolated
	}

	return result, nil
}

func toolAllowed(scope tbworder.Scope, tool string) bool {
	if len(scope.AllowedTools) == 0 {
		return true // empty allow-list == "*" wildcard
	}
	for _, t := range scope.AllowedTools {
		if t == "*" || t == tool {
			return true
		}
	}
	return false
}

func toolForbidden(scope tbworder.Scope, tool string) bool {
	for _, t := range scope.ForbiddenTools {
		if t == tool {
			return true
		}
	}
	return false
}

func pathAllowed(scope tbworder.Scope, p string) bool {
	if len(scope.AllowedPaths) == 0 {
		return true
	}
	for _, prefix := range scope.AllowedPaths {
		if prefix == "*" || strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func pathForbidden(scope tbworder.Scope, p string) bool {
	for _, prefix := range scope.ForbiddenPaths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// CheckTimeBudget reports whether `now` is still before the Contract's
// wall-clock deadline (true while within budget, false once it has elapsed).
func (s *Service) CheckTimeBudget(id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return false, fmt.Errorf("%w: contract %q", tbworder.ErrNotFound, id)
	}
	return now.Before(c.Deadline), nil
}

// RecordUsage accumulates token/cost usage into the Contract's ledger.
func (s *Service) RecordUsage(id string, tokens int, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("%w: contract %q", tbworder.ErrNotFound, id)
	}
	c.Usage.TokensUsed += tokens
	c.Usage.EstimatedCost += cost
	return nil
}

// FulfillContract transitions a Contract to fulfilled, freezing its ledger.
// Called unconditionally on both the completion and the failure paths so
// timers stop regardless of outcome (§4.1.1).
func (s *Service) FulfillContract(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("%w: contract %q", tbworder.ErrNotFound, id)
	}
	if c.Status != tbworder.ContractViolated {
		c.Status = tbworder.ContractFulfilled
	}
	return nil
}

// Get returns the Contract by id, for read-only inspection (e.g. receipts).
func (s *Service) Get(id string) (*tbworder.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contract %q", tbworder.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}
