// Package planner implements the Planner Service: prompt construction,
// rate-limited LLM calls, schema validation, normalization, feasibility
// guarding, and a bounded feasibility-reprompt loop, falling back to the
// deterministic Fallback Planner on any error.
package planner

import (
	"fmt"

	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// Request is the schema-validated input to Plan: {bot_id, snapshot,
// history, available_subgoals}.
type Request struct {
	BotID             string
	Snapshot          worldstate.Snapshot
	History           []worldstate.HistoryEntry
	AvailableSubgoals []subgoal.Name
}

// Response is the planner's output shape: {next_goal, subgoals, risk_flags?,
// constraints?}.
type Response struct {
	NextGoal    string                 `json:"next_goal"`
	Subgoals    []subgoal.Subgoal      `json:"subgoals"`
	RiskFlags   []string               `json:"risk_flags,omitempty"`
	Constraints map[string]interface{} `json:"constraints,omitempty"`
}

// ErrSchema is raised when a request or a parsed LLM response fails schema
// validation; fatal at the boundary, never retried as-is.
var ErrSchema = fmt.Errorf("planner: schema validation failed")

// validateRequest enforces the closed-set rule: every available subgoal
// name and bot id must be well-formed before a request may proceed.
func validateRequest(req Request) error {
	if req.BotID == "" {
		return fmt.Errorf("%w: empty bot_id", ErrSchema)
	}
	for _, n := range req.AvailableSubgoals {
		if !subgoal.Valid(n) {
			return fmt.Errorf("%w: unknown available subgoal name %q", ErrSchema, n)
		}
	}
	return nil
}

// validateResponse rejects unknown subgoal names: these fail validation
// rather than being passed through to execution.
func validateResponse(resp Response) error {
	for i, sg := range resp.Subgoals {
		if !subgoal.Valid(sg.Name) {
			return fmt.Errorf("%w: response subgoal %d has unknown name %q", ErrSchema, i, sg.Name)
		}
	}
	return nil
}
