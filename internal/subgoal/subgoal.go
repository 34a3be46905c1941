// Package subgoal defines the canonical task unit the planner, guard, and
// skill engine all exchange: Subgoal, its runtime-queued form, and the
// tagged-union result a skill handler returns.
package subgoal

import "github.com/google/uuid"

// Name identifies a subgoal kind. The set is closed; unrecognized names are
// rejected at the planner-response validation boundary.
type Name string

const (
	Explore       Name = "explore"
	Goto          Name = "goto"
	GotoNearest   Name = "goto_nearest"
	Collect       Name = "collect"
	Craft         Name = "craft"
	Smelt         Name = "smelt"
	Deposit       Name = "deposit"
	Withdraw      Name = "withdraw"
	BuildBlueprint Name = "build_blueprint"
	CombatEngage  Name = "combat_engage"
	CombatGuard   Name = "combat_guard"
)

// Names is the closed set of valid subgoal names, SUBGOAL_NAMES in the data
// model.
var Names = map[Name]bool{
	Explore:        true,
	Goto:           true,
	GotoNearest:    true,
	Collect:        true,
	Craft:          true,
	Smelt:          true,
	Deposit:        true,
	Withdraw:       true,
	BuildBlueprint: true,
	CombatEngage:   true,
	CombatGuard:    true,
}

// Valid reports whether n is a member of the closed subgoal name set.
func Valid(n Name) bool { return Names[n] }

// Subgoal is the canonical task description produced by the planner (after
// normalization and guarding) or synthesized deterministically by the
// fallback planner and feasibility guard.
type Subgoal struct {
	Name            Name                   `json:"name"`
	Params          map[string]interface{} `json:"params"`
	SuccessCriteria map[string]interface{} `json:"success_criteria,omitempty"`
	RiskFlags       []string               `json:"risk_flags,omitempty"`
	Constraints     map[string]interface{} `json:"constraints,omitempty"`
}

// Equal reports canonical equality used by guard/normalizer idempotence and
// adjacent-dedup checks: same name and deep-equal params/success_criteria.
// Risk flags and constraints are not part of the identity comparison used
// for dedup, matching the "same name, params, success_criteria" rule.
func (s Subgoal) Equal(o Subgoal) bool {
	if s.Name != o.Name {
		return false
	}
	return mapsEqual(s.Params, o.Params) && mapsEqual(s.SuccessCriteria, o.SuccessCriteria)
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

func valueEqual(a, b interface{}) bool {
	am, aIsMap := a.(map[string]interface{})
	bm, bIsMap := b.(map[string]interface{})
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap {
			return false
		}
		return mapsEqual(am, bm)
	}
	return a == b
}

// Clone returns a deep copy so a Subgoal can be safely mutated by the guard
// without aliasing the caller's copy.
func (s Subgoal) Clone() Subgoal {
	out := Subgoal{Name: s.Name}
	out.Params = cloneMap(s.Params)
	out.SuccessCriteria = cloneMap(s.SuccessCriteria)
	if s.RiskFlags != nil {
		out.RiskFlags = append([]string(nil), s.RiskFlags...)
	}
	out.Constraints = cloneMap(s.Constraints)
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// RuntimeSubgoal extends Subgoal with queue bookkeeping. A retry produces a
// new RuntimeSubgoal with a fresh ID, per the data model.
type RuntimeSubgoal struct {
	Subgoal
	ID          string `json:"id"`
	AssignedAt  int64  `json:"assigned_at"`
	RetryCount  int    `json:"retry_count"`
	NotBeforeMs int64  `json:"not_before_ms"`
}

// NewRuntime wraps a Subgoal into a fresh RuntimeSubgoal, assigning a new id
// and assignment timestamp.
func NewRuntime(s Subgoal, nowMs int64) RuntimeSubgoal {
	return RuntimeSubgoal{
		Subgoal:    s,
		ID:         uuid.NewString(),
		AssignedAt: nowMs,
	}
}

// Retry produces the requeued form of this subgoal: a new id, incremented
// retry count, and a not-before deadline, per §4.9's retry requeue rule.
func (r RuntimeSubgoal) Retry(nowMs int64, notBeforeMs int64) RuntimeSubgoal {
	return RuntimeSubgoal{
		Subgoal:     r.Subgoal,
		ID:          uuid.NewString(),
		AssignedAt:  nowMs,
		RetryCount:  r.RetryCount + 1,
		NotBeforeMs: notBeforeMs,
	}
}

// FailureCode is a member of the closed FailureCodes set a skill handler may
// report.
type FailureCode string

const (
	ResourceNotFound    FailureCode = "RESOURCE_NOT_FOUND"
	PathfindFailed      FailureCode = "PATHFIND_FAILED"
	NoToolAvailable     FailureCode = "NO_TOOL_AVAILABLE"
	InventoryFull       FailureCode = "INVENTORY_FULL"
	InterruptedByHostiles FailureCode = "INTERRUPTED_BY_HOSTILES"
	PlacementFailed     FailureCode = "PLACEMENT_FAILED"
	StuckTimeout        FailureCode = "STUCK_TIMEOUT"
	DependsOnItem       FailureCode = "DEPENDS_ON_ITEM"
	CombatLostTarget    FailureCode = "COMBAT_LOST_TARGET"
	BotDied             FailureCode = "BOT_DIED"
)

// retryableCodes returns true for codes that can_retry_failure(code) allows,
// per §4.9's retryability table.
var retryableCodes = map[FailureCode]bool{
	ResourceNotFound:      true,
	PathfindFailed:        true,
	InterruptedByHostiles: true,
	StuckTimeout:          true,
	InventoryFull:         true,
	CombatLostTarget:      true,
	PlacementFailed:       true,
	DependsOnItem:         false,
	NoToolAvailable:       false,
	BotDied:               false,
}

// CanRetryFailure reports whether the controller's retry machinery may ever
// retry this failure code, independent of the handler's own retryable flag.
func CanRetryFailure(code FailureCode) bool {
	return retryableCodes[code]
}

// extraRetries returns the additional retry budget §4.9 grants certain
// failure codes, added to the base subgoal_retry_limit.
var extraRetries = map[FailureCode]int{
	PathfindFailed:        4,
	ResourceNotFound:      4,
	InterruptedByHostiles: 3,
	CombatLostTarget:      3,
	StuckTimeout:          2,
	PlacementFailed:       2,
}

// RetryLimitFor returns base + the per-code bonus from §4.9.
func RetryLimitFor(code FailureCode, base int) int {
	return base + extraRetries[code]
}

// Outcome distinguishes the two SkillResult variants.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// SkillResult is the tagged-union result of executing a Subgoal. Exactly one
// of the Success or Failure fields is meaningful, selected by Outcome; this
// mirrors the sum type required by §3/§9 rather than a struct of optionals.
type SkillResult struct {
	Outcome Outcome `json:"outcome"`

	// Success fields.
	Details map[string]interface{} `json:"details,omitempty"`
	Metrics map[string]interface{} `json:"metrics,omitempty"`

	// Failure fields.
	ErrorCode    FailureCode `json:"error_code,omitempty"`
	ErrorDetails string      `json:"error_details,omitempty"`
	Retryable    bool        `json:"retryable,omitempty"`
}

// Success constructs a successful SkillResult.
func Success(details, metrics map[string]interface{}) SkillResult {
	return SkillResult{Outcome: OutcomeSuccess, Details: details, Metrics: metrics}
}

// Failure constructs a failed SkillResult.
func Failure(code FailureCode, details string, retryable bool) SkillResult {
	return SkillResult{
		Outcome:      OutcomeFailure,
		ErrorCode:    code,
		ErrorDetails: details,
		Retryable:    retryable,
	}
}

// IsSuccess reports whether this result is the Success variant.
func (r SkillResult) IsSuccess() bool { return r.Outcome == OutcomeSuccess }
