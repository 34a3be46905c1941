// Package adapter defines the two external collaborator interfaces the
// control core consumes: the Agent Adapter (game-client capability set) and
// the LLM Client. Both are narrow capability interfaces; the core never
// pattern-matches on library-specific object shapes underneath them.
package adapter

import (
	"context"

	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// ConnectionEvent is one of the adapter's lifecycle notifications.
type ConnectionEvent string

const (
	EventSpawn ConnectionEvent = "spawn"
	EventError ConnectionEvent = "error"
	EventKick  ConnectionEvent = "kick"
	EventEnd   ConnectionEvent = "end"
	EventDeath ConnectionEvent = "death"
	EventHurt  ConnectionEvent = "hurt_self"
)

// BlockPredicate selects blocks during a scan. Implementations are supplied
// by callers (e.g. "named X" or "any ore").
type BlockPredicate func(blockName string) bool

// BlockSighting is one scan result: a named block at a distance/position.
type BlockSighting struct {
	Name     string
	Distance float64
	Position worldstate.Position
}

// EntityState is the adapter's live, mutable view of the controlled
// entity and its surroundings, from which the Snapshot Builder derives an
// immutable Snapshot.
type EntityState struct {
	Position     worldstate.Position
	Dimension    string
	Health       float64
	Hunger       float64
	Effects      []string
	TimeOfDay    int64
	Inventory    map[string]int
	EmptySlots   int
	NearbyHostiles []BlockSighting
	NearbyPOI      []BlockSighting
}

// ControlState names a togglable control the adapter tracks (forward,
// jump, sneak, etc.), cleared en masse between subgoal executions.
type ControlState string

// Agent is the capability interface the Control Core consumes in place of a
// concrete game-client handle (spec.md §6). Every call is context-bound so
// the caller can enforce the execution/planner timeouts from §5.
type Agent interface {
	// Events returns a channel of connection lifecycle events. The channel
	// is closed when the adapter is torn down.
	Events() <-chan ConnectionEvent

	// State returns the current entity state snapshot source.
	State(ctx context.Context) (EntityState, error)

	// FindBlocks is the single predicate-based scan entry point (Open
	// Question #1): the Snapshot Builder and Feasibility Guard call only
	// this, never a name-only variant, eliminating the divergent
	// findBlock/findBlocks code paths spec.md's source exhibited.
	FindBlocks(ctx context.Context, pred BlockPredicate, limit int) ([]BlockSighting, error)

	// FindNearestBlock is a convenience wrapper built on FindBlocks,
	// matching blocks by exact name.
	FindNearestBlock(ctx context.Context, name string) (BlockSighting, bool, error)

	// PathfindTo moves the entity to a coordinate within range units.
	PathfindTo(ctx context.Context, pos worldstate.Position, rangeUnits int) error

	// LookAt orients the entity toward a position.
	LookAt(ctx context.Context, pos worldstate.Position) error

	// SetControlState toggles a named control on or off.
	SetControlState(ctx context.Context, state ControlState, active bool) error

	// ClearControls resets all control states and cancels any in-progress
	// pathfinding, combat, or collection activity. Best effort.
	ClearControls(ctx context.Context) error

	// Dig breaks the block at pos.
	Dig(ctx context.Context, pos worldstate.Position) error

	// PlaceBlock places heldItem at pos.
	PlaceBlock(ctx context.Context, pos worldstate.Position, heldItem string) error

	// Equip selects item into the active hand/slot.
	Equip(ctx context.Context, item string) error

	// OpenContainer opens the container at pos (chest, furnace, etc.).
	OpenContainer(ctx context.Context, pos worldstate.Position) error

	// CraftRecipe crafts count units of item, using a nearby table if
	// tableRequired.
	CraftRecipe(ctx context.Context, item string, count int, tableRequired bool) error

	// Chat sends a chat message.
	Chat(ctx context.Context, message string) error

	// Quit disconnects the agent cleanly.
	Quit(ctx context.Context) error

	// Combat optionally exposes a pvp plugin; nil if unsupported.
	Combat() CombatPlugin
}

// CombatPlugin is an optional capability for engaging/guarding against
// hostiles.
type CombatPlugin interface {
	Engage(ctx context.Context, maxTargets int, maxDistance float64) error
	Guard(ctx context.Context, radius float64, durationMs int64) error
	Stop(ctx context.Context) error
}

// LLMClient is the interface consumed by the Planner Service to request a
// plan. It fails with a single error kind when the call cannot produce
// text; retries/backoff are the caller's responsibility.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, timeoutMs int64) (Completion, error)
}

// Completion is the LLM Client's response: text plus optional token usage.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}
