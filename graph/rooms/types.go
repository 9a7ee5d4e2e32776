package rooms

import (
	"encoding/json"
	"time"
)

// mutation event type constants
const (
	EventEntityCreate       = "entity-create"
	EventEntityUpdate       = "entity-update"
	EventEntityDelete       = "entity-delete"
	EventRelationCreate     = "relation-create"
	EventRelationUpdate     = "relation-update"
	EventRelationDelete     = "relation-delete"
	EventRelationLinkCreate = "relation-link-create"
)

// the only resolution strategy currently implemented; modeled as a field
// on ConflictResolution so future strategies can coexist
const StrategyLastWriteWins = "last-write-wins"

// default limits for per-room soft state
const (
	DefaultConflictWindow       = 5000 * time.Millisecond
	DefaultMaxEventHistory      = 1000
	DefaultMaxConflictHistory   = 100
	DefaultPresenceStaleTimeout = 5 * time.Minute
)

// IsMutationType reports whether t is one of the seven data mutation kinds.
func IsMutationType(t string) bool {
	switch t {
	case EventEntityCreate, EventEntityUpdate, EventEntityDelete,
		EventRelationCreate, EventRelationUpdate, EventRelationDelete,
		EventRelationLinkCreate:
		return true
	}

	return false
}

// tunable limits for a room; zero values fall back to the defaults
type Options struct {
	ConflictWindow       time.Duration
	MaxEventHistory      int
	MaxConflictHistory   int
	PresenceStaleTimeout time.Duration
}

// returns the limits from spec defaults
func DefaultOptions() Options {
	return Options{
		ConflictWindow:       DefaultConflictWindow,
		MaxEventHistory:      DefaultMaxEventHistory,
		MaxConflictHistory:   DefaultMaxConflictHistory,
		PresenceStaleTimeout: DefaultPresenceStaleTimeout,
	}
}

// one connected user visible to the room; at most one per connection id.
// Address is bound once (first value wins) and never overwritten.
type PresenceRecord struct {
	ConnectionID string `json:"id"`
	Address      string `json:"address"`
	LastSeen     int64  `json:"lastSeen"` // unix milliseconds
}

// one data mutation; immutable once appended to the event log.
// Data is a string-keyed map of raw JSON values with one mandatory
// target identifier under "nodeId", validated at the router boundary.
type MutationEvent struct {
	Type          string                     `json:"type"`
	EventID       string                     `json:"eventId"`
	Timestamp     int64                      `json:"timestamp"` // unix milliseconds, client-supplied
	EditorAddress string                     `json:"editorAddress,omitempty"`
	Data          map[string]json.RawMessage `json:"data"`
}

// TargetID returns the mandatory target identifier from the event payload,
// or "" when absent or not a string.
func (e *MutationEvent) TargetID() string {
	raw, ok := e.Data["nodeId"]
	if !ok {
		return ""
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}

	return id
}

// records the outcome of one detected conflict
type ConflictResolution struct {
	WinningEventID string `json:"winningEventId"`
	LosingEventID  string `json:"losingEventId"`
	Strategy       string `json:"strategy"`
	ResolvedAt     int64  `json:"resolvedAt"` // unix milliseconds
}

// the outcome of routing one mutation event through the conflict detector
type ApplyResult struct {
	// non-nil when a conflict was detected
	Resolution *ConflictResolution

	// whether the incoming event was appended to the log
	Accepted bool

	// editor address of the losing event when a conflict was resolved
	LosingEditor string
}
