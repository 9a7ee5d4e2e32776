// Package rooms holds the per-room collaboration state: the live presence
// set, current selections, the bounded mutation event log, and the conflict
// resolution history. A Room is a plain state machine with no locking and
// no I/O; it is owned exclusively by the websocket hub, which serializes
// every mutation (see internal/websocket).
package rooms

import (
	"sort"
	"time"
)

// per-room soft state; created lazily on first connection, lost on restart
type Room struct {
	opts Options

	// presence records by connection id
	presence map[string]*PresenceRecord

	// selected node by user address; absence means no selection
	selections map[string]string

	// append-only mutation log, oldest first, capped at MaxEventHistory
	events []*MutationEvent

	// resolved conflicts, oldest first, capped at MaxConflictHistory
	conflicts []*ConflictResolution
}

func New(opts Options) *Room {
	if opts.ConflictWindow <= 0 {
		opts.ConflictWindow = DefaultConflictWindow
	}

	if opts.MaxEventHistory <= 0 {
		opts.MaxEventHistory = DefaultMaxEventHistory
	}

	if opts.MaxConflictHistory <= 0 {
		opts.MaxConflictHistory = DefaultMaxConflictHistory
	}

	if opts.PresenceStaleTimeout <= 0 {
		opts.PresenceStaleTimeout = DefaultPresenceStaleTimeout
	}

	return &Room{
		opts:       opts,
		presence:   make(map[string]*PresenceRecord),
		selections: make(map[string]string),
	}
}

// UpsertUser binds an address to a connection. The first address bound to a
// connection is permanent: a record is inserted only when the connection has
// none and an address is supplied, otherwise this is a no-op. Reports
// whether the presence set changed.
func (r *Room) UpsertUser(connectionID, address string, now time.Time) bool {
	if address == "" {
		return false
	}

	if _, exists := r.presence[connectionID]; exists {
		return false
	}

	r.presence[connectionID] = &PresenceRecord{
		ConnectionID: connectionID,
		Address:      address,
		LastSeen:     now.UnixMilli(),
	}

	return true
}

// Touch refreshes the last-seen timestamp for a connection's presence
// record, if it has one.
func (r *Room) Touch(connectionID string, now time.Time) {
	if rec, ok := r.presence[connectionID]; ok {
		rec.LastSeen = now.UnixMilli()
	}
}

// RemoveConnection drops the presence record for a connection. Reports
// whether the presence set changed. When the last connection bound to an
// address leaves, that address's selection is cleared as well.
func (r *Room) RemoveConnection(connectionID string) bool {
	rec, ok := r.presence[connectionID]
	if !ok {
		return false
	}

	delete(r.presence, connectionID)
	r.clearOrphanedSelection(rec.Address)

	return true
}

// SweepStale removes presence records whose last-seen timestamp predates
// the staleness timeout. Reports whether anything was removed.
func (r *Room) SweepStale(now time.Time) bool {
	cutoff := now.Add(-r.opts.PresenceStaleTimeout).UnixMilli()
	changed := false

	for id, rec := range r.presence {
		if rec.LastSeen < cutoff {
			delete(r.presence, id)
			r.clearOrphanedSelection(rec.Address)
			changed = true
		}
	}

	return changed
}

// removes the selection for an address that no longer has any presence
func (r *Room) clearOrphanedSelection(address string) {
	if address == "" {
		return
	}

	for _, rec := range r.presence {
		if rec.Address == address {
			return
		}
	}

	delete(r.selections, address)
}

// Presence returns the current presence list, ordered by connection id for
// stable broadcast payloads.
func (r *Room) Presence() []PresenceRecord {
	list := make([]PresenceRecord, 0, len(r.presence))

	for _, rec := range r.presence {
		list = append(list, *rec)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ConnectionID < list[j].ConnectionID
	})

	return list
}

// PresenceCount returns the number of connections with a bound address.
func (r *Room) PresenceCount() int {
	return len(r.presence)
}

// SetSelection replaces the selection record for an address. An empty node
// id clears the record; clearing an absent record is a no-op.
func (r *Room) SetSelection(address, nodeID string) {
	if nodeID == "" {
		delete(r.selections, address)
		return
	}

	r.selections[address] = nodeID
}

// Selection returns the selected node for an address, if any.
func (r *Room) Selection(address string) (string, bool) {
	nodeID, ok := r.selections[address]
	return nodeID, ok
}

// Append adds an event to the log, evicting the oldest entries beyond the
// history cap. It performs no conflict screening; mutation events normally
// go through Apply instead.
func (r *Room) Append(evt *MutationEvent) {
	r.events = append(r.events, evt)

	if excess := len(r.events) - r.opts.MaxEventHistory; excess > 0 {
		r.events = append(r.events[:0], r.events[excess:]...)
	}
}

// RecentEvents returns up to n events from the tail of the log, oldest
// first.
func (r *Room) RecentEvents(n int) []*MutationEvent {
	if n > len(r.events) {
		n = len(r.events)
	}

	tail := make([]*MutationEvent, n)
	copy(tail, r.events[len(r.events)-n:])

	return tail
}

// EventCount returns the number of events retained in the log.
func (r *Room) EventCount() int {
	return len(r.events)
}

// ConflictCount returns the number of retained conflict resolutions.
func (r *Room) ConflictCount() int {
	return len(r.conflicts)
}

// TrimConflicts enforces the conflict history cap. Apply keeps the cap on
// every append already; the idle reaper calls this as a backstop.
func (r *Room) TrimConflicts() {
	if excess := len(r.conflicts) - r.opts.MaxConflictHistory; excess > 0 {
		r.conflicts = append(r.conflicts[:0], r.conflicts[excess:]...)
	}
}
