package rooms

import "time"

// Apply routes a mutation event through the conflict detector and, when it
// survives, appends it to the log.
//
// A prior event conflicts with evt when it has the same target and type, a
// different editor, and a timestamp within the conflict window (exclusive:
// events exactly one window apart do not conflict). The event with the
// strictly greater timestamp wins; equal timestamps tie-break on lexical
// event id order. The losing event never stays in the log, so resync
// snapshots carry only winners.
func (r *Room) Apply(evt *MutationEvent, now time.Time) ApplyResult {
	prior := r.findConflict(evt)
	if prior == nil {
		r.Append(evt)
		return ApplyResult{Accepted: true}
	}

	res := &ConflictResolution{
		Strategy:   StrategyLastWriteWins,
		ResolvedAt: now.UnixMilli(),
	}

	result := ApplyResult{Resolution: res}

	if wins(evt, prior) {
		res.WinningEventID = evt.EventID
		res.LosingEventID = prior.EventID
		result.Accepted = true
		result.LosingEditor = prior.EditorAddress

		r.removeEvent(prior.EventID)
		r.Append(evt)
	} else {
		res.WinningEventID = prior.EventID
		res.LosingEventID = evt.EventID
		result.LosingEditor = evt.EditorAddress
	}

	r.conflicts = append(r.conflicts, res)
	r.TrimConflicts()

	return result
}

// findConflict scans the log newest-first for an event that conflicts with
// evt. The editor-mismatch filter makes self-conflict impossible: an
// editor's own events are never counted as conflicting peers.
func (r *Room) findConflict(evt *MutationEvent) *MutationEvent {
	target := evt.TargetID()
	window := r.opts.ConflictWindow.Milliseconds()

	for i := len(r.events) - 1; i >= 0; i-- {
		prior := r.events[i]

		if prior.Type != evt.Type || prior.EditorAddress == evt.EditorAddress {
			continue
		}

		if prior.TargetID() != target {
			continue
		}

		delta := evt.Timestamp - prior.Timestamp
		if delta < 0 {
			delta = -delta
		}

		if delta < window {
			return prior
		}
	}

	return nil
}

// wins reports whether the incoming event beats the prior one under
// last-write-wins with a deterministic event id tie-break.
func wins(incoming, prior *MutationEvent) bool {
	if incoming.Timestamp != prior.Timestamp {
		return incoming.Timestamp > prior.Timestamp
	}

	return incoming.EventID > prior.EventID
}

func (r *Room) removeEvent(eventID string) {
	for i, evt := range r.events {
		if evt.EventID == eventID {
			r.events = append(r.events[:i], r.events[i+1:]...)
			return
		}
	}
}
