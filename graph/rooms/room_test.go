package rooms

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(id, kind, target, editor string, ts int64) *MutationEvent {
	return &MutationEvent{
		Type:          kind,
		EventID:       id,
		Timestamp:     ts,
		EditorAddress: editor,
		Data: map[string]json.RawMessage{
			"nodeId": json.RawMessage(fmt.Sprintf("%q", target)),
		},
	}
}

func TestUpsertUserFirstAddressWins(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	changed := room.UpsertUser("conn-1", "0xAAA", now)
	assert.True(t, changed)

	// second upsert for the same connection is a no-op
	changed = room.UpsertUser("conn-1", "0xBBB", now)
	assert.False(t, changed)

	users := room.Presence()
	require.Len(t, users, 1)
	assert.Equal(t, "0xAAA", users[0].Address)
}

func TestUpsertUserWithoutAddressIsNoOp(t *testing.T) {
	room := New(DefaultOptions())

	changed := room.UpsertUser("conn-1", "", time.Now())
	assert.False(t, changed)
	assert.Equal(t, 0, room.PresenceCount())
}

func TestPresenceCountsDistinctConnections(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	for i := 0; i < 5; i++ {
		room.UpsertUser(fmt.Sprintf("conn-%d", i), fmt.Sprintf("0x%d", i), now)
	}

	assert.Equal(t, 5, room.PresenceCount())
}

func TestTouchRefreshesLastSeen(t *testing.T) {
	room := New(DefaultOptions())
	bound := time.Now()

	room.UpsertUser("conn-1", "0xAAA", bound)

	later := bound.Add(3 * time.Minute)
	room.Touch("conn-1", later)

	users := room.Presence()
	require.Len(t, users, 1)
	assert.Equal(t, later.UnixMilli(), users[0].LastSeen)
}

func TestSweepStaleRemovesOnlyStaleRecords(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.UpsertUser("conn-stale", "0xAAA", now.Add(-6*time.Minute))
	room.UpsertUser("conn-fresh", "0xBBB", now.Add(-1*time.Minute))

	changed := room.SweepStale(now)
	assert.True(t, changed)

	users := room.Presence()
	require.Len(t, users, 1)
	assert.Equal(t, "conn-fresh", users[0].ConnectionID)

	// sweeping again finds nothing to remove
	assert.False(t, room.SweepStale(now))
}

func TestRemoveConnectionClearsOrphanedSelection(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.UpsertUser("conn-1", "0xAAA", now)
	room.SetSelection("0xAAA", "n1")

	changed := room.RemoveConnection("conn-1")
	assert.True(t, changed)

	_, ok := room.Selection("0xAAA")
	assert.False(t, ok)
}

func TestRemoveConnectionKeepsSelectionWhileAddressPresent(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	// same address bound through two connections
	room.UpsertUser("conn-1", "0xAAA", now)
	room.UpsertUser("conn-2", "0xAAA", now)
	room.SetSelection("0xAAA", "n1")

	room.RemoveConnection("conn-1")

	nodeID, ok := room.Selection("0xAAA")
	require.True(t, ok)
	assert.Equal(t, "n1", nodeID)
}

func TestSelectionReplaceAndClear(t *testing.T) {
	room := New(DefaultOptions())

	room.SetSelection("0xAAA", "n1")
	room.SetSelection("0xAAA", "n2")

	nodeID, ok := room.Selection("0xAAA")
	require.True(t, ok)
	assert.Equal(t, "n2", nodeID)

	// clearing twice is idempotent
	room.SetSelection("0xAAA", "")
	room.SetSelection("0xAAA", "")

	_, ok = room.Selection("0xAAA")
	assert.False(t, ok)
}

func TestEventLogRingEviction(t *testing.T) {
	room := New(DefaultOptions())

	for i := 0; i < 1001; i++ {
		room.Append(testEvent(fmt.Sprintf("evt-%04d", i), EventEntityCreate, "n1", "0xAAA", int64(i)))
	}

	assert.Equal(t, 1000, room.EventCount())

	// the oldest event was evicted
	tail := room.RecentEvents(1000)
	require.Len(t, tail, 1000)
	assert.Equal(t, "evt-0001", tail[0].EventID)
	assert.Equal(t, "evt-1000", tail[len(tail)-1].EventID)
}

func TestRecentEventsTail(t *testing.T) {
	room := New(DefaultOptions())

	for i := 0; i < 80; i++ {
		room.Append(testEvent(fmt.Sprintf("evt-%02d", i), EventEntityUpdate, "n1", "0xAAA", int64(i)))
	}

	tail := room.RecentEvents(50)
	require.Len(t, tail, 50)
	assert.Equal(t, "evt-30", tail[0].EventID)
	assert.Equal(t, "evt-79", tail[len(tail)-1].EventID)

	// asking for more than retained returns everything
	assert.Len(t, room.RecentEvents(200), 80)
}

func TestTargetIDValidation(t *testing.T) {
	evt := &MutationEvent{
		Type: EventEntityUpdate,
		Data: map[string]json.RawMessage{
			"label": json.RawMessage(`"Foo"`),
		},
	}
	assert.Empty(t, evt.TargetID())

	// non-string target is treated as absent
	evt.Data["nodeId"] = json.RawMessage(`42`)
	assert.Empty(t, evt.TargetID())

	evt.Data["nodeId"] = json.RawMessage(`"n1"`)
	assert.Equal(t, "n1", evt.TargetID())
}

func TestIsMutationType(t *testing.T) {
	for _, kind := range []string{
		EventEntityCreate, EventEntityUpdate, EventEntityDelete,
		EventRelationCreate, EventRelationUpdate, EventRelationDelete,
		EventRelationLinkCreate,
	} {
		assert.True(t, IsMutationType(kind), kind)
	}

	assert.False(t, IsMutationType("sync-user"))
	assert.False(t, IsMutationType("node-move"))
}
