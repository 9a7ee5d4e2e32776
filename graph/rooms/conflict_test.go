package rooms

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCleanEvent(t *testing.T) {
	room := New(DefaultOptions())

	result := room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 1000), time.Now())

	assert.True(t, result.Accepted)
	assert.Nil(t, result.Resolution)
	assert.Equal(t, 1, room.EventCount())
	assert.Equal(t, 0, room.ConflictCount())
}

func TestApplyNewerEventWinsConflict(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 1000), now)
	result := room.Apply(testEvent("e2", EventEntityUpdate, "n1", "0xBBB", 1500), now)

	require.NotNil(t, result.Resolution)
	assert.True(t, result.Accepted)
	assert.Equal(t, "e2", result.Resolution.WinningEventID)
	assert.Equal(t, "e1", result.Resolution.LosingEventID)
	assert.Equal(t, StrategyLastWriteWins, result.Resolution.Strategy)
	assert.Equal(t, "0xAAA", result.LosingEditor)
	assert.Equal(t, 1, room.ConflictCount())

	// the losing event never survives in the log: resync snapshots for
	// this target carry only the winner
	tail := room.RecentEvents(50)
	require.Len(t, tail, 1)
	assert.Equal(t, "e2", tail[0].EventID)
}

func TestApplyOlderEventLosesConflict(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 2000), now)
	result := room.Apply(testEvent("e2", EventEntityUpdate, "n1", "0xBBB", 1500), now)

	require.NotNil(t, result.Resolution)
	assert.False(t, result.Accepted)
	assert.Equal(t, "e1", result.Resolution.WinningEventID)
	assert.Equal(t, "e2", result.Resolution.LosingEventID)
	assert.Equal(t, "0xBBB", result.LosingEditor)

	tail := room.RecentEvents(50)
	require.Len(t, tail, 1)
	assert.Equal(t, "e1", tail[0].EventID)
}

func TestSelfConflictImpossible(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 1000), now)
	result := room.Apply(testEvent("e2", EventEntityUpdate, "n1", "0xAAA", 1100), now)

	// same editor: never compared as conflicting peers
	assert.Nil(t, result.Resolution)
	assert.True(t, result.Accepted)
	assert.Equal(t, 2, room.EventCount())
}

func TestDifferentTargetOrTypeDoesNotConflict(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 1000), now)

	result := room.Apply(testEvent("e2", EventEntityUpdate, "n2", "0xBBB", 1100), now)
	assert.Nil(t, result.Resolution)

	result = room.Apply(testEvent("e3", EventEntityDelete, "n1", "0xBBB", 1100), now)
	assert.Nil(t, result.Resolution)
}

func TestConflictWindowIsExclusive(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 1000), now)

	// exactly one window apart: no conflict
	result := room.Apply(testEvent("e2", EventEntityUpdate, "n1", "0xBBB", 6000), now)
	assert.Nil(t, result.Resolution)

	// one millisecond inside the window: conflict
	result = room.Apply(testEvent("e3", EventEntityUpdate, "n1", "0xCCC", 10999), now)
	require.NotNil(t, result.Resolution)
	assert.Equal(t, "e3", result.Resolution.WinningEventID)
}

func TestTieBreakOnEventID(t *testing.T) {
	now := time.Now()

	// incoming event id sorts after the prior one: incoming wins
	room := New(DefaultOptions())
	room.Apply(testEvent("evt-a", EventEntityUpdate, "n1", "0xAAA", 1000), now)
	result := room.Apply(testEvent("evt-b", EventEntityUpdate, "n1", "0xBBB", 1000), now)
	require.NotNil(t, result.Resolution)
	assert.Equal(t, "evt-b", result.Resolution.WinningEventID)
	assert.True(t, result.Accepted)

	// incoming event id sorts before the prior one: incoming loses
	room = New(DefaultOptions())
	room.Apply(testEvent("evt-b", EventEntityUpdate, "n1", "0xAAA", 1000), now)
	result = room.Apply(testEvent("evt-a", EventEntityUpdate, "n1", "0xBBB", 1000), now)
	require.NotNil(t, result.Resolution)
	assert.Equal(t, "evt-b", result.Resolution.WinningEventID)
	assert.False(t, result.Accepted)
}

func TestConflictHistoryRingEviction(t *testing.T) {
	room := New(DefaultOptions())
	now := time.Now()

	// alternate editors on the same target so every second apply conflicts
	for i := 0; i < 250; i++ {
		editor := "0xAAA"
		if i%2 == 1 {
			editor = "0xBBB"
		}

		room.Apply(testEvent(fmt.Sprintf("evt-%03d", i), EventEntityUpdate, "n1", editor, int64(1000+i)), now)
	}

	assert.LessOrEqual(t, room.ConflictCount(), 100)
}

func TestCustomConflictWindow(t *testing.T) {
	opts := DefaultOptions()
	opts.ConflictWindow = 1000 * time.Millisecond

	room := New(opts)
	now := time.Now()

	room.Apply(testEvent("e1", EventEntityUpdate, "n1", "0xAAA", 1000), now)

	// inside the default window but outside the configured one
	result := room.Apply(testEvent("e2", EventEntityUpdate, "n1", "0xBBB", 3000), now)
	assert.Nil(t, result.Resolution)
}
