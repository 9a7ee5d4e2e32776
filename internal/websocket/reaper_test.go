package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/graphroom/server/graph/rooms"
)

func TestReaperReclaimsStalePresence(t *testing.T) {
	opts := rooms.DefaultOptions()
	opts.PresenceStaleTimeout = 50 * time.Millisecond

	hub := NewHub(opts)
	RegisterDefaultHandlers(hub)
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient(hub, "client-1", "room-1", "")
	hub.Register <- client
	time.Sleep(100 * time.Millisecond)

	sendInbound(t, hub, client, `{"type":"sync-user","address":"0xAAA"}`)
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := NewReaper(hub, 25*time.Millisecond)
	go reaper.Start(ctx)

	// the client goes silent long past the staleness timeout
	time.Sleep(200 * time.Millisecond)

	users, ok := hub.Presence("room-1")
	require.True(t, ok)
	assert.Empty(t, users)

	// the connection itself stays registered
	assert.Equal(t, 1, hub.GetClientCount("room-1"))
}
