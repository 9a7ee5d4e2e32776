package websocket

import (
	"encoding/json"
	"sort"
	"time"

	"codeberg.org/graphroom/server/graph/rooms"
	"codeberg.org/graphroom/server/internal/logger"
	"codeberg.org/graphroom/server/internal/metrics"
)

func NewHub(opts rooms.Options) *Hub {
	return &Hub{
		rooms:         make(map[string]*roomEntry),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Inbound:       make(chan *Inbound, 256),
		handlers:      make(map[string]MessageHandler),
		shutdown:      make(chan struct{}),
		ipConnections: make(map[string]int),
		opts:          opts,
	}
}

// registers a handler for a specific inbound message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// sets the handler for unrecognized-but-well-formed message types
func (h *Hub) SetPassthrough(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passthrough = handler
}

// starts the hub's main loop
func (h *Hub) Run() {
	h.running = true
	defer func() {
		h.running = false
	}()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case in := <-h.Inbound:
			h.handleInbound(in)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// registerClient adds a client to its room, creating the room lazily, and
// sends the sync snapshot (presence plus recent event tail)
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := h.rooms[client.RoomID]
	if entry == nil {
		entry = &roomEntry{
			clients: make(map[string]*Client),
			state:   rooms.New(h.opts),
		}
		h.rooms[client.RoomID] = entry
		metrics.RoomsActive.Inc()
	}

	entry.clients[client.ID] = client
	metrics.ConnectionsActive.Inc()

	logger.Info("client registered",
		"client_id", client.ID,
		"room_id", client.RoomID,
		"address", client.Address,
	)

	snapshot := SyncMessage{
		Type:         TypeSync,
		Users:        entry.state.Presence(),
		RecentEvents: entry.state.RecentEvents(syncEventTail),
	}
	if snapshot.RecentEvents == nil {
		snapshot.RecentEvents = []*rooms.MutationEvent{}
	}

	h.send(client, snapshot)

	// an address supplied at connect time acts as an implicit sync-user
	if client.Address != "" {
		if entry.state.UpsertUser(client.ID, client.Address, time.Now()) {
			h.broadcastPresence(entry)
		}
	}
}

// removes a client from its room; the room itself is dropped once empty
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.rooms[client.RoomID]
	if !exists {
		return
	}

	if _, exists := entry.clients[client.ID]; !exists {
		return
	}

	delete(entry.clients, client.ID)
	client.Close()
	metrics.ConnectionsActive.Dec()

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]--

		if h.ipConnections[client.IPAddress] <= 0 {
			delete(h.ipConnections, client.IPAddress)
		}
	}

	changed := entry.state.RemoveConnection(client.ID)

	logger.Info("client unregistered",
		"client_id", client.ID,
		"room_id", client.RoomID,
	)

	if len(entry.clients) == 0 {
		delete(h.rooms, client.RoomID)
		metrics.RoomsActive.Dec()

		logger.Info("room has no more clients, removed",
			"room_id", client.RoomID,
		)

		return
	}

	if changed {
		h.broadcastPresence(entry)
	}
}

// routes one inbound message. The handler runs synchronously so the whole
// pipeline (classify, conflict check, append, broadcast) completes before
// the next message for the room is observed; running handlers concurrently
// would let two near-simultaneous conflicting edits both pass the conflict
// check.
func (h *Hub) handleInbound(in *Inbound) {
	h.mu.RLock()
	entry, exists := h.rooms[in.RoomID]

	var sender *Client
	if exists {
		sender = entry.clients[in.ClientID]
	}

	handler := h.handlers[in.Type]
	passthrough := h.passthrough
	h.mu.RUnlock()

	if sender == nil {
		logger.Warn("sender not found for message",
			"client_id", in.ClientID,
			"room_id", in.RoomID,
			"message_type", in.Type,
		)
		return
	}

	metrics.MessagesTotal.WithLabelValues(in.Type).Inc()
	h.touch(sender, in.ReceivedAt)

	if handler == nil {
		handler = passthrough
	}

	if handler == nil {
		return
	}

	if err := handler(h, sender, in); err != nil {
		// malformed input produces silence on the wire; the log line is
		// the only signal
		logger.Warn("message dropped",
			"message_type", in.Type,
			"client_id", sender.ID,
			"room_id", sender.RoomID,
			"error", err,
		)
	}
}

// refreshes the sender's presence last-seen timestamp
func (h *Hub) touch(client *Client, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.rooms[client.RoomID]; ok {
		entry.state.Touch(client.ID, now)
	}
}

// BindUser binds an address to the sender's connection and broadcasts the
// full presence list when the set changed. The first bound address wins;
// later sync-user messages are no-ops.
func (h *Hub) BindUser(client *Client, address string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}

	if !entry.state.UpsertUser(client.ID, address, now) {
		return
	}

	if client.Address == "" {
		client.Address = address
	}

	h.broadcastPresence(entry)
}

// ApplySelection replaces or clears the sender's selection record and
// relays it to everyone else in the room. Senders with no bound address
// have no selection identity and are dropped silently.
func (h *Hub) ApplySelection(client *Client, nodeID *string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.Address == "" {
		logger.Debug("selection from unbound connection dropped",
			"client_id", client.ID,
			"room_id", client.RoomID,
		)
		return
	}

	entry, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}

	selected := ""
	if nodeID != nil {
		selected = *nodeID
	}

	entry.state.SetSelection(client.Address, selected)

	h.broadcast(entry, SelectionBroadcast{
		Type:    TypeSelection,
		Address: client.Address,
		NodeID:  nodeID,
	}, client.ID)
}

// ApplyMutation routes a mutation event through the room's conflict
// detector, appends the survivor, and emits the data-sync, data-ack, and
// conflict-resolution traffic the outcome calls for.
func (h *Hub) ApplyMutation(client *Client, evt *rooms.MutationEvent, receivedAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}

	result := entry.state.Apply(evt, receivedAt)
	serverTimestamp := receivedAt.UnixMilli()

	if result.Resolution == nil {
		metrics.EventsAppendedTotal.Inc()

		h.broadcast(entry, DataSyncMessage{
			Type:            TypeDataSync,
			Event:           evt,
			ServerTimestamp: serverTimestamp,
		}, client.ID)

		h.send(client, DataAckMessage{
			Type:            TypeDataAck,
			EventID:         evt.EventID,
			ServerTimestamp: serverTimestamp,
			Status:          AckStatusSuccess,
		})

		return
	}

	metrics.ConflictsResolvedTotal.Inc()

	logger.Info("conflict resolved",
		"room_id", client.RoomID,
		"winning_event_id", result.Resolution.WinningEventID,
		"losing_event_id", result.Resolution.LosingEventID,
		"strategy", result.Resolution.Strategy,
	)

	// every connection learns about the resolution, the sender included
	h.broadcast(entry, ConflictResolutionMessage{
		Type:       TypeConflictResolution,
		Resolution: result.Resolution,
		Timestamp:  serverTimestamp,
	}, "")

	if result.Accepted {
		metrics.EventsAppendedTotal.Inc()

		// incoming event won: ack the sender, notify the losing editor's
		// connections so they can roll back optimistic state
		h.send(client, DataAckMessage{
			Type:            TypeDataAck,
			EventID:         evt.EventID,
			ServerTimestamp: serverTimestamp,
			Status:          AckStatusSuccess,
		})

		for _, peer := range entry.clients {
			if peer.Address != result.LosingEditor || peer.ID == client.ID {
				continue
			}

			h.send(peer, DataAckMessage{
				Type:       TypeDataAck,
				EventID:    result.Resolution.LosingEventID,
				Status:     AckStatusConflictResolved,
				Resolution: result.Resolution,
			})
		}

		return
	}

	// incoming event lost: only its sender needs the losing ack
	h.send(client, DataAckMessage{
		Type:       TypeDataAck,
		EventID:    evt.EventID,
		Status:     AckStatusConflictResolved,
		Resolution: result.Resolution,
	})
}

// AppendMove appends a synthetic move event for bookkeeping, skipping
// conflict resolution, and relays the original frame to the rest of the
// room.
func (h *Hub) AppendMove(client *Client, evt *rooms.MutationEvent, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}

	entry.state.Append(evt)
	metrics.EventsAppendedTotal.Inc()

	h.broadcastRaw(entry, raw, client.ID)
}

// RelayRaw forwards a frame verbatim to everyone in the room except the
// sender. This is the deliberate escape hatch for unrecognized types.
func (h *Hub) RelayRaw(client *Client, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}

	h.broadcastRaw(entry, raw, client.ID)
}

// SweepIdle reclaims stale presence records in every room and trims
// conflict history; rooms whose presence changed get a fresh presence
// broadcast. Called by the idle reaper; interleaves with message handling
// only at message-boundary granularity because it takes the hub lock.
func (h *Hub) SweepIdle(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, entry := range h.rooms {
		entry.state.TrimConflicts()

		if entry.state.SweepStale(now) {
			logger.Info("stale presence reclaimed",
				"room_id", roomID,
			)

			metrics.PresenceSweepsTotal.Inc()
			h.broadcastPresence(entry)
		}
	}
}

// sends the full presence list to every client in the room; must be called
// with the hub lock held
func (h *Hub) broadcastPresence(entry *roomEntry) {
	h.broadcast(entry, SyncMessage{
		Type:  TypeSync,
		Users: entry.state.Presence(),
	}, "")
}

// marshals once and fans out to every client except excludeID; must be
// called with the hub lock held
func (h *Hub) broadcast(entry *roomEntry, v any, excludeID string) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.ErrorErr(err, "failed to marshal broadcast message")
		return
	}

	h.broadcastRaw(entry, raw, excludeID)
}

// must be called with the hub lock held
func (h *Hub) broadcastRaw(entry *roomEntry, raw []byte, excludeID string) {
	for clientID, client := range entry.clients {
		if clientID == excludeID {
			continue
		}

		if err := client.SendRaw(raw); err != nil {
			logger.ErrorErr(err, "failed to send message to client",
				"client_id", clientID,
				"room_id", client.RoomID,
			)
		}
	}
}

// marshals and sends to a single client; must be called with the hub lock
// held (or from a context that owns the client)
func (h *Hub) send(client *Client, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.ErrorErr(err, "failed to marshal message",
			"client_id", client.ID,
		)
		return
	}

	if err := client.SendRaw(raw); err != nil {
		logger.ErrorErr(err, "failed to send message to client",
			"client_id", client.ID,
			"room_id", client.RoomID,
		)
	}
}

// RoomIDs returns the ids of all live rooms, sorted.
func (h *Hub) RoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Stats returns occupancy and history counters for one room.
func (h *Hub) Stats(roomID string) (RoomStats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.rooms[roomID]
	if !ok {
		return RoomStats{}, false
	}

	return RoomStats{
		RoomID:      roomID,
		Connections: len(entry.clients),
		Presence:    entry.state.PresenceCount(),
		Events:      entry.state.EventCount(),
		Conflicts:   entry.state.ConflictCount(),
	}, true
}

// Presence returns the presence list for one room.
func (h *Hub) Presence(roomID string) ([]rooms.PresenceRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.rooms[roomID]
	if !ok {
		return nil, false
	}

	return entry.state.Presence(), true
}

// GetClientCount returns the number of connections in a room.
func (h *Hub) GetClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.rooms[roomID]
	if !ok {
		return 0
	}

	return len(entry.clients)
}

// GetRoomCount returns the number of live rooms.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// checks if a new connection should be allowed based on per-IP limits
func (h *Hub) CanAcceptConnection(ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.ipConnections[ipAddress] >= maxConnectionsPerIP {
		return false, "maximum connections per IP address exceeded"
	}

	return true, ""
}

// increments the connection count for an IP address
func (h *Hub) TrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]++
}

func (h *Hub) Shutdown() {
	if h.running {
		close(h.shutdown)
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying clients of server shutdown")

	shutdownMsg, err := json.Marshal(ServerShutdownMessage{
		Type:   TypeServerShutdown,
		Reason: "server is shutting down",
	})
	if err == nil {
		for _, entry := range h.rooms {
			for _, client := range entry.clients {
				client.SendRaw(shutdownMsg) //nolint:errcheck,gosec // best-effort notification
			}
		}
	}

	h.mu.Unlock()

	// give clients time to receive the shutdown message
	time.Sleep(500 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections")

	for roomID, entry := range h.rooms {
		for clientID, client := range entry.clients {
			client.Close()
			logger.Debug("closed client",
				"client_id", clientID,
				"room_id", roomID,
			)
		}
	}

	h.rooms = make(map[string]*roomEntry)
	h.ipConnections = make(map[string]int)
}
