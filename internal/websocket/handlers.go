package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"codeberg.org/graphroom/server/graph/rooms"
)

// RegisterDefaultHandlers wires the full inbound protocol: sync-user,
// selection, node-move, ping, the seven data mutation kinds, and the
// verbatim pass-through for everything else.
func RegisterDefaultHandlers(hub *Hub) {
	hub.RegisterHandler(TypeSyncUser, SyncUserHandler())
	hub.RegisterHandler(TypeSelection, SelectionHandler())
	hub.RegisterHandler(TypeNodeMove, NodeMoveHandler())
	hub.RegisterHandler(TypePing, PingHandler())

	mutation := MutationHandler()
	for _, kind := range []string{
		rooms.EventEntityCreate,
		rooms.EventEntityUpdate,
		rooms.EventEntityDelete,
		rooms.EventRelationCreate,
		rooms.EventRelationUpdate,
		rooms.EventRelationDelete,
		rooms.EventRelationLinkCreate,
	} {
		hub.RegisterHandler(kind, mutation)
	}

	hub.SetPassthrough(PassthroughHandler())
}

// handles sync-user messages: binds the sender's address and broadcasts
// the updated presence list
func SyncUserHandler() MessageHandler {
	return func(hub *Hub, client *Client, in *Inbound) error {
		var payload SyncUserPayload
		if err := json.Unmarshal(in.Raw, &payload); err != nil {
			return fmt.Errorf("parse sync-user: %w", err)
		}

		if payload.Address == "" {
			return fmt.Errorf("sync-user without address")
		}

		hub.BindUser(client, payload.Address, in.ReceivedAt)

		return nil
	}
}

// handles selection messages: replaces or clears the sender's selection
// record and relays it to the rest of the room
func SelectionHandler() MessageHandler {
	return func(hub *Hub, client *Client, in *Inbound) error {
		var payload SelectionPayload
		if err := json.Unmarshal(in.Raw, &payload); err != nil {
			return fmt.Errorf("parse selection: %w", err)
		}

		hub.ApplySelection(client, payload.NodeID)

		return nil
	}
}

// handles node-move messages: appends a synthetic entity-update tagged as
// a move for bookkeeping, skipping conflict resolution entirely (position
// churn is low-stakes and always accepted), then relays the raw frame
func NodeMoveHandler() MessageHandler {
	return func(hub *Hub, client *Client, in *Inbound) error {
		var payload NodeMovePayload
		if err := json.Unmarshal(in.Raw, &payload); err != nil {
			return fmt.Errorf("parse node-move: %w", err)
		}

		if payload.Payload.NodeID == "" {
			return fmt.Errorf("node-move without node id")
		}

		nodeID, err := json.Marshal(payload.Payload.NodeID)
		if err != nil {
			return err
		}

		position, err := json.Marshal(payload.Payload.Position)
		if err != nil {
			return err
		}

		evt := &rooms.MutationEvent{
			Type:          rooms.EventEntityUpdate,
			EventID:       uuid.NewString(),
			Timestamp:     in.ReceivedAt.UnixMilli(),
			EditorAddress: client.Address,
			Data: map[string]json.RawMessage{
				"nodeId":        nodeID,
				"position":      position,
				"operationType": json.RawMessage(`"move"`),
			},
		}

		hub.AppendMove(client, evt, in.Raw)

		return nil
	}
}

// handles the seven data mutation kinds: validates the target identifier,
// fills server-side fallbacks, and routes through the conflict detector
func MutationHandler() MessageHandler {
	return func(hub *Hub, client *Client, in *Inbound) error {
		var evt rooms.MutationEvent
		if err := json.Unmarshal(in.Raw, &evt); err != nil {
			return fmt.Errorf("parse mutation event: %w", err)
		}

		if evt.TargetID() == "" {
			return fmt.Errorf("mutation event without target identifier")
		}

		if evt.EventID == "" {
			evt.EventID = uuid.NewString()
		}

		if evt.Timestamp == 0 {
			evt.Timestamp = in.ReceivedAt.UnixMilli()
		}

		if evt.EditorAddress == "" {
			evt.EditorAddress = client.Address
		}

		hub.ApplyMutation(client, &evt, in.ReceivedAt)

		return nil
	}
}

// handles application-level pings with a pong to the sender only
func PingHandler() MessageHandler {
	return func(hub *Hub, client *Client, _ *Inbound) error {
		hub.send(client, PongMessage{Type: TypePong})
		return nil
	}
}

// handles every unrecognized-but-well-formed type: the raw frame is
// relayed verbatim to the rest of the room without interpretation. This is
// a deliberate escape hatch, not a default.
func PassthroughHandler() MessageHandler {
	return func(hub *Hub, client *Client, in *Inbound) error {
		hub.RelayRaw(client, in.Raw)
		return nil
	}
}
