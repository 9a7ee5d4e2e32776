package rooms

import (
	ws "codeberg.org/graphroom/server/internal/websocket"

	graph "codeberg.org/graphroom/server/graph/rooms"
)

type ListResponse struct {
	Rooms []ws.RoomStats `json:"rooms"`
}

type RoomResponse struct {
	ws.RoomStats
	Users []graph.PresenceRecord `json:"users"`
}
