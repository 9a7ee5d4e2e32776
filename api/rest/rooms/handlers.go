// Package rooms exposes read-only introspection over live collaboration
// rooms. The hub owns all room state; these handlers never mutate it.
package rooms

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/graphroom/server/internal/errors"
	ws "codeberg.org/graphroom/server/internal/websocket"
)

// lists live rooms with their occupancy
func ListHandler(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := hub.RoomIDs()

		list := make([]ws.RoomStats, 0, len(ids))
		for _, id := range ids {
			if stats, ok := hub.Stats(id); ok {
				list = append(list, stats)
			}
		}

		c.JSON(http.StatusOK, ListResponse{Rooms: list})
	}
}

// returns occupancy, presence, and history counters for one room
func GetHandler(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("id")

		stats, ok := hub.Stats(roomID)
		if !ok {
			errors.NotFound(c, "room")
			return
		}

		users, _ := hub.Presence(roomID)

		c.JSON(http.StatusOK, RoomResponse{
			RoomStats: stats,
			Users:     users,
		})
	}
}
