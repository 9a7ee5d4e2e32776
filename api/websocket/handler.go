package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/graphroom/server/internal/errors"
	"codeberg.org/graphroom/server/internal/logger"
	ws "codeberg.org/graphroom/server/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     ws.CheckOrigin,
}

// handles WebSocket connections joining a collaboration room. The room id
// is an opaque caller-supplied string; the address, when supplied, is taken
// at face value with no cryptographic verification (identity issuance is
// owned elsewhere).
func WebSocketHandler(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			errors.BadRequest(c, "invalid parameters", err)
			return
		}

		// check connection limits before accepting new connection
		ipAddress := c.ClientIP()

		canAccept, reason := hub.CanAcceptConnection(ipAddress)
		if !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		clientID := ws.GenerateClientID()

		// upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"room_id", params.Room,
				"ip", ipAddress,
			)

			return
		}

		// track IP connection only after successful upgrade
		hub.TrackIPConnection(ipAddress)

		client := ws.NewClient(clientID, params.Room, params.Address, ipAddress, conn, hub)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"room_id", params.Room,
			"address", params.Address,
			"ip", ipAddress,
		)
	}
}
