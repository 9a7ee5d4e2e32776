package rooms

import (
	"github.com/gin-gonic/gin"

	ws "codeberg.org/graphroom/server/internal/websocket"
)

func RegisterRoutes(router *gin.RouterGroup, hub *ws.Hub) {
	router.GET("/rooms", ListHandler(hub))
	router.GET("/rooms/:id", GetHandler(hub))
}
