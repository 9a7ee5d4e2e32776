package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/graphroom/server/internal/config"
	ws "codeberg.org/graphroom/server/internal/websocket"
)

// holds all dependencies and state for the collaboration server
type Server struct {
	config *config.Config
	hub    *ws.Hub
	reaper *ws.Reaper
	router *gin.Engine
}
