package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/graphroom/server/graph/rooms"
	"codeberg.org/graphroom/server/internal/config"
	ws "codeberg.org/graphroom/server/internal/websocket"
)

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) *Server {
	hub := ws.NewHub(rooms.Options{
		ConflictWindow:       cfg.ConflictWindow,
		MaxEventHistory:      cfg.MaxEventHistory,
		MaxConflictHistory:   cfg.MaxConflictHistory,
		PresenceStaleTimeout: cfg.PresenceStaleTimeout,
	})

	ws.RegisterDefaultHandlers(hub)

	reaper := ws.NewReaper(hub, cfg.ReaperInterval)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	server := &Server{
		config: cfg,
		hub:    hub,
		reaper: reaper,
		router: router,
	}

	RegisterRoutes(router, server)

	return server
}
