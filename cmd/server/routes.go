package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"codeberg.org/graphroom/server/api/rest/health"
	"codeberg.org/graphroom/server/api/rest/rooms"
	"codeberg.org/graphroom/server/api/websocket"
	"codeberg.org/graphroom/server/internal/logger"
)

// REST requests allowed per client IP per minute
const restRateLimit = "120-M"

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(cors.Default())

	router.GET("/health", health.Handler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rate, err := limiter.NewRateFromFormatted(restRateLimit)
	if err != nil {
		logger.Fatal("invalid rate limit format", "rate", restRateLimit, "error", err)
	}

	rateLimit := mgin.NewMiddleware(limiter.New(memory.NewStore(), rate))

	v1 := router.Group("/api/v1")
	v1.Use(rateLimit)

	{
		v1.GET("/ping", health.PingHandler)

		rooms.RegisterRoutes(v1, server.hub)
	}

	// the websocket upgrade bypasses the REST rate limiter; connection
	// admission is the hub's per-IP cap
	wsGroup := router.Group("/api/v1")
	websocket.RegisterRoutes(wsGroup, server.hub)
}
