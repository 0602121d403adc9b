package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/financing"
	"invoice-financing/ledger-backend/internal/notifications/websocket"
)

type routerDeps struct {
	handler        *financing.Handler
	sockets        *websocket.Manager
	metricsEnabled bool
	logger         *zap.Logger
}

func newRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.logger), cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})

	if deps.metricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET("/ws", func(c *gin.Context) {
		if _, err := deps.sockets.HandleConnection(c.Writer, c.Request); err != nil {
			deps.logger.Warn("Websocket upgrade failed", zap.Error(err))
		}
	})

	api := router.Group("/api/v1")
	{
		deps.handler.RegisterRoutes(api)
	}
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Info("Request handled", fields...)
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Admin-Token")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
