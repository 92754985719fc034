// Package api exposes the advisor and the document metadata over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds the non-handler settings of the router.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter registers every route on a new gin engine.
func NewRouter(chat *ChatHandler, docs *DocumentHandler, cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(requestLogger(cfg.Logger), gin.Recovery(), cors(cfg.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	api := r.Group("/api")
	{
		api.POST("/chat", chat.Chat)
		api.POST("/chat/stream", chat.ChatStream)

		api.GET("/documents", docs.ListDocuments)
		api.GET("/documents/effective-range", docs.EffectiveRange)
		api.GET("/documents/search", docs.Search)
		api.GET("/documents/current", docs.Current)
		api.GET("/documents/expired", docs.Expired)
		api.GET("/documents/stats", docs.Stats)
		api.GET("/documents/:id", docs.GetDocument)

		api.POST("/sample-data", docs.LoadSampleData)
	}
	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP())
	}
}

// cors allows the listed browser origins. "*" allows any.
func cors(origins []string) gin.HandlerFunc {
	allowAll := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(origins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
