// Package httpapi is the outer transport layer: the worker and control
// WebSocket endpoints, the MCP ingress, and the status API. It owns tenant
// key extraction and session id generation; the workspace key itself is an
// opaque string routed through untouched.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/workbridge/workbridge/internal/config"
	"github.com/workbridge/workbridge/internal/dispatch"
	"github.com/workbridge/workbridge/internal/relay"
)

type Handler struct {
	dispatcher     *dispatch.Dispatcher
	upgrader       websocket.Upgrader
	connOpts       relay.Options
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	logger         zerolog.Logger
	started        time.Time
	nowFn          func() time.Time
	newSessionIDFn func() string
}

func NewHandler(dispatcher *dispatch.Dispatcher, cfg config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Workers and control clients are local processes, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connOpts: relay.Options{
			QueueSize:       cfg.SendQueueSize,
			PingInterval:    cfg.PingInterval,
			MaxMessageBytes: cfg.MaxMessageBytes,
			Logger:          logger,
		},
		defaultTimeout: cfg.CommandTimeout,
		maxTimeout:     cfg.MaxCommandTimeout,
		logger:         logger,
		started:        time.Now(),
		nowFn:          time.Now,
		newSessionIDFn: uuid.NewString,
	}
}

func NewRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", handler.Health)
	router.GET("/api/v1/status", handler.Status)
	router.GET("/api/v1/workspaces", handler.Workspaces)
	router.GET("/api/v1/commands", handler.ListCommands)
	router.GET("/ws/worker", handler.WorkerSocket)
	router.GET("/ws/control", handler.ControlSocket)

	mcpHandler := NewMCPHandler(handler.dispatcher, handler.defaultTimeout, handler.maxTimeout)
	router.Any("/mcp", gin.WrapH(mcpHandler))

	return router
}
