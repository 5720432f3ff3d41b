package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workbridge/workbridge/internal/relay"
	"github.com/workbridge/workbridge/internal/wire"
)

// WorkerSocket upgrades a worker-plane connection. The workspace key arrives
// as a query parameter supplied by the plugin at connect time; it is never
// derived or guessed. A reconnect for the same workspace supersedes the stale
// session inside the dispatcher.
func (h *Handler) WorkerSocket(c *gin.Context) {
	workspace := strings.TrimSpace(c.Query("workspace"))
	if workspace == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace query parameter is required"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", c.Request.RemoteAddr).Msg("worker upgrade failed")
		return
	}

	sessionID := h.newSessionIDFn()
	conn := relay.NewConn(sessionID, workspace, ws, h.connOpts)
	if err := conn.SendAck(wire.ConnectAck{
		SessionID:        sessionID,
		WorkspaceKey:     workspace,
		ServerTimeUnixMS: h.nowFn().UnixMilli(),
		PingIntervalSec:  int(h.connOpts.PingInterval / time.Second),
	}); err != nil {
		conn.Close()
		return
	}

	h.dispatcher.OnWorkerConnect(sessionID, workspace, conn)
	_ = conn.ReadResults(h.dispatcher.HandleWorkerResult)
	h.dispatcher.OnWorkerDisconnect(sessionID)
	conn.Close()
}
