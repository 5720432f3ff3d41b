package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workbridge/workbridge/internal/relay"
	"github.com/workbridge/workbridge/internal/wire"
)

// ControlSocket upgrades a control-plane connection. Requests on one
// connection run concurrently; each response is correlated by the client's
// request id, and responses may return in any order. When the connection
// drops, outstanding dispatches are abandoned rather than left to wait out
// their deadlines.
func (h *Handler) ControlSocket(c *gin.Context) {
	workspace := strings.TrimSpace(c.Query("workspace"))
	if workspace == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace query parameter is required"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", c.Request.RemoteAddr).Msg("control upgrade failed")
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

	h.dispatcher.OnControlConnect(sessionID, workspace, dispatchControlMeta(c.Request.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup

	_ = conn.ReadMessages(func(data []byte) {
		var req wire.ControlRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = conn.SendControlResponse(wire.ControlResponse{
				ErrorKind: wire.ErrorKindValidation,
				Error:     &wire.ResultError{Message: "invalid request frame"},
			})
			return
		}
		req.ID = strings.TrimSpace(req.ID)
		if req.ID == "" {
			_ = conn.SendControlResponse(wire.ControlResponse{
				ErrorKind: wire.ErrorKindValidation,
				Error:     &wire.ResultError{Message: "id is required"},
			})
			return
		}
		timeout, ok := h.requestTimeout(req.TimeoutMS)
		if !ok {
			_ = conn.SendControlResponse(wire.ControlResponse{
				ID:        req.ID,
				ErrorKind: wire.ErrorKindValidation,
				Error:     &wire.ResultError{Message: "timeout_ms is out of range"},
			})
			return
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			payload, err := h.dispatcher.Dispatch(ctx, sessionID, req.Command, req.Args, timeout)
			if sendErr := conn.SendControlResponse(controlResponseFor(req.ID, payload, err)); sendErr != nil {
				h.logger.Debug().Err(sendErr).Str("request_id", req.ID).Msg("control response dropped")
			}
		}()
	})

	// Abandon pending calls before unregistering so their table entries are
	// reclaimed immediately.
	cancel()
	h.dispatcher.OnControlDisconnect(sessionID)
	conn.Close()
	inflight.Wait()
}

// requestTimeout validates an optional client-supplied timeout. Zero means
// the configured default; anything above the maximum is rejected rather than
// clamped so the client learns about the limit.
func (h *Handler) requestTimeout(timeoutMS int) (time.Duration, bool) {
	if timeoutMS == 0 {
		return h.defaultTimeout, true
	}
	if timeoutMS < 0 || time.Duration(timeoutMS)*time.Millisecond > h.maxTimeout {
		return 0, false
	}
	return time.Duration(timeoutMS) * time.Millisecond, true
}
