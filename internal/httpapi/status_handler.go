package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workbridge/workbridge/internal/dispatch"
)

type statusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Router        dispatch.Snapshot `json:"router"`
}

type workspaceListResponse struct {
	Items []dispatch.WorkspaceStatus `json:"items"`
	Total int                        `json:"total"`
}

type commandListResponse struct {
	Items []dispatch.CommandSpec `json:"items"`
	Total int                    `json:"total"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Status:        "ok",
		UptimeSeconds: int64(h.nowFn().Sub(h.started).Seconds()),
		Router:        h.dispatcher.Diagnostics(),
	})
}

func (h *Handler) Workspaces(c *gin.Context) {
	items := h.dispatcher.Workspaces()
	c.JSON(http.StatusOK, workspaceListResponse{Items: items, Total: len(items)})
}

func (h *Handler) ListCommands(c *gin.Context) {
	items := h.dispatcher.Catalog().List()
	c.JSON(http.StatusOK, commandListResponse{Items: items, Total: len(items)})
}
