// Package handlers implements the diagnostics HTTP endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kadunajudiciary/courtsync-go/internal/application/container"
)

// DiagnosticsHandlers exposes engine internals for operators: cache state,
// channel state, session summary and a manual resync trigger.
type DiagnosticsHandlers struct {
	container *container.Container
	startedAt time.Time
}

func NewDiagnosticsHandlers(c *container.Container) *DiagnosticsHandlers {
	return &DiagnosticsHandlers{container: c, startedAt: time.Now().UTC()}
}

func (h *DiagnosticsHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

func (h *DiagnosticsHandlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Store.Stats())
}

func (h *DiagnosticsHandlers) ChannelState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": h.container.Channel.State().String(),
	})
}

func (h *DiagnosticsHandlers) SessionInfo(c *gin.Context) {
	sess := h.container.Session
	info := gin.H{
		"active":   sess.Active(),
		"loadedAt": sess.LoadedAt(),
	}
	if user := sess.User(); user != nil {
		info["userId"] = user.ID
		info["role"] = user.Role
	}
	if expiry := h.container.SessionService.TokenExpiry(); !expiry.IsZero() {
		info["tokenExpiresAt"] = expiry
	}
	c.JSON(http.StatusOK, info)
}

// TriggerResync kicks a full resync outside the polling schedule.
func (h *DiagnosticsHandlers) TriggerResync(c *gin.Context) {
	if !h.container.Session.Active() {
		c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
		return
	}
	if err := h.container.SyncService.Resync(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resynced"})
}
