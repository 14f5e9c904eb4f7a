package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
)

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

// GetConfig returns the application config. Mirror credentials are only
// shown to admins.
func (h *Handler) GetConfig(c *gin.Context) {
	cfg := h.store.GetConfig()
	if actor(c).Role != models.RoleAdmin {
		cfg.FirebaseConfig = models.CloudCredentials{}
	}
	c.JSON(http.StatusOK, cfg)
}

// SaveConfig replaces the application config. The cloud flag is owned by the
// sync endpoints and is kept as stored.
func (h *Handler) SaveConfig(c *gin.Context) {
	var cfg models.AppConfig
	if !h.bind(c, &cfg) {
		return
	}
	cfg.CloudEnabled = h.store.GetConfig().CloudEnabled
	if err := h.store.SaveConfig(cfg); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// EnableSync stores the supplied credentials, if any, and activates
// replication with the stored ones.
func (h *Handler) EnableSync(c *gin.Context) {
	var creds models.CloudCredentials
	if c.Request.ContentLength > 0 {
		if !h.bind(c, &creds) {
			return
		}
		cfg := h.store.GetConfig()
		cfg.FirebaseConfig = creds.Trimmed()
		if err := h.store.SaveConfig(cfg); err != nil {
			h.fail(c, err)
			return
		}
	}

	if err := h.sync.EnableFromConfig(c.Request.Context()); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		h.logger.Warn("replication enable failed", zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error(), "status": h.sync.Status()})
		return
	}
	c.JSON(http.StatusOK, h.sync.Status())
}

// DisableSync stops replication. Local data is kept.
func (h *Handler) DisableSync(c *gin.Context) {
	if err := h.sync.Deactivate(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sync.Status())
}

// TestSync checks candidate credentials without changing state.
func (h *Handler) TestSync(c *gin.Context) {
	var creds models.CloudCredentials
	if !h.bind(c, &creds) {
		return
	}
	c.JSON(http.StatusOK, h.sync.TestConnection(c.Request.Context(), creds))
}

// PushSync re-uploads every collection.
func (h *Handler) PushSync(c *gin.Context) {
	if err := h.sync.PushAllCollections(c.Request.Context()); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.sync.Status())
}

// WipeSync clears the remote mirror. The body must carry {"confirm": true}.
func (h *Handler) WipeSync(c *gin.Context) {
	var req confirmRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.sync.WipeRemote(c.Request.Context(), req.Confirm); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.logger.Warn("remote mirror wiped", zap.String("by", actor(c).ID))
	c.Status(http.StatusNoContent)
}

// SyncStatus reports the replication state.
func (h *Handler) SyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Status())
}

// Reset wipes local data and re-seeds defaults. The body must carry
// {"confirm": true}. Replication is stopped first and stays off, matching the
// re-seeded config; the mirror keeps its data.
func (h *Handler) Reset(c *gin.Context) {
	var req confirmRequest
	if !h.bind(c, &req) {
		return
	}
	if !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reset requires explicit confirmation"})
		return
	}
	h.sync.Disable(c.Request.Context())
	if err := h.store.Reset(); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Warn("local store reset", zap.String("by", actor(c).ID))
	c.Status(http.StatusNoContent)
}
