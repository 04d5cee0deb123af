package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edumint/edumint-backend/internal/blob"
	"github.com/edumint/edumint-backend/internal/config"
)

// HealthHandler reports the configuration and reachability state of the
// service's dependencies, not just process liveness.
type HealthHandler struct {
	db    *gorm.DB
	store blob.AudioStore
	cfg   config.Config
}

func NewHealthHandler(gdb *gorm.DB, store blob.AudioStore, cfg config.Config) *HealthHandler {
	return &HealthHandler{db: gdb, store: store, cfg: cfg}
}

func (h *HealthHandler) Check(c *gin.Context) {
	dbStatus := "not_configured"
	if h.db != nil {
		dbStatus = "connected"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			dbStatus = "error"
		}
	}

	blobStatus := "not_configured"
	if h.store != nil {
		blobStatus = "configured"
	}

	tts := "disabled"
	if h.cfg.TTSActive() {
		tts = "enabled"
	}

	status := "ok"
	if dbStatus == "error" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"database":   dbStatus,
		"blob_store": blobStatus,
		"tts":        tts,
	})
}
