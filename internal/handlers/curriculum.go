package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumint/edumint-backend/internal/curriculum"
)

type CurriculumHandler struct {
	service curriculum.Service
}

func NewCurriculumHandler(service curriculum.Service) *CurriculumHandler {
	return &CurriculumHandler{service: service}
}

func (h *CurriculumHandler) Get(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no curriculum configured"})
		return
	}
	c.JSON(http.StatusOK, h.service.Curriculum())
}

func (h *CurriculumHandler) Units(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no curriculum configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": h.service.ListUnits()})
}

func (h *CurriculumHandler) SubskillContext(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no curriculum configured"})
		return
	}
	sctx, err := h.service.SubskillContext(c.Param("subskill_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sctx)
}
