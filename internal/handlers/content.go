package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edumint/edumint-backend/internal/curriculum"
	"github.com/edumint/edumint-backend/internal/repos"
	"github.com/edumint/edumint-backend/internal/services"
	"github.com/edumint/edumint-backend/internal/types"
)

type ContentHandler struct {
	contentService    services.ContentService
	curriculumService curriculum.Service
}

func NewContentHandler(contentService services.ContentService, curriculumService curriculum.Service) *ContentHandler {
	return &ContentHandler{
		contentService:    contentService,
		curriculumService: curriculumService,
	}
}

// Generate accepts either a full curriculum coordinate or just a subskill_id
// that the curriculum service resolves. With async=true the call returns 202
// and the package id before generation finishes.
func (h *ContentHandler) Generate(c *gin.Context) {
	var req struct {
		types.ContentRequest
		SubskillID string `json:"subskill_id"`
		Async      bool   `json:"async"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.SubskillID != "" && h.curriculumService != nil {
		sctx, err := h.curriculumService.SubskillContext(req.SubskillID)
		if err != nil {
			respondError(c, err)
			return
		}
		req.Subject = sctx.Subject
		req.Unit = sctx.Unit
		req.Skill = sctx.Skill
		req.Subskill = sctx.Subskill
		req.DifficultyLevel = types.DifficultyLevel(sctx.DifficultyLevel)
		req.Prerequisites = sctx.Prerequisites
		req.Grade = sctx.Grade
	}

	if req.Async {
		id, err := h.contentService.GeneratePackageAsync(req.ContentRequest)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"package_id":    id,
			"partition_key": req.PartitionKey(),
			"status":        "generating",
		})
		return
	}

	pkg, err := h.contentService.GeneratePackage(c.Request.Context(), req.ContentRequest)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

func (h *ContentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	partitionKey := c.Query("partition_key")
	if partitionKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partition_key query parameter is required"})
		return
	}
	pkg, err := h.contentService.GetPackage(c.Request.Context(), id, partitionKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (h *ContentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter := repos.PackageFilter{
		Subject: c.Query("subject"),
		Unit:    c.Query("unit"),
		Status:  types.PackageStatus(c.Query("status")),
		Limit:   limit,
	}
	pkgs, err := h.contentService.ListPackages(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs, "count": len(pkgs)})
}

func (h *ContentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	partitionKey := c.Query("partition_key")
	if partitionKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partition_key query parameter is required"})
		return
	}
	if err := h.contentService.DeletePackage(c.Request.Context(), id, partitionKey); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
