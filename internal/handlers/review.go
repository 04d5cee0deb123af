package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edumint/edumint-backend/internal/services"
	"github.com/edumint/edumint-backend/internal/types"
)

type ReviewHandler struct {
	reviewService   services.ReviewService
	revisionService services.RevisionService
}

func NewReviewHandler(reviewService services.ReviewService, revisionService services.RevisionService) *ReviewHandler {
	return &ReviewHandler{
		reviewService:   reviewService,
		revisionService: revisionService,
	}
}

func (h *ReviewHandler) Pending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	pkgs, err := h.reviewService.ListPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs, "count": len(pkgs)})
}

type decisionRequest struct {
	PartitionKey string `json:"partition_key"`
	Note         string `json:"note"`
	Reviewer     string `json:"reviewer"`
}

func (h *ReviewHandler) Approve(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	pkg, err := h.reviewService.Approve(c.Request.Context(), c.Param("id"), req.PartitionKey, req.Note, req.Reviewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (h *ReviewHandler) Reject(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	pkg, err := h.reviewService.Reject(c.Request.Context(), c.Param("id"), req.PartitionKey, req.Note, req.Reviewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

// Revise routes reviewer feedback to the targeted components' generators.
// Accepts either a single component/feedback pair or an ordered "revisions"
// list; pairs are applied in request order and committed as one replace.
func (h *ReviewHandler) Revise(c *gin.Context) {
	var req struct {
		PartitionKey string `json:"partition_key"`
		Component    string `json:"component"`
		Feedback     string `json:"feedback"`
		Reviewer     string `json:"reviewer"`
		Revisions    []struct {
			Component string `json:"component"`
			Feedback  string `json:"feedback"`
		} `json:"revisions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Revisions) == 0 && req.Component != "" {
		req.Revisions = append(req.Revisions, struct {
			Component string `json:"component"`
			Feedback  string `json:"feedback"`
		}{Component: req.Component, Feedback: req.Feedback})
	}
	revisions := make([]services.ComponentRevision, 0, len(req.Revisions))
	for _, rev := range req.Revisions {
		component, err := types.ParseComponentType(rev.Component)
		if err != nil {
			respondError(c, err)
			return
		}
		revisions = append(revisions, services.ComponentRevision{Component: component, Feedback: rev.Feedback})
	}
	pkg, err := h.revisionService.Revise(c.Request.Context(), c.Param("id"), req.PartitionKey, revisions, req.Reviewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (h *ReviewHandler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"revisable_components": h.revisionService.Capabilities()})
}
