package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edumint/edumint-backend/internal/handlers"
)

type RouterConfig struct {
	ContentHandler    *handlers.ContentHandler
	ReviewHandler     *handlers.ReviewHandler
	CurriculumHandler *handlers.CurriculumHandler
	HealthHandler     *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.Check)

	api := router.Group("/api")
	{
		// Content packages
		api.POST("/content/generate", cfg.ContentHandler.Generate)
		api.GET("/content/packages", cfg.ContentHandler.List)
		api.GET("/content/packages/:id", cfg.ContentHandler.Get)
		api.DELETE("/content/packages/:id", cfg.ContentHandler.Delete)

		// Review workflow
		api.GET("/review/pending", cfg.ReviewHandler.Pending)
		api.GET("/review/capabilities", cfg.ReviewHandler.Capabilities)
		api.POST("/review/packages/:id/approve", cfg.ReviewHandler.Approve)
		api.POST("/review/packages/:id/reject", cfg.ReviewHandler.Reject)
		api.POST("/review/packages/:id/revise", cfg.ReviewHandler.Revise)

		// Curriculum lookup
		api.GET("/curriculum", cfg.CurriculumHandler.Get)
		api.GET("/curriculum/units", cfg.CurriculumHandler.Units)
		api.GET("/curriculum/subskills/:subskill_id", cfg.CurriculumHandler.SubskillContext)
	}

	return router
}
