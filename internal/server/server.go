// Package server exposes the diagnosis workflow over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/MediDx/internal/report"
	"github.com/Skufu/MediDx/internal/session"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Diagnoser        session.Diagnoser
	Controller       *session.Controller
	Sessions         *session.Store
	PDF              *report.PDFWriter
	DB               HealthChecker
	Logger           zerolog.Logger
	StaticRoot       string
	CORSOrigins      []string
	MaxBodyBytes     int64
	DiagnosisTimeout time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		requestID(),
		requestLogger(d.Logger),
		gin.Recovery(),
		limitBodySize(d.MaxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  d.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{"Content-Disposition", requestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	if d.StaticRoot != "" {
		router.Static("/static", d.StaticRoot)
		router.StaticFile("/", filepath.Join(d.StaticRoot, "index.html"))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readyz(d.DB))

	h := &handlers{
		diagnoser:  d.Diagnoser,
		controller: d.Controller,
		sessions:   d.Sessions,
		pdf:        d.PDF,
		timeout:    d.DiagnosisTimeout,
	}

	api := router.Group("/api")
	api.POST("/diagnoses", h.diagnose)
	api.POST("/documents/:kind", h.renderDocument)

	sessions := api.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("/:id", h.getSession)
	sessions.DELETE("/:id", h.deleteSession)
	sessions.PUT("/:id/record", h.updateRecord)
	sessions.POST("/:id/submit", h.submit)
	sessions.POST("/:id/documents/:kind", h.openDocument)
	sessions.DELETE("/:id/modal", h.closeModal)
	sessions.GET("/:id/report.pdf", h.downloadReport)

	return router
}

func readyz(db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	}
}
