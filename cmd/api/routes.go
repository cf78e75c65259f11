package main

import (
	"log/slog"
	"net/http"
	"time"

	"memoir-platform/internal/auth"
	"memoir-platform/internal/httpapi"
	"memoir-platform/internal/rbac"
	"memoir-platform/internal/webhook"
	"memoir-platform/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

type routeDeps struct {
	Auth    *auth.Manager
	API     httpapi.Handlers
	Webhook *webhook.Handler
	Health  gin.HandlerFunc

	// CORSOrigins applies to /public only; empty allows any origin.
	CORSOrigins []string
}

func newRouter(log *slog.Logger, d routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	p := ginprometheus.NewPrometheus("gin")
	// Label by route template so trial IDs do not explode cardinality.
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if path := c.FullPath(); path != "" {
			return path
		}
		return "unmatched"
	}
	r.Use(p.HandlerFunc())

	registerRoutes(r, d)
	return r
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", d.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks. Signature validation happens in the handler.
	hooks := r.Group("/webhooks")
	{
		hooks.GET("/whatsapp", d.Webhook.Verify)
		hooks.POST("/whatsapp", d.Webhook.Receive)
	}

	// Public album page data, read by the browser.
	public := r.Group("/public")
	public.Use(cors.New(corsConfig(d.CORSOrigins)))
	{
		public.GET("/albums/:trial_id", d.API.PublicAlbum)
	}

	// Internal API for the payments backend and support tooling.
	v1 := r.Group("/v1")
	v1.Use(auth.RequireToken(d.Auth))
	{
		v1.POST("/trials", rbac.RequireAnyRole(rbac.RolePayments), d.API.CreateTrial)
		v1.GET("/trials/:id", rbac.RequireAnyRole(rbac.RolePayments, rbac.RoleSupport), d.API.GetTrial)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
