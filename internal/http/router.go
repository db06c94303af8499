package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter wires the full API surface.
func NewRouter(h *Handlers, log zerolog.Logger) *gin.Engine {
	if h.appEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log))

	r.GET("/healthz", h.Health)

	gen := r.Group("/generate")
	{
		gen.POST("/acceptance-criteria", h.GenerateAcceptanceCriteria)
		gen.POST("/test-scenarios", h.GenerateTestScenarios)
		gen.POST("/pipeline", h.RunPipeline)
		gen.POST("/pipeline/async", h.RunPipelineAsync)
		gen.GET("/providers", h.Providers)
	}

	r.GET("/history", h.History)
	r.GET("/audit", h.AuditTrail)
	r.GET("/jira/search", h.JiraSearch)

	hooks := r.Group("/webhooks")
	{
		hooks.POST("/jira", h.JiraWebhook)
		hooks.POST("/azure-devops", h.AzureWebhook)
		hooks.POST("/github", h.GitHubWebhook)
	}
	return r
}

func accessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("http request")
	}
}
