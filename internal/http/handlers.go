package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
	"github.com/qaforge/qaforge/internal/pipeline"
	"github.com/qaforge/qaforge/internal/repo"
	"github.com/qaforge/qaforge/internal/services"
)

type historyStore interface {
	ListHistory(ctx context.Context, issueID string, limit, offset int) ([]repo.HistoryEntry, error)
}

type jiraSearcher interface {
	SearchIssues(ctx context.Context, jql string, limit int) ([]*domain.Story, error)
}

type pipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Handlers holds every HTTP endpoint of the service.
type Handlers struct {
	gen       *services.Generator
	audit     *services.Audit
	orch      pipelineRunner
	history   historyStore
	jira      jiraSearcher
	providers map[string]bool
	provider  string
	appEnv    string
	pageLimit int
	asyncWait time.Duration
	log       zerolog.Logger

	webhookProjects []string
}

type HandlersConfig struct {
	AppEnv          string
	Provider        string
	Providers       map[string]bool
	PageLimit       int
	WebhookProjects []string
}

func NewHandlers(gen *services.Generator, audit *services.Audit, orch pipelineRunner, history historyStore, jira jiraSearcher, cfg HandlersConfig, log zerolog.Logger) *Handlers {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 50
	}
	return &Handlers{
		gen:             gen,
		audit:           audit,
		orch:            orch,
		history:         history,
		jira:            jira,
		providers:       cfg.Providers,
		provider:        cfg.Provider,
		appEnv:          cfg.AppEnv,
		pageLimit:       cfg.PageLimit,
		asyncWait:       30 * time.Minute,
		log:             log.With().Str("component", "http").Logger(),
		webhookProjects: cfg.WebhookProjects,
	}
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.PermissionDenied:
		return http.StatusForbidden
	case errs.Upstream, errs.Parse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "provider": h.provider})
}

func (h *Handlers) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": h.provider, "configured": h.providers})
}

func (h *Handlers) GenerateAcceptanceCriteria(c *gin.Context) {
	var req services.ACRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Wrap(errs.Validation, err, "invalid request body"))
		return
	}
	res, err := h.gen.GenerateAcceptanceCriteria(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) GenerateTestScenarios(c *gin.Context) {
	var req services.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Wrap(errs.Validation, err, "invalid request body"))
		return
	}
	res, err := h.gen.GenerateTestScenarios(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) RunPipeline(c *gin.Context) {
	req, ok := h.bindPipelineRequest(c)
	if !ok {
		return
	}
	res, err := h.orch.Run(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RunPipelineAsync queues the run on a background goroutine and responds
// immediately. The run gets its own deadline detached from the request.
func (h *Handlers) RunPipelineAsync(c *gin.Context) {
	req, ok := h.bindPipelineRequest(c)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.asyncWait)
		defer cancel()
		if _, err := h.orch.Run(ctx, req); err != nil {
			h.log.Error().Err(err).Str("issue", req.IssueID).Msg("async pipeline failed to start")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "issue_id": req.IssueID})
}

func (h *Handlers) bindPipelineRequest(c *gin.Context) (pipeline.Request, bool) {
	// Both artifact kinds default on; callers opt out explicitly.
	req := pipeline.Request{GenerateAC: true, GenerateTst: true}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Wrap(errs.Validation, err, "invalid request body"))
		return req, false
	}
	if req.IssueID == "" {
		fail(c, errs.New(errs.Validation, "issue_id is required"))
		return req, false
	}
	return req, true
}

func (h *Handlers) History(c *gin.Context) {
	limit, offset := h.paging(c)
	entries, err := h.history.ListHistory(c.Request.Context(), c.Query("issue_id"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "count": len(entries)})
}

func (h *Handlers) AuditTrail(c *gin.Context) {
	limit, offset := h.paging(c)
	entries, err := h.audit.List(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "count": len(entries)})
}

func (h *Handlers) JiraSearch(c *gin.Context) {
	jql := c.Query("jql")
	if jql == "" {
		fail(c, errs.New(errs.Validation, "jql query parameter is required"))
		return
	}
	limit, _ := h.paging(c)
	stories, err := h.jira.SearchIssues(c.Request.Context(), jql, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": stories, "count": len(stories)})
}

func (h *Handlers) paging(c *gin.Context) (limit, offset int) {
	limit = h.pageLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
