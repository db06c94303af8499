package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/qaforge/qaforge/internal/adapters/azure"
	"github.com/qaforge/qaforge/internal/adapters/jira"
	"github.com/qaforge/qaforge/internal/agents"
	"github.com/qaforge/qaforge/internal/config"
	httpapi "github.com/qaforge/qaforge/internal/http"
	"github.com/qaforge/qaforge/internal/jobs"
	"github.com/qaforge/qaforge/internal/llm"
	"github.com/qaforge/qaforge/internal/logger"
	"github.com/qaforge/qaforge/internal/pipeline"
	"github.com/qaforge/qaforge/internal/repo"
	"github.com/qaforge/qaforge/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repo.Open(ctx, cfg.DBDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	model, err := llm.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("llm client init failed")
	}
	log.Info().Str("provider", model.Provider()).Msg("llm client ready")

	jiraCli := jira.New(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraAPIToken, cfg.JiraSubtaskType, cfg.HTTPTimeout, log)
	azureCli := azure.New(cfg.AzureOrg, cfg.AzureProject, cfg.AzurePAT, cfg.HTTPTimeout, log)

	analyst := agents.NewAnalyst(model, cfg.LLMTemperature, cfg.LLMMaxTokens, log)
	engineer := agents.NewEngineer(model, cfg.LLMMaxTokens, log)
	reviewer := agents.NewReviewer(model, cfg.LLMMaxTokens, log)
	gitops := agents.NewGitOps(cfg.GitRepoURL, cfg.GitToken, cfg.GitWorkspace, cfg.GitTestsPath, log)

	audit := services.NewAudit(store, log)
	generator := services.NewGenerator(jiraCli, azureCli, analyst, engineer, audit, store, services.GeneratorOptions{
		ACFieldID:    cfg.JiraACFieldID,
		AzureACField: cfg.AzureACField,
		CodeGenDelay: cfg.CodeGenDelay,
	}, log)

	orch := pipeline.NewOrchestrator(jiraCli, azureCli, analyst, engineer, reviewer, gitops, store, pipeline.Options{
		Provider:     model.Provider(),
		ACFieldID:    cfg.JiraACFieldID,
		AzureACField: cfg.AzureACField,
		AutoPush:     cfg.GitAutoPush,
		CodeGenDelay: cfg.CodeGenDelay,
	}, log)

	handlers := httpapi.NewHandlers(generator, audit, orch, store, jiraCli, httpapi.HandlersConfig{
		AppEnv:          cfg.AppEnv,
		Provider:        cfg.LLMProvider,
		Providers:       llm.Providers(cfg),
		PageLimit:       cfg.HistoryPageLimit,
		WebhookProjects: cfg.WebhookProjects,
	}, log)
	router := httpapi.NewRouter(handlers, log)

	sched := jobs.NewScheduler(store, cfg.RetentionDays, log)
	if err := sched.Start(cfg.RetentionCron); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
