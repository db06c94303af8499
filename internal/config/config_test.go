package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("LLMProvider = %q", cfg.LLMProvider)
	}
	if cfg.CodeGenDelay != 2*time.Second {
		t.Fatalf("CodeGenDelay = %v", cfg.CodeGenDelay)
	}
	if cfg.RetentionDays != 180 {
		t.Fatalf("RetentionDays = %d", cfg.RetentionDays)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("GIT_AUTO_PUSH", "true")
	t.Setenv("WEBHOOK_PROJECTS", "CORE, WEB ,")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg := Load()
	if cfg.LLMProvider != "openai" {
		t.Fatalf("provider not lowercased: %q", cfg.LLMProvider)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Fatalf("temperature = %v", cfg.LLMTemperature)
	}
	if !cfg.GitAutoPush {
		t.Fatal("GitAutoPush not set")
	}
	if len(cfg.WebhookProjects) != 2 || cfg.WebhookProjects[0] != "CORE" || cfg.WebhookProjects[1] != "WEB" {
		t.Fatalf("WebhookProjects = %v", cfg.WebhookProjects)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "lots")
	t.Setenv("HTTP_TIMEOUT", "soon")

	cfg := Load()
	if cfg.LLMMaxTokens != 4096 {
		t.Fatalf("LLMMaxTokens = %d", cfg.LLMMaxTokens)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
}
