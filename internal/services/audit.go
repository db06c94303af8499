package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/repo"
)

type auditStore interface {
	InsertAudit(ctx context.Context, e *repo.AuditEntry) error
	ListAudit(ctx context.Context, limit, offset int) ([]repo.AuditEntry, error)
}

// Audit records actions fire-and-forget: a failed insert is logged and never
// surfaces to the caller.
type Audit struct {
	store auditStore
	log   zerolog.Logger
}

func NewAudit(store auditStore, log zerolog.Logger) *Audit {
	return &Audit{store: store, log: log.With().Str("component", "audit").Logger()}
}

func (a *Audit) Log(actor, action, target string, detail map[string]any) {
	if a == nil || a.store == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e := &repo.AuditEntry{Actor: actor, Action: action, Target: target, Detail: payload}
		if err := a.store.InsertAudit(ctx, e); err != nil {
			a.log.Warn().Err(err).Str("action", action).Msg("audit insert failed")
		}
	}()
}

func (a *Audit) List(ctx context.Context, limit, offset int) ([]repo.AuditEntry, error) {
	return a.store.ListAudit(ctx, limit, offset)
}
