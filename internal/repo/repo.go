package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/errs"
)

// Repo wraps the Postgres pool behind the persistence operations the rest
// of the service needs.
type Repo struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.Upstream, err, "ping postgres")
	}
	return &Repo{pool: pool, log: log.With().Str("component", "repo").Logger()}, nil
}

func (r *Repo) Close() { r.pool.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS generation_history (
    id          BIGSERIAL PRIMARY KEY,
    issue_id    TEXT NOT NULL,
    user_id     TEXT NOT NULL DEFAULT '',
    provider    TEXT NOT NULL DEFAULT '',
    success     BOOLEAN NOT NULL,
    ac_count    INT NOT NULL DEFAULT 0,
    test_count  INT NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    steps       JSONB NOT NULL DEFAULT '[]',
    duration_ms BIGINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_history_issue ON generation_history (issue_id, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_logs (
    id         BIGSERIAL PRIMARY KEY,
    actor      TEXT NOT NULL DEFAULT '',
    action     TEXT NOT NULL,
    target     TEXT NOT NULL DEFAULT '',
    detail     JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs (created_at DESC);
`

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return errs.Wrap(errs.Upstream, err, "ensure schema")
	}
	return nil
}

// HistoryEntry is one persisted pipeline or generation run.
type HistoryEntry struct {
	ID         int64           `json:"id"`
	IssueID    string          `json:"issue_id"`
	UserID     string          `json:"user_id,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Success    bool            `json:"success"`
	ACCount    int             `json:"ac_count"`
	TestCount  int             `json:"test_count"`
	Error      string          `json:"error,omitempty"`
	Steps      json.RawMessage `json:"steps,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (r *Repo) InsertHistory(ctx context.Context, e *HistoryEntry) error {
	steps := e.Steps
	if steps == nil {
		steps = json.RawMessage("[]")
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO generation_history (issue_id, user_id, provider, success, ac_count, test_count, error, steps, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		e.IssueID, e.UserID, e.Provider, e.Success, e.ACCount, e.TestCount, e.Error, steps, e.DurationMS,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return errs.Wrap(errs.Upstream, err, "insert history")
	}
	return nil
}

// ListHistory returns the most recent runs, optionally filtered by issue.
func (r *Repo) ListHistory(ctx context.Context, issueID string, limit, offset int) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, issue_id, user_id, provider, success, ac_count, test_count, error, steps, duration_ms, created_at
		FROM generation_history
		WHERE ($1 = '' OR issue_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, issueID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "query history")
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.IssueID, &e.UserID, &e.Provider, &e.Success,
			&e.ACCount, &e.TestCount, &e.Error, &e.Steps, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.Upstream, err, "scan history row")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeHistory deletes runs older than the cutoff and reports how many rows
// went away.
func (r *Repo) PurgeHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generation_history WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, errs.Wrap(errs.Upstream, err, "purge history")
	}
	return tag.RowsAffected(), nil
}

// AuditEntry is one immutable action record.
type AuditEntry struct {
	ID        int64           `json:"id"`
	Actor     string          `json:"actor,omitempty"`
	Action    string          `json:"action"`
	Target    string          `json:"target,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r *Repo) InsertAudit(ctx context.Context, e *AuditEntry) error {
	detail := e.Detail
	if detail == nil {
		detail = json.RawMessage("{}")
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (actor, action, target, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Actor, e.Action, e.Target, detail,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return errs.Wrap(errs.Upstream, err, "insert audit")
	}
	return nil
}

func (r *Repo) ListAudit(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor, action, target, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "query audit")
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &e.Detail, &e.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.Upstream, err, "scan audit row")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TryAdvisoryLock guards singleton jobs across replicas.
func (r *Repo) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var got bool
	if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		return false, errs.Wrap(errs.Upstream, err, "advisory lock")
	}
	return got, nil
}

func (r *Repo) AdvisoryUnlock(ctx context.Context, key int64) {
	if _, err := r.pool.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
		r.log.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
	}
}
