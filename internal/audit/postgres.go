package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS diagnosis_request_audit (
	id              UUID PRIMARY KEY,
	session_id      UUID,
	model           TEXT        NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT      NOT NULL,
	outcome         TEXT        NOT NULL,
	failure_kind    TEXT,
	diagnosis_count INTEGER     NOT NULL
)`

const insertSQL = `
INSERT INTO diagnosis_request_audit
	(id, session_id, model, started_at, duration_ms, outcome, failure_kind, diagnosis_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type PGRecorder struct {
	db execer
}

func NewPGRecorder(db execer) *PGRecorder {
	return &PGRecorder{db: db}
}

func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

func (r *PGRecorder) Record(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var sessionID *uuid.UUID
	if e.SessionID != uuid.Nil {
		sessionID = &e.SessionID
	}
	var failureKind *string
	if e.FailureKind != "" {
		failureKind = &e.FailureKind
	}

	_, err := r.db.Exec(ctx, insertSQL,
		e.ID, sessionID, e.Model, e.StartedAt.UTC(), e.Duration.Milliseconds(),
		string(e.Outcome), failureKind, e.DiagnosisCount)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}
