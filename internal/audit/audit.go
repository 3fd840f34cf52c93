// Package audit records the outcome of every diagnosis request. Events carry
// timing and outcome metadata only; patient data is never written.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

type Event struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Model          string
	StartedAt      time.Time
	Duration       time.Duration
	Outcome        Outcome
	FailureKind    string
	DiagnosisCount int
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards events. Used when ENABLE_DB is off.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

type sessionKey struct{}

func WithSessionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func SessionIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(sessionKey{}).(uuid.UUID)
	return id
}
