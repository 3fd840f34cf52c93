// Package diagnosis asks a generative model for a ranked differential
// diagnosis and validates the shape of what comes back.
package diagnosis

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/Skufu/MediDx/internal/audit"
	"github.com/Skufu/MediDx/internal/clinical"
)

// auditTimeout bounds the audit write, which outlives the request context.
var auditTimeout = 2 * time.Second

// Model is the generative capability. Generate returns the raw text of a
// single response constrained by schema.
type Model interface {
	Name() string
	Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

type Service struct {
	model    Model
	recorder audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(model Model, recorder audit.Recorder, logger zerolog.Logger) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		model:    model,
		recorder: recorder,
		logger:   logger.With().Str("component", "diagnosis").Logger(),
		now:      time.Now,
	}
}

// RequestDifferentialDiagnoses makes one model call for rec and returns the
// diagnoses sorted by descending probability. The record is not validated
// here. Every failure is returned as *RequestFailedError.
func (s *Service) RequestDifferentialDiagnoses(ctx context.Context, rec clinical.PatientRecord) (clinical.DiagnosisList, error) {
	started := s.now()
	list, err := s.request(ctx, rec)
	s.recordOutcome(ctx, started, len(list), err)

	if err != nil {
		s.logger.Error().Err(err).
			Str("model", s.model.Name()).
			Str("failure_kind", failureKind(err)).
			Msg("diagnosis request failed")
		return nil, &RequestFailedError{Cause: err}
	}
	return list, nil
}

func (s *Service) request(ctx context.Context, rec clinical.PatientRecord) (clinical.DiagnosisList, error) {
	text, err := s.model.Generate(ctx, BuildPrompt(rec), ResponseSchema())
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", s.model.Name(), err)
	}

	list, err := ParseResponse(text)
	if err != nil {
		return nil, err
	}
	SortByProbability(list)
	return list, nil
}

func (s *Service) recordOutcome(ctx context.Context, started time.Time, count int, reqErr error) {
	e := audit.Event{
		SessionID:      audit.SessionIDFromContext(ctx),
		Model:          s.model.Name(),
		StartedAt:      started,
		Duration:       s.now().Sub(started),
		Outcome:        audit.OutcomeSuccess,
		DiagnosisCount: count,
	}
	if reqErr != nil {
		e.Outcome = audit.OutcomeFailed
		e.FailureKind = failureKind(reqErr)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.recorder.Record(ctx, e); err != nil {
		s.logger.Warn().Err(err).Msg("audit record failed")
	}
}

type responsePayload struct {
	Diagnoses *[]clinical.Diagnosis `json:"diagnoses"`
}

// ParseResponse validates the model's text against the diagnoses schema.
func ParseResponse(text string) (clinical.DiagnosisList, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Diagnoses == nil {
		return nil, ErrMalformedResponse
	}

	return clinical.DiagnosisList(*payload.Diagnoses).Clone(), nil
}

// SortByProbability orders list by descending probability. Entries with
// equal probability keep their relative order.
func SortByProbability(list clinical.DiagnosisList) {
	slices.SortStableFunc(list, func(a, b clinical.Diagnosis) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
}
