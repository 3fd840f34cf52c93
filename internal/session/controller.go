package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Skufu/MediDx/internal/audit"
	"github.com/Skufu/MediDx/internal/clinical"
)

type Diagnoser interface {
	RequestDifferentialDiagnoses(ctx context.Context, rec clinical.PatientRecord) (clinical.DiagnosisList, error)
}

// Controller sequences submit, the diagnosis call and the resulting
// transition for a session.
type Controller struct {
	diagnoser Diagnoser
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewController(d Diagnoser, timeout time.Duration, logger zerolog.Logger) *Controller {
	return &Controller{
		diagnoser: d,
		timeout:   timeout,
		logger:    logger.With().Str("component", "session").Logger(),
	}
}

// Submit runs one diagnosis request for s. A failed request is reported
// through the session state, not the returned error; the error is only set
// when the submit itself was refused (ErrNotReady, ErrBusy, ErrClosed).
//
// The request is detached from ctx cancellation: once issued it runs to
// completion or timeout, and a closed session simply drops the result.
func (c *Controller) Submit(ctx context.Context, s *Session) (Snapshot, error) {
	ticket, rec, err := s.Submit()
	if err != nil {
		return s.Snapshot(), err
	}

	reqCtx := audit.WithSessionID(context.WithoutCancel(ctx), s.ID())
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.timeout)
		defer cancel()
	}

	log := c.logger.With().Str("session_id", s.ID().String()).Uint64("ticket", uint64(ticket)).Logger()
	list, err := c.diagnoser.RequestDifferentialDiagnoses(reqCtx, rec)

	var applied bool
	if err != nil {
		log.Error().Err(err).Msg("diagnosis request failed")
		applied = s.ReceiveError(ticket)
	} else {
		applied = s.ReceiveResult(ticket, list)
		log.Info().Int("diagnoses", len(list)).Msg("diagnosis request completed")
	}
	if !applied {
		log.Debug().Msg("session closed before result arrived; result dropped")
	}
	return s.Snapshot(), nil
}
