// Package session owns the per-encounter state bundle and the transitions
// that move it between idle, loading, success and failed.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/MediDx/internal/clinical"
	"github.com/Skufu/MediDx/internal/report"
)

// FailureMessage is the only error text a failed request exposes.
const FailureMessage = "Failed to generate diagnosis. Please check your input and try again."

var (
	ErrNotReady    = errors.New("age and symptoms are required")
	ErrBusy        = errors.New("a diagnosis request is already in flight")
	ErrNoDiagnoses = errors.New("no diagnoses available")
	ErrClosed      = errors.New("session closed")
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

type Modal struct {
	Kind    report.DocumentKind `json:"kind"`
	Title   string              `json:"title"`
	Content string              `json:"content"`
}

// Ticket identifies one submit. Results carrying an older ticket are dropped.
type Ticket uint64

type Snapshot struct {
	ID        uuid.UUID              `json:"id"`
	State     State                  `json:"state"`
	Record    clinical.PatientRecord `json:"record"`
	Diagnoses clinical.DiagnosisList `json:"diagnoses"`
	Loading   bool                   `json:"loading"`
	Error     string                 `json:"error,omitempty"`
	Modal     *Modal                 `json:"modal,omitempty"`
	CanSubmit bool                   `json:"canSubmit"`
	CanExport bool                   `json:"canExport"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type Session struct {
	id  uuid.UUID
	now func() time.Time

	mu         sync.Mutex
	record     clinical.PatientRecord
	diagnoses  clinical.DiagnosisList
	loading    bool
	errMsg     string
	modal      *Modal
	generation Ticket
	closed     bool
	updatedAt  time.Time
}

func New() *Session {
	return newSession(uuid.New(), time.Now)
}

func newSession(id uuid.UUID, now func() time.Time) *Session {
	return &Session{
		id:        id,
		now:       now,
		record:    clinical.NewPatientRecord(),
		diagnoses: clinical.DiagnosisList{},
		updatedAt: now(),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) touch() { s.updatedAt = s.now() }

// UpdateRecord replaces the patient record wholesale.
func (s *Session) UpdateRecord(rec clinical.PatientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.loading:
		return ErrBusy
	}
	s.record = rec
	s.touch()
	return nil
}

// Submit enters the loading state and clears any previous result. It returns
// the record to send and the ticket its outcome must be delivered with.
func (s *Session) Submit() (Ticket, clinical.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return 0, clinical.PatientRecord{}, ErrClosed
	case s.loading:
		return 0, clinical.PatientRecord{}, ErrBusy
	case !s.record.ReadyForSubmission():
		return 0, clinical.PatientRecord{}, ErrNotReady
	}

	s.generation++
	s.loading = true
	s.errMsg = ""
	s.diagnoses = clinical.DiagnosisList{}
	s.modal = nil
	s.touch()
	return s.generation, s.record, nil
}

// ReceiveResult stores list if t is the current request. It reports whether
// the result was applied.
func (s *Session) ReceiveResult(t Ticket, list clinical.DiagnosisList) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(t) {
		return false
	}
	s.loading = false
	s.diagnoses = list.Clone()
	s.touch()
	return true
}

// ReceiveError moves the session to failed with the generic message.
func (s *Session) ReceiveError(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(t) {
		return false
	}
	s.loading = false
	s.errMsg = FailureMessage
	s.diagnoses = clinical.DiagnosisList{}
	s.touch()
	return true
}

func (s *Session) current(t Ticket) bool {
	return !s.closed && s.loading && t == s.generation
}

// OpenModal renders the requested document into the modal.
func (s *Session) OpenModal(kind report.DocumentKind) (Modal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exportable(); err != nil {
		return Modal{}, err
	}
	m := Modal{
		Kind:    kind,
		Title:   kind.Title(),
		Content: kind.Render(s.record, s.diagnoses),
	}
	s.modal = &m
	s.touch()
	return m, nil
}

func (s *Session) CloseModal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modal = nil
	s.touch()
}

// ReportData returns copies of the record and diagnoses for PDF export.
func (s *Session) ReportData() (clinical.PatientRecord, clinical.DiagnosisList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exportable(); err != nil {
		return clinical.PatientRecord{}, nil, err
	}
	return s.record, s.diagnoses.Clone(), nil
}

func (s *Session) exportable() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.loading, len(s.diagnoses) == 0:
		return ErrNoDiagnoses
	}
	return nil
}

// Close ends the session. Results still in flight are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.modal = nil
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt, s.loading
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		State:     s.state(),
		Record:    s.record,
		Diagnoses: s.diagnoses.Clone(),
		Loading:   s.loading,
		Error:     s.errMsg,
		CanSubmit: !s.closed && !s.loading && s.record.ReadyForSubmission(),
		CanExport: s.exportable() == nil,
		UpdatedAt: s.updatedAt,
	}
	if s.modal != nil {
		m := *s.modal
		snap.Modal = &m
	}
	return snap
}

func (s *Session) state() State {
	switch {
	case s.loading:
		return StateLoading
	case s.errMsg != "":
		return StateFailed
	case len(s.diagnoses) > 0:
		return StateSuccess
	default:
		return StateIdle
	}
}
