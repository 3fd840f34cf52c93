package diagnosis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/Skufu/MediDx/internal/audit"
	"github.com/Skufu/MediDx/internal/clinical"
)

type fakeModel struct {
	text   string
	err    error
	calls  int
	prompt string
	schema *genai.Schema
}

func (f *fakeModel) Name() string { return "fake-model" }

func (f *fakeModel) Generate(_ context.Context, prompt string, schema *genai.Schema) (string, error) {
	f.calls++
	f.prompt = prompt
	f.schema = schema
	return f.text, f.err
}

type fakeRecorder struct {
	events []audit.Event
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, e audit.Event) error {
	f.events = append(f.events, e)
	return f.err
}

func lupusRecord() clinical.PatientRecord {
	return clinical.PatientRecord{
		Age:      "28",
		Sex:      clinical.SexFemale,
		Symptoms: "fever, joint pain, malar rash",
	}
}

func TestRequestDifferentialDiagnosesSorts(t *testing.T) {
	model := &fakeModel{text: `{"diagnoses":[
		{"diagnosisName":"Rheumatoid Arthritis","probability":40,"supportingEvidence":["joint pain"],"contradictingEvidence":[],"recommendedTests":["RF"],"treatmentSuggestions":{"firstLine":[],"secondLine":[],"lifestyle":[]},"morbidity":"m","mortality":"m"},
		{"diagnosisName":"Systemic Lupus Erythematosus","probability":85,"supportingEvidence":["malar rash"],"contradictingEvidence":[],"recommendedTests":["ANA"],"treatmentSuggestions":{"firstLine":["Hydroxychloroquine"],"secondLine":[],"lifestyle":["Sun protection"]},"morbidity":"m","mortality":"m"}
	]}`}
	svc := NewService(model, nil, zerolog.Nop())

	list, err := svc.RequestDifferentialDiagnoses(context.Background(), lupusRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", model.calls)
	}
	if len(list) != 2 || list[0].Probability != 85 || list[1].Probability != 40 {
		t.Fatalf("expected [85, 40], got %+v", list)
	}
	if list[0].TreatmentSuggestions.FirstLine[0] != "Hydroxychloroquine" {
		t.Fatalf("treatment suggestions not decoded: %+v", list[0].TreatmentSuggestions)
	}
	if model.schema == nil {
		t.Fatal("expected the response schema to be sent with the request")
	}
}

func TestSortByProbabilityIsStable(t *testing.T) {
	list := clinical.DiagnosisList{
		{DiagnosisName: "a", Probability: 30},
		{DiagnosisName: "b", Probability: 60},
		{DiagnosisName: "c", Probability: 30},
		{DiagnosisName: "d", Probability: 60},
		{DiagnosisName: "e", Probability: 90},
		{DiagnosisName: "f", Probability: 30},
	}
	SortByProbability(list)

	var names []string
	for i, d := range list {
		names = append(names, d.DiagnosisName)
		if i > 0 && list[i-1].Probability < d.Probability {
			t.Fatalf("list not non-increasing at %d: %+v", i, list)
		}
	}
	if got := strings.Join(names, ""); got != "ebdacf" {
		t.Fatalf("expected stable order ebdacf, got %s", got)
	}
}

func TestRequestDifferentialDiagnosesFailures(t *testing.T) {
	cases := []struct {
		name  string
		model *fakeModel
		cause error
	}{
		{"empty response", &fakeModel{text: ""}, ErrEmptyResponse},
		{"whitespace response", &fakeModel{text: "  \n"}, ErrEmptyResponse},
		{"missing diagnoses", &fakeModel{text: `{"results":[]}`}, ErrMalformedResponse},
		{"null diagnoses", &fakeModel{text: `{"diagnoses":null}`}, ErrMalformedResponse},
		{"not json", &fakeModel{text: "```json\n{}\n```"}, ErrMalformedResponse},
		{"wrong type", &fakeModel{text: `{"diagnoses":"SLE"}`}, ErrMalformedResponse},
		{"transport", &fakeModel{err: errors.New("dial tcp: connection refused")}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.model, nil, zerolog.Nop())
			list, err := svc.RequestDifferentialDiagnoses(context.Background(), lupusRecord())
			if list != nil {
				t.Fatalf("expected no list, got %+v", list)
			}
			if !errors.Is(err, ErrRequestFailed) {
				t.Fatalf("expected ErrRequestFailed, got %v", err)
			}
			var rf *RequestFailedError
			if !errors.As(err, &rf) || rf.Cause == nil {
				t.Fatalf("expected RequestFailedError with cause, got %v", err)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Fatalf("expected cause %v, got %v", tc.cause, err)
			}
		})
	}
}

func TestRequestDoesNotValidateRecord(t *testing.T) {
	model := &fakeModel{text: `{"diagnoses":[]}`}
	svc := NewService(model, nil, zerolog.Nop())
	list, err := svc.RequestDifferentialDiagnoses(context.Background(), clinical.PatientRecord{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.calls != 1 || len(list) != 0 {
		t.Fatalf("expected one call and empty list, got calls=%d list=%+v", model.calls, list)
	}
}

func TestRequestRecordsAuditEvents(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	sid := uuid.New()
	ctx := audit.WithSessionID(context.Background(), sid)

	ok := NewService(&fakeModel{text: `{"diagnoses":[{"diagnosisName":"x","probability":10}]}`}, rec, zerolog.Nop())
	if _, err := ok.RequestDifferentialDiagnoses(ctx, lupusRecord()); err != nil {
		t.Fatalf("audit failure must not fail the request: %v", err)
	}
	bad := NewService(&fakeModel{text: "{}"}, rec, zerolog.Nop())
	_, _ = bad.RequestDifferentialDiagnoses(ctx, lupusRecord())

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	first, second := rec.events[0], rec.events[1]
	if first.Outcome != audit.OutcomeSuccess || first.DiagnosisCount != 1 || first.SessionID != sid || first.Model != "fake-model" {
		t.Fatalf("unexpected success event %+v", first)
	}
	if second.Outcome != audit.OutcomeFailed || second.FailureKind != "malformed_response" {
		t.Fatalf("unexpected failure event %+v", second)
	}
}

type blockingRecorder struct{}

func (blockingRecorder) Record(ctx context.Context, _ audit.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAuditWriteIsBounded(t *testing.T) {
	old := auditTimeout
	auditTimeout = 20 * time.Millisecond
	t.Cleanup(func() { auditTimeout = old })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(&fakeModel{text: `{"diagnoses":[]}`}, blockingRecorder{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestDifferentialDiagnoses(ctx, lupusRecord())
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("audit timeout must not fail the request: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request blocked on a stalled audit write")
	}
}

func TestParseResponseNormalisesSlices(t *testing.T) {
	list, err := ParseResponse(`{"diagnoses":[{"diagnosisName":"x","probability":10}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list[0].SupportingEvidence == nil || list[0].TreatmentSuggestions.FirstLine == nil {
		t.Fatalf("expected empty slices, got %+v", list[0])
	}
}
