package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/MediDx/internal/clinical"
	"github.com/Skufu/MediDx/internal/report"
	"github.com/Skufu/MediDx/internal/session"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(ctx context.Context) error {
	return f.err
}

type fakeDiagnoser struct {
	list  clinical.DiagnosisList
	err   error
	calls int
}

func (f *fakeDiagnoser) RequestDifferentialDiagnoses(_ context.Context, _ clinical.PatientRecord) (clinical.DiagnosisList, error) {
	f.calls++
	return f.list.Clone(), f.err
}

func sortedPair() clinical.DiagnosisList {
	return clinical.DiagnosisList{
		{DiagnosisName: "Systemic Lupus Erythematosus", Probability: 85},
		{DiagnosisName: "Rheumatoid Arthritis", Probability: 40},
	}
}

func newTestRouter(t *testing.T, d *fakeDiagnoser, pdf *report.PDFWriter) (*gin.Engine, *session.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := session.NewStore()
	router := NewRouter(Deps{
		Diagnoser:  d,
		Controller: session.NewController(d, 0, zerolog.Nop()),
		Sessions:   store,
		PDF:        pdf,
		Logger:     zerolog.Nop(),
	})
	return router, store
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, w.Body.String())
	}
	return snap
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDiagnoser{}, nil)

	w := do(router, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		db   HealthChecker
		code int
	}{
		{"disabled", nil, http.StatusOK},
		{"healthy", fakeDB{}, http.StatusOK},
		{"unhealthy", fakeDB{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(Deps{DB: tc.db, Sessions: session.NewStore(), Logger: zerolog.Nop()})
			if w := do(router, "GET", "/readyz", ""); w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

// Ensure limitBodySize middleware allows small payloads and blocks large ones.
func TestLimitBodySize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limitBodySize(10))
	router.POST("/echo", func(c *gin.Context) {
		_, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("within limit", func(t *testing.T) {
		if w := do(router, "POST", "/echo", "12345"); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		if w := do(router, "POST", "/echo", "01234567890"); w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
	})
}

func TestDiagnoseValidation(t *testing.T) {
	d := &fakeDiagnoser{}
	router, _ := newTestRouter(t, d, nil)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing age", `{"age":"","sex":"Male","symptoms":"cough"}`, http.StatusUnprocessableEntity},
		{"missing symptoms", `{"age":"40","sex":"Male","symptoms":""}`, http.StatusUnprocessableEntity},
		{"bad sex", `{"age":"40","sex":"unknown","symptoms":"cough"}`, http.StatusUnprocessableEntity},
		{"missing sex", `{"age":"40","symptoms":"cough"}`, http.StatusUnprocessableEntity},
		{"not json", `age=40`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(router, "POST", "/api/diagnoses", tc.body)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
	if d.calls != 0 {
		t.Fatalf("invalid records must never reach the service, got %d calls", d.calls)
	}
}

func TestDiagnoseSuccessAndFailure(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDiagnoser{list: sortedPair()}, nil)
	body := `{"age":"28","sex":"Female","symptoms":"fever, joint pain, malar rash"}`

	w := do(router, "POST", "/api/diagnoses", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Diagnoses clinical.DiagnosisList `json:"diagnoses"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Diagnoses) != 2 {
		t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
	}

	failing, _ := newTestRouter(t, &fakeDiagnoser{err: errors.New("boom")}, nil)
	w = do(failing, "POST", "/api/diagnoses", body)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), session.FailureMessage) || strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("expected only the generic message, got %s", w.Body.String())
	}
}

func TestRenderDocument(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDiagnoser{}, nil)
	body := `{"patient":{"age":"28","sex":"Female","symptoms":"fever"},"diagnoses":[{"diagnosisName":"SLE","probability":85}]}`

	w := do(router, "POST", "/api/documents/discharge", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var m session.Modal
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.Title != "Discharge Summary" || !strings.Contains(m.Content, "1. SLE (Likelihood: 85%)") {
		t.Fatalf("unexpected document %+v", m)
	}

	if w := do(router, "POST", "/api/documents/prescription", body); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown kind, got %d", w.Code)
	}
	if w := do(router, "POST", "/api/documents/referral", `{"patient":{"age":"28"},"diagnoses":[]}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without diagnoses, got %d", w.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	d := &fakeDiagnoser{list: sortedPair()}
	router, store := newTestRouter(t, d, report.NewPDFWriter())

	w := do(router, "POST", "/api/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	snap := decodeSnapshot(t, w)
	if snap.State != session.StateIdle || snap.CanSubmit || snap.CanExport {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
	base := "/api/sessions/" + snap.ID.String()

	// Actions other than editing are refused until a result exists.
	if w := do(router, "POST", base+"/submit", ""); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty record, got %d", w.Code)
	}
	if w := do(router, "POST", base+"/documents/discharge", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before diagnoses, got %d", w.Code)
	}
	if w := do(router, "GET", base+"/report.pdf", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before diagnoses, got %d", w.Code)
	}
	if d.calls != 0 {
		t.Fatalf("expected no service calls, got %d", d.calls)
	}

	w = do(router, "PUT", base+"/record", `{"age":"28","sex":"Female","symptoms":"fever, joint pain, malar rash"}`)
	if snap := decodeSnapshot(t, w); !snap.CanSubmit {
		t.Fatalf("expected submit to be enabled, got %+v", snap)
	}

	w = do(router, "POST", base+"/submit", "")
	snap = decodeSnapshot(t, w)
	if snap.State != session.StateSuccess || len(snap.Diagnoses) != 2 || snap.Diagnoses[0].Probability != 85 {
		t.Fatalf("unexpected snapshot after submit %+v", snap)
	}

	w = do(router, "POST", base+"/documents/referral", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Referral Letter") {
		t.Fatalf("unexpected referral response %d: %s", w.Code, w.Body.String())
	}
	if snap := decodeSnapshot(t, do(router, "GET", base, "")); snap.Modal == nil {
		t.Fatal("expected modal to be open")
	}
	if snap := decodeSnapshot(t, do(router, "DELETE", base+"/modal", "")); snap.Modal != nil {
		t.Fatal("expected modal to be closed")
	}

	w = do(router, "GET", base+"/report.pdf", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected pdf response %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "MediDx-Report-") {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	if w := do(router, "DELETE", base, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("expected session to be removed")
	}
	if w := do(router, "GET", base, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestSessionFailedSubmit(t *testing.T) {
	router, store := newTestRouter(t, &fakeDiagnoser{err: errors.New("malformed")}, nil)
	s := store.Create()
	_ = s.UpdateRecord(clinical.PatientRecord{Age: "28", Sex: clinical.SexFemale, Symptoms: "fever"})

	w := do(router, "POST", "/api/sessions/"+s.ID().String()+"/submit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	snap := decodeSnapshot(t, w)
	if snap.State != session.StateFailed || snap.Error != session.FailureMessage || len(snap.Diagnoses) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestReportPDFUnavailable(t *testing.T) {
	router, store := newTestRouter(t, &fakeDiagnoser{list: sortedPair()}, nil)
	s := store.Create()
	_ = s.UpdateRecord(clinical.PatientRecord{Age: "28", Sex: clinical.SexFemale, Symptoms: "fever"})
	ticket, _, _ := s.Submit()
	s.ReceiveResult(ticket, sortedPair())

	w := do(router, "GET", "/api/sessions/"+s.ID().String()+"/report.pdf", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDiagnoser{}, nil)
	for _, path := range []string{"/api/sessions/not-a-uuid", "/api/sessions/7b0b0a57-8b9e-4c0b-9d7c-6c5d2f1c9a10"} {
		if w := do(router, "GET", path, ""); w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestStaticRootServed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>MediDx</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	gin.SetMode(gin.TestMode)
	router := NewRouter(Deps{StaticRoot: dir, Sessions: session.NewStore(), Logger: zerolog.Nop()})

	w := do(router, "GET", "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "MediDx") {
		t.Fatalf("unexpected index response %d: %s", w.Code, w.Body.String())
	}
}
