package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Skufu/MediDx/internal/clinical"
	"github.com/Skufu/MediDx/internal/report"
	"github.com/Skufu/MediDx/internal/session"
)

type handlers struct {
	diagnoser  session.Diagnoser
	controller *session.Controller
	sessions   *session.Store
	pdf        *report.PDFWriter
	timeout    time.Duration
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

// bindJSON decodes the request body. Malformed JSON is a 400, a sex outside
// the enumeration is a 422.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verrs):
		abortError(c, http.StatusUnprocessableEntity, "validation_failed", "sex must be one of Male, Female, Other")
	case errors.As(err, &maxErr):
		abortError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
	default:
		abortError(c, http.StatusBadRequest, "invalid_payload", "invalid payload")
	}
	return false
}

func (h *handlers) diagnose(c *gin.Context) {
	var rec clinical.PatientRecord
	if !bindJSON(c, &rec) {
		return
	}
	if !rec.ReadyForSubmission() {
		abortError(c, http.StatusUnprocessableEntity, "validation_failed", "age and symptoms are required")
		return
	}
	if !rec.Sex.Valid() {
		abortError(c, http.StatusUnprocessableEntity, "validation_failed", "sex must be one of Male, Female, Other")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	list, err := h.diagnoser.RequestDifferentialDiagnoses(ctx, rec)
	if err != nil {
		_ = c.Error(err)
		abortError(c, http.StatusBadGateway, "diagnosis_failed", session.FailureMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagnoses": list})
}

type documentRequest struct {
	Patient   clinical.PatientRecord `json:"patient"`
	Diagnoses clinical.DiagnosisList `json:"diagnoses"`
}

func (h *handlers) renderDocument(c *gin.Context) {
	kind, err := report.ParseDocumentKind(c.Param("kind"))
	if err != nil {
		abortError(c, http.StatusNotFound, "unknown_document", err.Error())
		return
	}

	var req documentRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Diagnoses) == 0 {
		abortError(c, http.StatusUnprocessableEntity, "no_diagnoses", "documents require at least one diagnosis")
		return
	}

	c.JSON(http.StatusOK, session.Modal{
		Kind:    kind,
		Title:   kind.Title(),
		Content: kind.Render(req.Patient, req.Diagnoses),
	})
}

func (h *handlers) lookup(c *gin.Context) (*session.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusNotFound, "session_not_found", "session not found")
		return nil, false
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		abortError(c, http.StatusNotFound, "session_not_found", "session not found")
		return nil, false
	}
	return s, true
}

func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		abortError(c, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, session.ErrBusy):
		abortError(c, http.StatusConflict, "request_in_flight", err.Error())
	case errors.Is(err, session.ErrNoDiagnoses):
		abortError(c, http.StatusConflict, "no_diagnoses", err.Error())
	case errors.Is(err, session.ErrNotReady):
		abortError(c, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		_ = c.Error(err)
		abortError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *handlers) createSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *handlers) getSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *handlers) deleteSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(s.ID()); err != nil {
		sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) updateRecord(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var rec clinical.PatientRecord
	if !bindJSON(c, &rec) {
		return
	}
	if rec.Sex == "" {
		rec.Sex = clinical.SexFemale
	}
	if err := s.UpdateRecord(rec); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *handlers) submit(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	snap, err := h.controller.Submit(c.Request.Context(), s)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) openDocument(c *gin.Context) {
	kind, err := report.ParseDocumentKind(c.Param("kind"))
	if err != nil {
		abortError(c, http.StatusNotFound, "unknown_document", err.Error())
		return
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	m, err := s.OpenModal(kind)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) closeModal(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	s.CloseModal()
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *handlers) downloadReport(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	rec, list, err := s.ReportData()
	if err != nil {
		sessionError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.pdf.Write(&buf, rec, list); err != nil {
		_ = c.Error(err)
		if errors.Is(err, report.ErrPDFUnavailable) {
			abortError(c, http.StatusServiceUnavailable, "pdf_unavailable",
				"PDF generation library could not be loaded. Please try again later.")
			return
		}
		abortError(c, http.StatusInternalServerError, "pdf_failed", "failed to generate PDF")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.ReportFilename(time.Now())+`"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
