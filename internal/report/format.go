// Package report turns a patient record and its differential diagnoses into
// clinician-facing text documents and a PDF report.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skufu/MediDx/internal/clinical"
)

const (
	notRecorded   = "Not recorded."
	noDiagnoses   = "No potential diagnoses generated."
	notApplicable = "N/A"
	vitalsSep     = " | "
)

// now is swapped in tests so document dates are deterministic.
var now = time.Now

func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// FormatVitals joins the recorded vitals in the order temp, hr, rr, bp, spo2.
func FormatVitals(v clinical.Vitals) string {
	if v.Empty() {
		return notRecorded
	}

	parts := make([]string, 0, 5)
	if v.Temp != "" {
		parts = append(parts, fmt.Sprintf("Temp: %s°C", v.Temp))
	}
	if v.HR != "" {
		parts = append(parts, fmt.Sprintf("HR: %s bpm", v.HR))
	}
	if v.RR != "" {
		parts = append(parts, fmt.Sprintf("RR: %s breaths/min", v.RR))
	}
	if v.BP != "" {
		parts = append(parts, fmt.Sprintf("BP: %s mmHg", v.BP))
	}
	if v.SpO2 != "" {
		parts = append(parts, fmt.Sprintf("SpO2: %s%%", v.SpO2))
	}
	return strings.Join(parts, vitalsSep)
}

// FormatDiagnosesList renders one numbered line per diagnosis.
func FormatDiagnosesList(list clinical.DiagnosisList) string {
	if len(list) == 0 {
		return noDiagnoses
	}

	lines := make([]string, len(list))
	for i, d := range list {
		lines[i] = fmt.Sprintf("%d. %s (Likelihood: %s%%)", i+1, d.DiagnosisName, FormatProbability(d.Probability))
	}
	return strings.Join(lines, "\n")
}

// FormatProbability prints the shortest representation of p (85, 72.5).
func FormatProbability(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return notApplicable
	}
	return s
}
