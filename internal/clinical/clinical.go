// Package clinical holds the encounter data shared by the diagnosis service,
// the document formatters and the session controller. Every optional text
// field uses the empty string for "not provided".
package clinical

import (
	"math"
	"strings"
)

type Sex string

const (
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
	SexOther  Sex = "Other"
)

func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	default:
		return false
	}
}

type Vitals struct {
	Temp string `json:"temp"`
	HR   string `json:"hr"`
	RR   string `json:"rr"`
	BP   string `json:"bp"`
	SpO2 string `json:"spo2"`
}

func (v Vitals) Empty() bool {
	return v == Vitals{}
}

type PatientRecord struct {
	Age      string `json:"age"`
	Sex      Sex    `json:"sex" binding:"omitempty,oneof=Male Female Other"`
	Symptoms string `json:"symptoms"`
	Findings string `json:"findings"`
	Labs     string `json:"labs"`
	Imaging  string `json:"imaging"`
	Vitals   Vitals `json:"vitals"`
}

// NewPatientRecord returns the all-empty record a session starts with.
func NewPatientRecord() PatientRecord {
	return PatientRecord{Sex: SexFemale}
}

// ReadyForSubmission reports whether age and symptoms are both filled in.
func (r PatientRecord) ReadyForSubmission() bool {
	return strings.TrimSpace(r.Age) != "" && strings.TrimSpace(r.Symptoms) != ""
}

type TreatmentSuggestions struct {
	FirstLine  []string `json:"firstLine"`
	SecondLine []string `json:"secondLine"`
	Lifestyle  []string `json:"lifestyle"`
}

type Diagnosis struct {
	DiagnosisName         string               `json:"diagnosisName"`
	Probability           float64              `json:"probability"`
	SupportingEvidence    []string             `json:"supportingEvidence"`
	ContradictingEvidence []string             `json:"contradictingEvidence"`
	RecommendedTests      []string             `json:"recommendedTests"`
	TreatmentSuggestions  TreatmentSuggestions `json:"treatmentSuggestions"`
	Morbidity             string               `json:"morbidity"`
	Mortality             string               `json:"mortality"`
}

// BarPercent clamps the probability to [0, 100] for drawing a likelihood bar.
// Text output always shows the reported value unchanged.
func (d Diagnosis) BarPercent() float64 {
	switch {
	case math.IsNaN(d.Probability), d.Probability < 0:
		return 0
	case d.Probability > 100:
		return 100
	default:
		return d.Probability
	}
}

// Clone returns a deep copy with nil slices replaced by empty ones.
func (d Diagnosis) Clone() Diagnosis {
	d.SupportingEvidence = cloneStrings(d.SupportingEvidence)
	d.ContradictingEvidence = cloneStrings(d.ContradictingEvidence)
	d.RecommendedTests = cloneStrings(d.RecommendedTests)
	d.TreatmentSuggestions = TreatmentSuggestions{
		FirstLine:  cloneStrings(d.TreatmentSuggestions.FirstLine),
		SecondLine: cloneStrings(d.TreatmentSuggestions.SecondLine),
		Lifestyle:  cloneStrings(d.TreatmentSuggestions.Lifestyle),
	}
	return d
}

type DiagnosisList []Diagnosis

func (l DiagnosisList) Clone() DiagnosisList {
	out := make(DiagnosisList, len(l))
	for i, d := range l {
		out[i] = d.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
