package report

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Skufu/MediDx/internal/clinical"
)

// The placeholder and disclaimer wording below is fixed text that clinicians
// sign off on. Do not compute or reword it.
const (
	DischargeDisclaimer = `**IMPORTANT NOTE FOR THE PATIENT AND CLINICIAN:**

This summary was generated with the assistance of an AI tool (MediDx Assistant) and REQUIRES thorough review, editing, and final approval by a qualified medical professional. It is not a substitute for professional clinical judgment.

**Always consult a physician or other qualified health provider with any questions you may have regarding a medical condition.**`

	ReferralDisclaimer = `**NOTE:** This referral letter was drafted with AI assistance. All clinical information and AI-generated suggestions must be verified and signed off by the referring physician. The content is for informational purposes and does not constitute a formal diagnosis. **Please consult a physician for final medical decisions.**`

	physicianToComplete = "[**PHYSICIAN TO COMPLETE**"
	rule                = "---------------------------------"
)

var dischargeTmpl = template.Must(template.New("discharge").Parse(`DISCHARGE SUMMARY
` + rule + `

Date: {{.Date}}

Patient Information:
Age: {{.Age}}
Sex: {{.Sex}}

Vital Signs:
{{.Vitals}}

Presenting Complaint:
{{.Symptoms}}

Key Examination & Investigation Findings:
- Examination: {{.Findings}}
- Labs: {{.Labs}}
- Imaging: {{.Imaging}}

AI-Assisted Differential Diagnoses Considered:
{{.Diagnoses}}

Working Diagnosis / Plan:
` + physicianToComplete + ` - Based on clinical judgment, list the most likely diagnosis and management plan.]

Discharge Medications:
` + physicianToComplete + `]

Follow-up:
` + physicianToComplete + ` - e.g., Follow up with primary care physician in 1 week.]

` + rule + `
` + DischargeDisclaimer + `
`))

var referralTmpl = template.Must(template.New("referral").Parse(`[Physician's Name/Office]
[Address]
[Phone Number]
[Date: {{.Date}}]

[Specialist's Name/Department]
[Clinic/Hospital Address]

RE: Patient Referral - Age {{.Age}}, {{.Sex}}

Dear Dr. [Specialist's Last Name],

I am referring this {{.Age}}-year-old {{.SexLower}} for your expert consultation regarding [**PHYSICIAN TO INSERT REASON, e.g., evaluation of autoimmune disease**].

The patient presented with the following symptoms:
{{.Symptoms}}

Vital Signs on presentation:
{{.Vitals}}

Relevant findings include:
- Examination: {{.Findings}}
- Labs: {{.Labs}}
- Imaging: {{.Imaging}}

An AI-assisted differential diagnosis tool was utilized for clinical support and suggested the following possibilities based on the provided data:
{{.Diagnoses}}

Given these findings, your assessment and recommendations for further management would be greatly appreciated. All relevant reports have been attached.

Thank you for your time and consideration.

Sincerely,

[Physician's Name]

` + rule + `
` + ReferralDisclaimer + `
`))

type documentData struct {
	Date      string
	Age       string
	Sex       string
	SexLower  string
	Vitals    string
	Symptoms  string
	Findings  string
	Labs      string
	Imaging   string
	Diagnoses string
}

func newDocumentData(rec clinical.PatientRecord, list clinical.DiagnosisList) documentData {
	return documentData{
		Date:      formatDate(now()),
		Age:       rec.Age,
		Sex:       string(rec.Sex),
		SexLower:  strings.ToLower(string(rec.Sex)),
		Vitals:    FormatVitals(rec.Vitals),
		Symptoms:  rec.Symptoms,
		Findings:  orNA(rec.Findings),
		Labs:      orNA(rec.Labs),
		Imaging:   orNA(rec.Imaging),
		Diagnoses: FormatDiagnosesList(list),
	}
}

// DischargeSummary drafts a discharge summary for physician review.
func DischargeSummary(rec clinical.PatientRecord, list clinical.DiagnosisList) string {
	return execute(dischargeTmpl, newDocumentData(rec, list))
}

// ReferralLetter drafts a specialist referral letter for physician review.
func ReferralLetter(rec clinical.PatientRecord, list clinical.DiagnosisList) string {
	return execute(referralTmpl, newDocumentData(rec, list))
}

func execute(t *template.Template, data documentData) string {
	var b strings.Builder
	// The templates only reference string fields of documentData, so
	// Execute can only fail on a write error, which strings.Builder never
	// returns.
	if err := t.Execute(&b, data); err != nil {
		panic(fmt.Sprintf("report: render %s: %v", t.Name(), err))
	}
	return b.String()
}

type DocumentKind string

const (
	Discharge DocumentKind = "discharge"
	Referral  DocumentKind = "referral"
)

func ParseDocumentKind(s string) (DocumentKind, error) {
	switch k := DocumentKind(strings.ToLower(s)); k {
	case Discharge, Referral:
		return k, nil
	default:
		return "", fmt.Errorf("unknown document kind %q", s)
	}
}

func (k DocumentKind) Title() string {
	if k == Referral {
		return "Referral Letter"
	}
	return "Discharge Summary"
}

func (k DocumentKind) Render(rec clinical.PatientRecord, list clinical.DiagnosisList) string {
	if k == Referral {
		return ReferralLetter(rec, list)
	}
	return DischargeSummary(rec, list)
}
