package diagnosis

import (
	"fmt"

	"github.com/Skufu/MediDx/internal/clinical"
)

const taskInstructions = `**Task:**
Analyze the provided patient data and generate a ranked list of the top 3-5 most likely differential diagnoses.
For each diagnosis, provide the required information in the specified JSON format.
The probabilities should be estimations for clinical support and not definitive.
For morbidity and mortality, provide a brief description including common statistics or percentages (e.g., "5-year mortality rate is approx. 10-15%").
Do not provide a final diagnosis. Frame all information as decision support for a licensed medical professional.

**Output Format:**
You MUST respond with ONLY a valid JSON object matching the provided schema. Do not include any introductory text, explanations, or markdown formatting outside of the JSON.`

// BuildPrompt renders every field of rec into the instruction sent to the
// model. Empty vitals are written as N/A.
func BuildPrompt(rec clinical.PatientRecord) string {
	return fmt.Sprintf(`You are an expert medical AI assistant, "MediDx Assistant". Your purpose is to help clinicians and medical students by generating a differential diagnosis based on patient data. You must adhere to strict safety protocols.

**Input Data:**
- Age: %s
- Sex: %s
- Vital Signs:
    - Temperature: %s
    - Heart Rate: %s
    - Respiratory Rate: %s
    - Blood Pressure: %s
    - SpO2: %s
- Symptoms: %s
- Examination Findings: %s
- Lab Results: %s
- Imaging: %s

%s
`,
		rec.Age,
		rec.Sex,
		orNA(rec.Vitals.Temp),
		orNA(rec.Vitals.HR),
		orNA(rec.Vitals.RR),
		orNA(rec.Vitals.BP),
		orNA(rec.Vitals.SpO2),
		rec.Symptoms,
		rec.Findings,
		rec.Labs,
		rec.Imaging,
		taskInstructions,
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
