package diagnosis

import "google.golang.org/genai"

func stringArray(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Items:       &genai.Schema{Type: genai.TypeString},
		Description: description,
	}
}

// ResponseSchema is the output constraint handed to the model: an object
// with a diagnoses array whose entries match clinical.Diagnosis.
func ResponseSchema() *genai.Schema {
	diagnosis := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"diagnosisName":         {Type: genai.TypeString, Description: "Name of the medical condition"},
			"probability":           {Type: genai.TypeNumber, Description: "A score from 0 to 100 representing the likelihood."},
			"supportingEvidence":    stringArray("Key findings from the input that support this diagnosis."),
			"contradictingEvidence": stringArray("Key findings that argue against this diagnosis."),
			"recommendedTests":      stringArray("Next logical investigations."),
			"treatmentSuggestions": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"firstLine":  stringArray(""),
					"secondLine": stringArray(""),
					"lifestyle":  stringArray(""),
				},
				Required: []string{"firstLine", "secondLine", "lifestyle"},
			},
			"morbidity": {Type: genai.TypeString, Description: "A brief description of the potential morbidity, including percentages or common statistics."},
			"mortality": {Type: genai.TypeString, Description: "A brief description of the mortality rate or risk, including percentages or common statistics (e.g., '5-year mortality rate is 10-15%')."},
		},
		Required: []string{
			"diagnosisName", "probability", "supportingEvidence", "contradictingEvidence",
			"recommendedTests", "treatmentSuggestions", "morbidity", "mortality",
		},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"diagnoses": {Type: genai.TypeArray, Items: diagnosis},
		},
		Required: []string{"diagnoses"},
	}
}
