package llm

import (
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// BuildSystemPrompt states the task, the output keys and the formatting rules.
func BuildSystemPrompt() string {
	parts := []string{
		"You analyze medical reports. Return ONLY a JSON object that matches the provided JSON Schema, with no other text.",
		"Keys: 'summary' is a brief plain-text summary of the report.",
		"'conditions' lists diagnoses and medical conditions, one per item.",
		"'medications' lists drugs with dose and frequency when stated, one per item.",
		"'treatments' lists procedures, therapies and care-plan actions, one per item.",
		"'vitals' is an object keyed by vital name with the reading including its unit as the value. " +
			"Use only these names: " + strings.Join(constants.VitalNames(), ", ") + ". " +
			"Write blood pressure as systolic/diastolic.",
		"Use simple strings. Do not nest objects inside lists.",
		"Only report what the document states; never guess. Use an empty list or object when nothing applies.",
		"Never output null.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the document text and, when the text was cut, says so.
func BuildUserPrompt(req AnalyzeRequest) string {
	var b strings.Builder
	if f := strings.TrimSpace(req.Filename); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	if req.Truncated {
		b.WriteString("Note: the report was truncated; analyze the part shown.\n")
	}
	b.WriteString("\nMedical Report:\n")
	b.WriteString(req.Text)
	b.WriteString("\n\nRespond with ONLY the JSON object.")
	return b.String()
}

// SchemaPrompt renders the record schema for inclusion as a message.
func SchemaPrompt() string {
	return "JSON Schema:\n" + mustJSON(BuildRecordJSONSchema())
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
