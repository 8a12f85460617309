package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Record field names as they appear in the model's JSON reply.
const (
	FieldSummary     = "summary"
	FieldConditions  = "conditions"
	FieldMedications = "medications"
	FieldVitals      = "vitals"
	FieldTreatments  = "treatments"
)

// Keys of a structured vital reading.
const (
	ReadingValue     = "value"
	ReadingSystolic  = "systolic"
	ReadingDiastolic = "diastolic"
	ReadingUnit      = "unit"
)

// ListFields are the record fields holding lists of strings.
var ListFields = []string{FieldConditions, FieldMedications, FieldTreatments}

var recordFields = []string{FieldSummary, FieldConditions, FieldMedications, FieldVitals, FieldTreatments}

// BuildRecordJSONSchema returns the JSON Schema (draft 2020-12 subset) the
// model is asked to follow. Vitals may come as a name->reading object or as
// a list of "name: reading" strings. A reading is a string, a number, or an
// object of value/systolic/diastolic/unit.
func BuildRecordJSONSchema() map[string]any {
	stringList := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	scalar := map[string]any{"type": []string{"number", "string"}}
	// a structured reading must carry a value or, for blood pressure, a systolic
	readingSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			ReadingValue:     scalar,
			ReadingSystolic:  scalar,
			ReadingDiastolic: scalar,
			ReadingUnit:      map[string]any{"type": "string"},
		},
		"anyOf": []any{
			map[string]any{"required": []string{ReadingValue}},
			map[string]any{"required": []string{ReadingSystolic}},
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			FieldSummary:     map[string]any{"type": "string"},
			FieldConditions:  stringList,
			FieldMedications: stringList,
			FieldTreatments:  stringList,
			FieldVitals: map[string]any{
				"anyOf": []any{
					map[string]any{
						"type": "object",
						"additionalProperties": map[string]any{
							"anyOf": []any{
								map[string]any{"type": []string{"string", "number"}},
								readingSchema,
							},
						},
					},
					stringList,
				},
			},
		},
		"required": []string{FieldSummary, FieldConditions, FieldMedications, FieldVitals, FieldTreatments},
	}
}

var recordSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema(BuildRecordJSONSchema())
})

// RecordSchema returns the compiled record schema.
func RecordSchema() (*jsonschema.Schema, error) {
	return recordSchema()
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema(schemaMap)
	if err != nil {
		return err
	}
	return validate(schema, data)
}

// ValidateRecord validates a model reply against the record schema.
func ValidateRecord(data []byte) error {
	schema, err := RecordSchema()
	if err != nil {
		return err
	}
	return validate(schema, data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
