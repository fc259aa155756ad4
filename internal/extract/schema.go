package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildLabOrderJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is passed to the general extractor as an output constraint
// and used locally to validate what comes back.
func BuildLabOrderJSONSchema() map[string]any {
	dateProp := map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}

	patient := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"patient_name":  map[string]any{"type": "string", "minLength": 1},
			"date_of_birth": dateProp,
			"mrn":           map[string]any{"type": "string"},
			"ssn":           map[string]any{"type": "string"},
			"address":       map[string]any{"type": "string"},
			"phone":         map[string]any{"type": "string"},
			"email":         map[string]any{"type": "string"},
			"insurance_id":  map[string]any{"type": "string"},
			"sex":           map[string]any{"type": "string"},
		},
		"required": []string{"patient_name"},
	}

	facility := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"facility_name": map[string]any{"type": "string"},
			"address":       map[string]any{"type": "string"},
			"phone":         map[string]any{"type": "string"},
		},
	}

	order := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"physician_name":  map[string]any{"type": "string"},
			"physician_npi":   map[string]any{"type": "string"},
			"collection_date": dateProp,
			"specimen_type":   map[string]any{"type": "string"},
			"fasting":         map[string]any{"type": "boolean"},
			"tests": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "minLength": 1},
			},
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"patient":    patient,
			"facility":   facility,
			"order":      order,
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"patient", "order"},
	}
}

// ValidateFieldsAgainstSchema validates data against schemaMap.
func ValidateFieldsAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
