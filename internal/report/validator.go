// Package report validates AI output against the SEO report schema.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "report.schema.json"

// ErrInvalidReport matches every *ValidationError via errors.Is.
var ErrInvalidReport = errors.New("report failed schema validation")

// ValidationError describes why a value is not a well-formed report.
type ValidationError struct {
	Detail string
	cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidReport.Error(), e.Detail)
}

func (e *ValidationError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrInvalidReport}
	}
	return []error{ErrInvalidReport, e.cause}
}

// Validator checks values against the compiled report schema.
// It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the report schema once.
func NewValidator() (*Validator, error) {
	b, err := json.Marshal(BuildReportJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustNewValidator is NewValidator for package-level setup and tests.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks an arbitrary value. Raw JSON ([]byte, json.RawMessage, string)
// is validated as-is; anything else is marshaled first.
func (v *Validator) Validate(value any) (*models.Report, error) {
	switch t := value.(type) {
	case nil:
		return nil, &ValidationError{Detail: "report is null"}
	case json.RawMessage:
		return v.ValidateJSON(t)
	case []byte:
		return v.ValidateJSON(t)
	case string:
		return v.ValidateJSON([]byte(t))
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, &ValidationError{Detail: "value is not JSON-encodable", cause: err}
	}
	return v.ValidateJSON(b)
}

// ValidateJSON checks a JSON document and decodes it into a Report.
func (v *Validator) ValidateJSON(data []byte) (*models.Report, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Detail: "invalid JSON: " + err.Error(), cause: err}
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, &ValidationError{Detail: describe(err), cause: err}
	}
	// The schema accepts integral floats such as 3.0 as integers. Re-encoding
	// the parsed document prints them as 3 so they decode into int fields.
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, &ValidationError{Detail: "re-encode report: " + err.Error(), cause: err}
	}
	var r models.Report
	if err := json.Unmarshal(canonical, &r); err != nil {
		return nil, &ValidationError{Detail: "decode report: " + err.Error(), cause: err}
	}
	return &r, nil
}

// describe flattens a jsonschema error tree into "location: message" pairs.
func describe(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return strings.Join(leaves, "; ")
}
