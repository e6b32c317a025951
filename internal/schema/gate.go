// Package schema applies the service's input and output contracts. Contracts
// are JSON-Schema documents compiled once at startup; validation is a pure
// function of (schema, value) and never panics on caller data.
package schema

import (
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation describes a single schema violation.
type Violation struct {
	// Path is the JSON pointer to the offending value ("" for the root).
	Path string `json:"instancePath"`
	// Message is the human-readable violation description.
	Message string `json:"message"`
}

// Validate checks value against the compiled schema. It returns nil when the
// value satisfies the contract, otherwise the flattened violation list.
// value must be generic JSON (the result of json.Unmarshal into any).
func Validate(s *jsonschema.Schema, value any) []Violation {
	err := s.Validate(value)
	if err == nil {
		return nil
	}

	var valErr *jsonschema.ValidationError
	if !errors.As(err, &valErr) {
		return []Violation{{Message: err.Error()}}
	}
	return flatten(valErr)
}

// flatten walks the validation error tree and collects leaf causes, which
// carry the most specific messages.
func flatten(err *jsonschema.ValidationError) []Violation {
	if len(err.Causes) == 0 {
		return []Violation{{
			Path:    err.InstanceLocation,
			Message: err.Message,
		}}
	}
	var out []Violation
	for _, cause := range err.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
