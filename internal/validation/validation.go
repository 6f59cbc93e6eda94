// Package validation collects field-level validation failures for package
// metadata and upload destinations.
package validation

import (
	"fmt"
	"strings"
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result accumulates field errors. The zero value is a valid, empty result.
type Result struct {
	Errors []FieldError `json:"errors,omitempty"`
}

// Add records a failing field.
func (r *Result) Add(field, message string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: message})
}

// Required records field as missing when value is blank.
func (r *Result) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		r.Add(field, "must not be empty")
	}
}

// Merge appends other's errors, prefixing each field with prefix when set.
func (r *Result) Merge(prefix string, other Result) {
	for _, e := range other.Errors {
		if prefix != "" {
			e.Field = prefix + "." + e.Field
		}
		r.Errors = append(r.Errors, e)
	}
}

// Valid reports whether no field failed.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Fields returns the failing field names in the order they were recorded.
func (r Result) Fields() []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// Has reports whether field is among the failures.
func (r Result) Has(field string) bool {
	for _, e := range r.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Err returns a *ValidationError, or nil when the result is valid.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	errs := make([]FieldError, len(r.Errors))
	copy(errs, r.Errors)
	return &ValidationError{Errors: errs}
}

// ValidationError is returned when user input must be fixed before a publish
// can proceed.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the failing field names.
func (e *ValidationError) Fields() []string {
	return Result{Errors: e.Errors}.Fields()
}
