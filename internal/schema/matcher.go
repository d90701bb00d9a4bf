// Package schema checks JSON values against the JSON schemas embedded in an
// API description. Compilation and validation are delegated to kin-openapi.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ErrInvalidSchema is returned when a schema cannot be compiled. It is a
// configuration problem, not a mismatch.
var ErrInvalidSchema = errors.New("invalid schema")

// Options controls how strictly schemas are compiled and how much context a
// mismatch carries.
type Options struct {
	// Strict rejects unknown schema keywords instead of ignoring them
	Strict bool
	// Verbose adds the offending value and schema to diagnostics
	Verbose bool
}

// Matcher checks values against schemas
type Matcher struct {
	opts Options
}

// NewMatcher creates a new instance of Matcher
func NewMatcher(opts Options) *Matcher {
	return &Matcher{opts: opts}
}

// MismatchError carries the diagnostics of a failed match
type MismatchError struct {
	// Messages lists one line per violation, sorted
	Messages []string
	Value    interface{}
	Schema   map[string]interface{}
	// Negated is set when the value was expected NOT to match
	Negated bool

	verbose bool
}

// Error returns a human-readable error message.
func (e *MismatchError) Error() string {
	var sb strings.Builder
	if e.Negated {
		sb.WriteString("Expected not to match schema\n")
	} else {
		sb.WriteString("Expected to match schema\n")
		for _, msg := range e.Messages {
			sb.WriteString(msg)
			sb.WriteString("\n")
		}
	}
	if e.verbose {
		value, _ := json.Marshal(e.Value)
		schema, _ := json.MarshalIndent(e.Schema, "", "  ")
		sb.WriteString(fmt.Sprintf("Value: %s\n", value))
		sb.WriteString(fmt.Sprintf("Schema: \n%s", schema))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Matches returns nil when value conforms to schema, a *MismatchError when it
// does not, and an error wrapping ErrInvalidSchema when the schema is broken.
func (m *Matcher) Matches(value interface{}, schema map[string]interface{}) error {
	messages, err := m.check(value, schema)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	return &MismatchError{
		Messages: messages,
		Value:    value,
		Schema:   schema,
		verbose:  m.opts.Verbose,
	}
}

// MatchesNot is the negation of Matches: it fails when value conforms.
func (m *Matcher) MatchesNot(value interface{}, schema map[string]interface{}) error {
	messages, err := m.check(value, schema)
	if err != nil {
		return err
	}
	if len(messages) > 0 {
		return nil
	}
	return &MismatchError{
		Value:   value,
		Schema:  schema,
		Negated: true,
		verbose: m.opts.Verbose,
	}
}

// check compiles schema and returns the violation messages for value
func (m *Matcher) check(value interface{}, schema map[string]interface{}) ([]string, error) {
	compiled, err := m.compile(schema)
	if err != nil {
		return nil, err
	}

	normalized, err := normalize(value)
	if err != nil {
		return nil, err
	}

	if err := compiled.VisitJSON(normalized, openapi3.MultiErrors()); err != nil {
		return messages(err), nil
	}
	return nil, nil
}

// Compile reports whether schema can be used for matching. The error wraps
// ErrInvalidSchema.
func (m *Matcher) Compile(schema map[string]interface{}) error {
	_, err := m.compile(schema)
	return err
}

// compile turns a decoded schema into a kin-openapi schema
func (m *Matcher) compile(schema map[string]interface{}) (*openapi3.Schema, error) {
	data, err := json.Marshal(downgrade(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode schema: %v", ErrInvalidSchema, err)
	}

	var compiled openapi3.Schema
	if err := json.Unmarshal(data, &compiled); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	if m.opts.Strict {
		if err := compiled.Validate(context.Background()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	return &compiled, nil
}

// normalize round-trips value through JSON so numbers, slices and maps have
// the shapes the validator expects.
func normalize(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// messages flattens a validation error into sorted, de-duplicated lines
func messages(err error) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(error)
	walk = func(err error) {
		var multi openapi3.MultiError
		if errors.As(err, &multi) {
			for _, e := range multi {
				walk(e)
			}
			return
		}

		var schemaErr *openapi3.SchemaError
		if errors.As(err, &schemaErr) {
			var nested openapi3.MultiError
			if schemaErr.Origin != nil && errors.As(schemaErr.Origin, &nested) {
				walk(nested)
				return
			}
			msg := "/" + strings.Join(schemaErr.JSONPointer(), "/") + ": " + schemaErr.Reason
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
			return
		}

		if msg := err.Error(); !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
	}
	walk(err)
	sort.Strings(out)
	return out
}
