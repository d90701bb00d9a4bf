// Package synth produces example request bodies, valid and invalid, for a
// JSON schema.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"contract-fuzzer/internal/schema"
	"contract-fuzzer/internal/types"
)

// Synthesizer turns one schema into example values. Valid values must
// satisfy the schema and invalid values must violate it; callers make no
// assumption about how many of either there are.
type Synthesizer interface {
	Synthesize(ctx context.Context, schema map[string]interface{}) (types.Examples, error)
}

// Checked wraps a Synthesizer and drops any example that lands on the wrong
// side of the schema, as judged by the matcher.
type Checked struct {
	inner   Synthesizer
	matcher *schema.Matcher
}

// NewChecked creates a new instance of Checked
func NewChecked(inner Synthesizer, matcher *schema.Matcher) *Checked {
	return &Checked{inner: inner, matcher: matcher}
}

// Synthesize implements the Synthesizer interface
func (c *Checked) Synthesize(ctx context.Context, s map[string]interface{}) (types.Examples, error) {
	if err := c.matcher.Compile(s); err != nil {
		return types.Examples{}, err
	}

	examples, err := c.inner.Synthesize(ctx, s)
	if err != nil {
		return types.Examples{}, err
	}

	valid, err := c.keep(examples.Valid, s, true)
	if err != nil {
		return types.Examples{}, err
	}
	invalid, err := c.keep(examples.Invalid, s, false)
	if err != nil {
		return types.Examples{}, err
	}
	return types.Examples{Valid: valid, Invalid: invalid}, nil
}

// keep filters values by whether they match s and removes duplicates
func (c *Checked) keep(values []interface{}, s map[string]interface{}, wantMatch bool) ([]interface{}, error) {
	out := make([]interface{}, 0, len(values))
	seen := make(map[string]bool)
	for _, v := range values {
		key, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if seen[string(key)] {
			continue
		}

		err = c.matcher.Matches(v, s)
		if errors.Is(err, schema.ErrInvalidSchema) {
			return nil, err
		}
		var mismatch *schema.MismatchError
		matched := err == nil
		if !matched && !errors.As(err, &mismatch) {
			return nil, fmt.Errorf("failed to check synthesized value: %w", err)
		}
		if matched != wantMatch {
			continue
		}

		seen[string(key)] = true
		out = append(out, v)
	}
	return out, nil
}
