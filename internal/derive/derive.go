// Package derive walks a resolved API description and turns every operation
// with a JSON request body into fuzzing test cases.
package derive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"contract-fuzzer/internal/document"
	"contract-fuzzer/internal/logger"
	"contract-fuzzer/internal/synth"
	"contract-fuzzer/internal/types"

	"gopkg.in/yaml.v3"
)

const (
	// OkStatusKey names the status an operation returns for valid bodies
	OkStatusKey = "x-okStatus"
	// ErrStatusKey names the status an operation returns for invalid bodies
	ErrStatusKey = "x-errStatus"

	// DefaultFixture is loaded before every derived case
	DefaultFixture = "many-posts"
)

// ErrConfig is matched by every ConfigError
var ErrConfig = errors.New("configuration error")

// ConfigError reports a malformed API description
type ConfigError struct {
	Method  string
	Path    string
	Message string
}

// Error returns a human-readable error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s %s: %s", e.Method, e.Path, e.Message)
}

// Is reports whether target matches this error type.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// httpMethods are the path item keys treated as operations
var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// Operation records what was synthesized for one endpoint
type Operation struct {
	Path     string         `json:"path"`
	Method   string         `json:"method"`
	Examples types.Examples `json:"examples"`
}

// Suite is the outcome of a derivation
type Suite struct {
	Cases      []types.TestCase
	Operations []Operation
}

// Deriver builds test cases from a resolved description
type Deriver struct {
	synthesizer synth.Synthesizer
	fixture     string
	logger      *logger.Logger
}

// NewDeriver creates a new instance of Deriver. An empty fixture means every
// case starts from an empty data store.
func NewDeriver(synthesizer synth.Synthesizer, fixture string, logger *logger.Logger) *Deriver {
	return &Deriver{
		synthesizer: synthesizer,
		fixture:     fixture,
		logger:      logger,
	}
}

// Derive emits cases in path, method, valid-before-invalid, synthesis order.
// doc must already be resolved; any configuration error aborts the whole
// derivation.
func (d *Deriver) Derive(ctx context.Context, doc *yaml.Node) (*Suite, error) {
	suite := &Suite{}

	for _, path := range document.Pairs(document.Get(doc, "paths")) {
		for _, op := range document.Pairs(path.Value) {
			if !httpMethods[strings.ToLower(op.Key)] {
				continue
			}

			cases, examples, err := d.deriveOperation(ctx, path.Key, op.Key, op.Value)
			if err != nil {
				return nil, err
			}
			if examples == nil {
				continue
			}

			suite.Cases = append(suite.Cases, cases...)
			suite.Operations = append(suite.Operations, Operation{
				Path:     path.Key,
				Method:   op.Key,
				Examples: *examples,
			})
		}
	}

	return suite, nil
}

// deriveOperation returns nil examples when the operation takes no JSON body
func (d *Deriver) deriveOperation(ctx context.Context, path, method string, op *yaml.Node) ([]types.TestCase, *types.Examples, error) {
	bodyNode := document.Lookup(op, "requestBody", "content", types.JSONContentType, "schema")
	if bodyNode == nil {
		return nil, nil, nil
	}
	bodySchema, err := document.Object(bodyNode)
	if err != nil {
		return nil, nil, &ConfigError{Method: method, Path: path, Message: "request body schema: " + err.Error()}
	}

	okStatus, err := status(op, OkStatusKey)
	if err != nil {
		return nil, nil, &ConfigError{Method: method, Path: path, Message: err.Error()}
	}
	errStatus, err := status(op, ErrStatusKey)
	if err != nil {
		return nil, nil, &ConfigError{Method: method, Path: path, Message: err.Error()}
	}

	okBody, err := responseSchema(op, okStatus)
	if err != nil {
		return nil, nil, &ConfigError{Method: method, Path: path, Message: err.Error()}
	}
	errBody, err := responseSchema(op, errStatus)
	if err != nil {
		return nil, nil, &ConfigError{Method: method, Path: path, Message: err.Error()}
	}

	examples, err := d.synthesizer.Synthesize(ctx, bodySchema)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to synthesize bodies for %s %s: %w", method, path, err)
	}
	d.logger.LogSynthesis(method, path, len(examples.Valid), len(examples.Invalid))

	title := method + " " + path
	if desc := document.Get(op, "description"); desc != nil && desc.Kind == yaml.ScalarNode && desc.Value != "" {
		title = desc.Value
	}

	var cases []types.TestCase
	for i, body := range objects(examples.Valid) {
		cases = append(cases, d.newCase(fmt.Sprintf("%s - valid #%d", title, i+1), method, path, body, okStatus, okBody))
	}
	for i, body := range objects(examples.Invalid) {
		cases = append(cases, d.newCase(fmt.Sprintf("%s - invalid #%d", title, i+1), method, path, body, errStatus, errBody))
	}
	return cases, &examples, nil
}

func (d *Deriver) newCase(title, method, path string, body interface{}, status int, schema map[string]interface{}) types.TestCase {
	return types.TestCase{
		Title:   title,
		Fixture: d.fixture,
		Method:  strings.ToUpper(method),
		URL:     path,
		Headers: map[string]string{
			"Content-Type": types.JSONContentType,
		},
		Body: body,
		Expected: types.Expectation{
			Status: status,
			Body:   schema,
		},
	}
}

// status reads a mandatory status extension as an integer
func status(op *yaml.Node, key string) (int, error) {
	node := document.Get(op, key)
	if node == nil {
		return 0, fmt.Errorf("missing %s", key)
	}
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("%s must be a status code", key)
	}
	code, err := strconv.Atoi(strings.TrimSpace(node.Value))
	if err != nil || code < 100 || code > 599 {
		return 0, fmt.Errorf("%s must be a status code, got %q", key, node.Value)
	}
	return code, nil
}

// responseSchema returns the JSON body schema declared for a status, if any
func responseSchema(op *yaml.Node, code int) (map[string]interface{}, error) {
	node := document.Lookup(op, "responses", strconv.Itoa(code), "content", types.JSONContentType, "schema")
	if node == nil {
		return nil, nil
	}
	schema, err := document.Object(node)
	if err != nil {
		return nil, fmt.Errorf("response %d schema: %w", code, err)
	}
	return schema, nil
}

// objects keeps only JSON objects; the transport sends object bodies only
func objects(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if types.IsObject(v) {
			out = append(out, v)
		}
	}
	return out
}
