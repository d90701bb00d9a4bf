package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contract-fuzzer/internal/llm"
	"contract-fuzzer/internal/logger"
	"contract-fuzzer/internal/types"
)

// LLM asks a chat model for example bodies. Its output is not trusted:
// wrap it in Checked so every example is verified against the schema.
type LLM struct {
	client      llm.Client
	logger      *logger.Logger
	maxExamples int
}

// NewLLM creates a new instance of LLM
func NewLLM(client llm.Client, logger *logger.Logger, maxExamples int) *LLM {
	if maxExamples <= 0 {
		maxExamples = 5
	}
	return &LLM{
		client:      client,
		logger:      logger,
		maxExamples: maxExamples,
	}
}

// Synthesize implements the Synthesizer interface
func (s *LLM) Synthesize(ctx context.Context, schema map[string]interface{}) (types.Examples, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return types.Examples{}, fmt.Errorf("failed to marshal schema: %w", err)
	}

	prompt := fmt.Sprintf(`You are generating request bodies to fuzz an HTTP API.

### JSON Schema of the request body:
%s

### Your Task:
1. Produce up to %d bodies that satisfy every constraint of the schema.
2. Produce up to %d bodies that each violate the schema in exactly one way
   (wrong type, missing required field, value out of range, unknown enum value, ...).
3. Prefer JSON objects; use realistic values.

### Output Format:
Respond with a single JSON object:
{"valid": [...], "invalid": [...]}`, string(schemaJSON), s.maxExamples, s.maxExamples)

	response, err := s.client.Complete(ctx, prompt)
	if err != nil {
		s.logger.LogLLMInteraction("Synthesize", string(schemaJSON), nil, err)
		return types.Examples{}, fmt.Errorf("failed to synthesize examples: %w", err)
	}

	var examples types.Examples
	if err := json.Unmarshal([]byte(stripFence(response)), &examples); err != nil {
		s.logger.LogLLMInteraction("Synthesize", string(schemaJSON), response, err)
		return types.Examples{}, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	s.logger.LogLLMInteraction("Synthesize", string(schemaJSON), examples, nil)
	return examples, nil
}

// stripFence removes a markdown code fence around a model reply
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
