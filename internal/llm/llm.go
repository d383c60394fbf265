// Package llm wraps an LLM provider behind a structured-output contract:
// every pipeline stage calls CompleteStructured and gets back a value that
// already type-checks against its declared schema.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/sqlorc/core/internal/prompts"
)

// Usage is the token/latency accounting for one LLM call. Only calls that
// return usage data feed TokenUsage — a provider-transport failure
// contributes nothing.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	ElapsedMillis int64
}

// Add returns the element-wise sum of u and other, used to accumulate usage
// across the several LLM calls one pipeline turn may make.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:   u.InputTokens + other.InputTokens,
		OutputTokens:  u.OutputTokens + other.OutputTokens,
		ElapsedMillis: u.ElapsedMillis + other.ElapsedMillis,
	}
}

// DebugRecord captures one full LLM call for later inspection when debug
// tracing is enabled. It is producible without altering pipeline behavior —
// callers attach it to a Message's metadata, never branch on its presence.
type DebugRecord struct {
	Tier         prompts.ModelTier `json:"tier"`
	Model        string            `json:"model"`
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Response     any               `json:"response"`
	Usage        Usage             `json:"usage"`
}

// ErrStructuredOutput is returned when the provider's response cannot be
// validated against the declared schema. Callers never see a
// partially-populated struct — they get this sentinel instead.
var ErrStructuredOutput = errors.New("llm: structured output validation failed")

// ErrProviderTransport wraps any failure originating below the SDK call
// itself (network, auth, rate limit). The orchestrator aborts the current
// turn on this error without storing a partial server reply.
var ErrProviderTransport = errors.New("llm: provider transport error")

// CompletionResult is the return value of Client.Complete.
type CompletionResult struct {
	Text  string
	Usage Usage
}

// Completer is the structured-output contract every pipeline stage depends
// on. Client is the production implementation, backed by the Anthropic SDK
// (internal/llm/anthropic.go); tests substitute a fake that satisfies this
// interface directly, without a network call.
type Completer interface {
	// CompleteRaw issues one tool-forced completion for toolName against
	// schema and returns the tool call's raw JSON input.
	CompleteRaw(ctx context.Context, tmpl prompts.Template, vars map[string]string, toolName string, schema *jsonschema.Schema) (json.RawMessage, Usage, error)
	DrainDebugRecords() []DebugRecord
}

// CompleteStructured is the primary path every pipeline stage uses. T is
// the Go struct representing the stage's declared response schema
// (ValidationResult, DecisionResult, PlanResult, SQLGenerationResult,
// ErrorAnalysisResult, SummaryResult). The tool-use call forces the model
// to emit that shape; a response that does not unmarshal into T (malformed
// JSON, or a value whose JSON type does not fit the field) surfaces as
// ErrStructuredOutput. The response is not checked against the schema's
// required list: a field the model omits is left at its zero value in T.
func CompleteStructured[T any](ctx context.Context, c Completer, tmpl prompts.Template, vars map[string]string) (T, Usage, error) {
	var zero T

	schema, err := schemaFor[T]()
	if err != nil {
		return zero, Usage{}, fmt.Errorf("%w: build schema: %v", ErrStructuredOutput, err)
	}
	toolName := reflect.TypeOf(zero).Name()

	raw, usage, err := c.CompleteRaw(ctx, tmpl, vars, toolName, schema)
	if err != nil {
		return zero, usage, err
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, usage, fmt.Errorf("%w: unmarshal: %v", ErrStructuredOutput, err)
	}
	return value, usage, nil
}
