package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/prompts"
)

type stubCompleter struct {
	raw  json.RawMessage
	err  error
	seen string
}

func (s *stubCompleter) CompleteRaw(_ context.Context, _ prompts.Template, _ map[string]string, toolName string, _ *jsonschema.Schema) (json.RawMessage, Usage, error) {
	s.seen = toolName
	return s.raw, Usage{InputTokens: 3}, s.err
}

func (s *stubCompleter) DrainDebugRecords() []DebugRecord { return nil }

type stubResult struct {
	Value string `json:"value"`
}

func TestCompleteStructuredUnmarshalsRawIntoT(t *testing.T) {
	stub := &stubCompleter{raw: []byte(`{"value":"ok"}`)}
	result, usage, err := CompleteStructured[stubResult](context.Background(), stub, prompts.Template{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, int64(3), usage.InputTokens)
	assert.Equal(t, "stubResult", stub.seen)
}

func TestCompleteStructuredPropagatesTransportError(t *testing.T) {
	stub := &stubCompleter{err: ErrProviderTransport}
	_, _, err := CompleteStructured[stubResult](context.Background(), stub, prompts.Template{}, nil)
	require.ErrorIs(t, err, ErrProviderTransport)
}

func TestCompleteStructuredWrapsInvalidJSON(t *testing.T) {
	stub := &stubCompleter{raw: []byte(`not json`)}
	_, _, err := CompleteStructured[stubResult](context.Background(), stub, prompts.Template{}, nil)
	require.ErrorIs(t, err, ErrStructuredOutput)
}
