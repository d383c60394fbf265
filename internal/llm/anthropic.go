package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/prompts"
)

// Client is the primary LLMClient implementation, backed by
// github.com/anthropics/anthropic-sdk-go. Model-tier resolution and
// structured-output binding are both implemented here; callers never touch
// the SDK directly.
type Client struct {
	sdk anthropic.Client

	weakModel      anthropic.Model
	planningModel  anthropic.Model
	developerModel anthropic.Model

	maxOutputTokens int64
	debug           bool

	mu      sync.Mutex
	records []DebugRecord
}

// NewClient constructs a Client from an API key and per-tier model ids.
func NewClient(apiKey, weakModel, planningModel, developerModel string, debug bool) *Client {
	return &Client{
		sdk:             anthropic.NewClient(option.WithAPIKey(apiKey)),
		weakModel:       anthropic.Model(weakModel),
		planningModel:   anthropic.Model(planningModel),
		developerModel:  anthropic.Model(developerModel),
		maxOutputTokens: 4096,
		debug:           debug,
	}
}

func (c *Client) modelFor(tier prompts.ModelTier) anthropic.Model {
	switch tier {
	case prompts.TierWeak:
		return c.weakModel
	case prompts.TierDeveloper:
		return c.developerModel
	default:
		return c.planningModel
	}
}

// Complete issues a free-form completion. Rarely used — every pipeline
// stage prefers CompleteStructured.
func (c *Client) Complete(ctx context.Context, tmpl prompts.Template, vars map[string]string) (CompletionResult, error) {
	system := tmpl.RenderSystem(vars)
	user := tmpl.Render(vars)

	params := anthropic.MessageNewParams{
		Model:     c.modelFor(tmpl.ModelTier),
		MaxTokens: c.maxOutputTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, CacheControl: anthropic.NewCacheControlEphemeralParam()}}
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("%w: %v", ErrProviderTransport, err)
	}

	var text string
	for _, block := range resp.Content {
		if t := block.AsText(); t.Text != "" {
			text = t.Text
			break
		}
	}

	usage := Usage{
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
		ElapsedMillis: elapsed.Milliseconds(),
	}

	if c.debug {
		c.record(DebugRecord{Tier: tmpl.ModelTier, Model: string(c.modelFor(tmpl.ModelTier)), SystemPrompt: system, UserPrompt: user, Response: text, Usage: usage})
	}

	return CompletionResult{Text: text, Usage: usage}, nil
}

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

// operationEnum restricts the generated tool schema's "operation" property
// to model.Operation's exact vocabulary. jsonschema.For infers a plain
// string for a defined string type, so the restriction is applied here
// rather than left to the model alone to honor.
var operationEnum = []any{
	string(model.OpLookup), string(model.OpAggregation), string(model.OpJoin),
	string(model.OpFilter), string(model.OpSort), string(model.OpOther),
}

func schemaFor[T any]() (*jsonschema.Schema, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(*jsonschema.Schema), nil
	}
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	constrainEnum(s, "operation", operationEnum)
	schemaCache.Store(typ, s)
	return s, nil
}

// constrainEnum walks schema's properties, including through array Items,
// and sets Enum on every property named field.
func constrainEnum(s *jsonschema.Schema, field string, values []any) {
	if s == nil {
		return
	}
	for name, prop := range s.Properties {
		if name == field {
			prop.Enum = values
		}
		constrainEnum(prop, field, values)
	}
	constrainEnum(s.Items, field, values)
}

// toolSchemaParam converts a jsonschema.Schema into the Anthropic tool
// input-schema shape, grounded on malbeclabs-doublezero's toAnthropicTools.
func toolSchemaParam(s *jsonschema.Schema) (anthropic.ToolInputSchemaParam, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var decoded struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: decoded.Properties,
		Required:   decoded.Required,
	}, nil
}

// CompleteRaw implements Completer for Client — the tool-forced completion
// path llm.CompleteStructured builds on. It is the only place the SDK's
// tool_use response shape is unpacked.
func (c *Client) CompleteRaw(ctx context.Context, tmpl prompts.Template, vars map[string]string, toolName string, schema *jsonschema.Schema) (json.RawMessage, Usage, error) {
	inputSchema, err := toolSchemaParam(schema)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("%w: convert schema: %v", ErrStructuredOutput, err)
	}

	system := tmpl.RenderSystem(vars)
	user := tmpl.Render(vars)

	params := anthropic.MessageNewParams{
		Model:     c.modelFor(tmpl.ModelTier),
		MaxTokens: c.maxOutputTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Tools: []anthropic.ToolUnionParam{{OfTool: &anthropic.ToolParam{
			Name:        toolName,
			Description: anthropic.Opt(tmpl.ResponseSchema),
			InputSchema: inputSchema,
		}}},
		ToolChoice: anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: toolName}},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, CacheControl: anthropic.NewCacheControlEphemeralParam()}}
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("%w: %v", ErrProviderTransport, err)
	}

	usage := Usage{
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
		ElapsedMillis: elapsed.Milliseconds(),
	}

	var input []byte
	for _, block := range resp.Content {
		tu := block.AsToolUse()
		if tu.ID != "" && tu.Name == toolName {
			input = tu.Input
			break
		}
	}
	if input == nil {
		return nil, usage, fmt.Errorf("%w: no tool_use block for %q", ErrStructuredOutput, toolName)
	}

	if c.debug {
		var response any
		if err := json.Unmarshal(input, &response); err == nil {
			c.record(DebugRecord{Tier: tmpl.ModelTier, Model: string(c.modelFor(tmpl.ModelTier)), SystemPrompt: system, UserPrompt: user, Response: response, Usage: usage})
		}
	}

	return json.RawMessage(input), usage, nil
}

func (c *Client) record(r DebugRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// DrainDebugRecords returns and clears the debug trace accumulated since
// the last drain. Called once per turn by the orchestrator so each
// server message's metadata carries only its own turn's records.
func (c *Client) DrainDebugRecords() []DebugRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.records
	c.records = nil
	return out
}
