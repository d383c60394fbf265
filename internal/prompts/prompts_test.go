package prompts

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"validate.yaml": &fstest.MapFile{Data: []byte(`
name: validate
model_tier: weak
temperature: 0.0
system_prompt: "You are a relevance validator."
user_prompt: "Question: ${question}\nDatabases: ${databases}"
response_schema: ValidationResult
`)},
	}
	r := NewRegistry(fsys)

	tmpl, err := r.Load("validate")
	require.NoError(t, err)
	assert.Equal(t, TierWeak, tmpl.ModelTier)
	assert.Equal(t, "ValidationResult", tmpl.ResponseSchema)

	rendered := tmpl.Render(map[string]string{"question": "how many?", "databases": "customer_db"})
	assert.Equal(t, "Question: how many?\nDatabases: customer_db", rendered)
}

func TestRenderMissingVarLeftUntouched(t *testing.T) {
	tmpl := Template{UserPrompt: "Hello ${name}, db=${missing}"}
	got := tmpl.Render(map[string]string{"name": "world"})
	assert.Equal(t, "Hello world, db=${missing}", got)
}

func TestLoadUnknownTemplate(t *testing.T) {
	r := NewRegistry(fstest.MapFS{})
	_, err := r.Load("nope")
	require.Error(t, err)
}

func TestLoadCaches(t *testing.T) {
	fsys := fstest.MapFS{
		"t.yaml": &fstest.MapFile{Data: []byte("name: t\nuser_prompt: hi")},
	}
	r := NewRegistry(fsys)

	first, err := r.Load("t")
	require.NoError(t, err)
	delete(fsys, "t.yaml") // removing the backing file proves the second Load hits the cache
	second, err := r.Load("t")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
