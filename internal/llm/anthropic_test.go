package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchema struct {
	IsRelevant       bool     `json:"is_relevant"`
	RelevantDatabases []string `json:"relevant_databases"`
}

func TestSchemaForCachesByType(t *testing.T) {
	s1, err := schemaFor[fakeSchema]()
	require.NoError(t, err)
	s2, err := schemaFor[fakeSchema]()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestToolSchemaParamExtractsProperties(t *testing.T) {
	schema, err := schemaFor[fakeSchema]()
	require.NoError(t, err)

	param, err := toolSchemaParam(schema)
	require.NoError(t, err)
	assert.EqualValues(t, "object", param.Type)
	assert.Contains(t, param.Properties, "is_relevant")
	assert.Contains(t, param.Properties, "relevant_databases")
}
