package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEnvVarWithDefault(t *testing.T) {
	t.Setenv("SQLORC_TEST_HOST", "")
	assert.Equal(t, "localhost", ResolveEnvVar("${SQLORC_TEST_HOST:localhost}"))
}

func TestResolveEnvVarFromEnvironment(t *testing.T) {
	t.Setenv("SQLORC_TEST_HOST", "db.example.com")
	assert.Equal(t, "db.example.com", ResolveEnvVar("${SQLORC_TEST_HOST:localhost}"))
}

func TestResolveEnvVarPlainValue(t *testing.T) {
	assert.Equal(t, "5432", ResolveEnvVar("5432"))
}

func TestResolveEnvVarNoDefault(t *testing.T) {
	t.Setenv("SQLORC_TEST_EMPTY", "")
	assert.Equal(t, "", ResolveEnvVar("${SQLORC_TEST_EMPTY}"))
}
