package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstNonEmptyReturnsFirstSetValue(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestEnvOrFallsBackWhenUnset(t *testing.T) {
	t.Setenv("CONFIG_TEST_ENV_OR", "")
	assert.Equal(t, "fallback", envOr("CONFIG_TEST_ENV_OR_UNSET", "fallback"))

	t.Setenv("CONFIG_TEST_ENV_OR", "set")
	assert.Equal(t, "set", envOr("CONFIG_TEST_ENV_OR", "fallback"))
}

func TestEnvBoolParsesOrFallsBack(t *testing.T) {
	t.Setenv("CONFIG_TEST_BOOL", "true")
	assert.True(t, envBool("CONFIG_TEST_BOOL", false))

	t.Setenv("CONFIG_TEST_BOOL", "not-a-bool")
	assert.True(t, envBool("CONFIG_TEST_BOOL", true))

	assert.False(t, envBool("CONFIG_TEST_BOOL_UNSET", false))
}

func TestEnvIntParsesOrReportsUnset(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT", "42")
	v, ok := envInt("CONFIG_TEST_INT")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = envInt("CONFIG_TEST_INT_UNSET")
	assert.False(t, ok)

	t.Setenv("CONFIG_TEST_INT_BAD", "nope")
	_, ok = envInt("CONFIG_TEST_INT_BAD")
	assert.False(t, ok)
}

func TestEnvMiBConvertsToBytes(t *testing.T) {
	t.Setenv("CONFIG_TEST_MIB", "5")
	v, ok := envMiB("CONFIG_TEST_MIB")
	assert.True(t, ok)
	assert.Equal(t, int64(5*1024*1024), v)
}
