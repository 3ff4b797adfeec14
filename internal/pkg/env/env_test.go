package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedValues(t *testing.T) {
	t.Setenv("TF_TEST_KEY", "from-os")
	Env = map[string]string{"TF_TEST_KEY": "from-file"}
	defer func() { Env = nil }()

	assert.Equal(t, "from-file", GetEnv("TF_TEST_KEY", "def"))
}

func TestGetEnvFallbacks(t *testing.T) {
	Env = nil
	t.Setenv("TF_TEST_OS", "from-os")

	assert.Equal(t, "from-os", GetEnv("TF_TEST_OS", "def"))
	assert.Equal(t, "def", GetEnv("TF_TEST_MISSING", "def"))
}

func TestGetEnvInt(t *testing.T) {
	Env = map[string]string{"TF_INT": "7", "TF_BAD": "seven"}
	defer func() { Env = nil }()

	assert.Equal(t, 7, GetEnvInt("TF_INT", 3))
	assert.Equal(t, 3, GetEnvInt("TF_BAD", 3))
	assert.Equal(t, 3, GetEnvInt("TF_NONE", 3))
}
