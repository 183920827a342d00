package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:       "8080",
		AppKey:     "key",
		AppSecret:  "secret",
		TenantID:   "tenant",
		SessionTTL: DefaultSessionTTL,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRequiresCredentials(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.AppKey = "" },
		func(c *Config) { c.AppSecret = "" },
		func(c *Config) { c.TenantID = "" },
	} {
		cfg := validConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestValidateGateNeedsSecret(t *testing.T) {
	cfg := validConfig()
	cfg.GatePassword = "secret-word"
	assert.Error(t, cfg.Validate())

	cfg.SessionSecret = "signing-key"
	assert.NoError(t, cfg.Validate())
}

func TestValidateTLSRequiresBothFiles(t *testing.T) {
	cfg := validConfig()
	cfg.TLS.Cert = "/tmp/cert.pem"
	assert.Error(t, cfg.Validate())

	cfg.TLS.Key = "/tmp/key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestGateEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.GateEnabled())

	cfg.GatePassword = "secret-word"
	assert.True(t, cfg.GateEnabled())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	assert.Equal(t, "value", getEnvOrDefault("TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("TEST_STR_MISSING", "fallback"))

	t.Setenv("TEST_BOOL", "true")
	assert.True(t, boolEnv("TEST_BOOL"))
	t.Setenv("TEST_BOOL", "1")
	assert.True(t, boolEnv("TEST_BOOL"))
	t.Setenv("TEST_BOOL", "no")
	assert.False(t, boolEnv("TEST_BOOL"))

	t.Setenv("TEST_INT", "50")
	assert.Equal(t, 50, intEnv("TEST_INT", 20))
	t.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 20, intEnv("TEST_INT", 20))

	t.Setenv("TEST_DUR", "2h")
	assert.Equal(t, 2*time.Hour, durationEnv("TEST_DUR", time.Hour))
	t.Setenv("TEST_DUR", "-5m")
	assert.Equal(t, time.Hour, durationEnv("TEST_DUR", time.Hour))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		splitAndTrim(" https://a.example.com , https://b.example.com ,"),
	)
	assert.Nil(t, splitAndTrim(""))
}

func TestTLSVersionFlag(t *testing.T) {
	var v TLSVersion
	require.NoError(t, v.Set("1.3"))
	assert.Equal(t, "1.3", v.String())
	assert.Error(t, v.Set("1.1"))
}
