package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKeyHash = "f2e9d1ab34c5f2e9d1ab34c5f2e9d1ab34c5f2e9d1ab34c5f2e9d1ab34c5f2e9" +
	"d1ab34c5f2e9d1ab34c5f2e9d1ab34c5f2e9d1ab34c5f2e9d1ab34c5f2e9d1ab"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WAAKU_API_KEY", testAPIKeyHash)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4300", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "55", cfg.WhatsApp.DefaultCountry)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.Webhook.Enabled())
	assert.False(t, cfg.Chatwoot.Enabled())
	assert.True(t, cfg.Chatwoot.AutoProvision)
	assert.Nil(t, cfg.CORS.Origins)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("WAAKU_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "WAAKU_API_KEY"))
}

func TestLoadRejectsBadAPIKeyHash(t *testing.T) {
	tests := []string{
		"curto",
		strings.Repeat("g", 128),
		strings.ToUpper(testAPIKeyHash),
	}

	for _, hash := range tests {
		t.Setenv("WAAKU_API_KEY", hash)
		_, err := Load()
		assert.Error(t, err, "hash %q deveria ser rejeitado", hash)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WAAKU_API_KEY", testAPIKeyHash)
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/waaku")
	t.Setenv("CHATWOOT_AUTO_PROVISION", "false")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://painel.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Webhook.Enabled())
	assert.False(t, cfg.Chatwoot.AutoProvision)
	assert.Equal(t, []string{"https://app.example.com", "https://painel.example.com"}, cfg.CORS.Origins)
}
