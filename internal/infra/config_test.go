package infra

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "2s")
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "pem-data")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Presence.LivenessTimeout)
	assert.Equal(t, 2*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Tokens.DefaultTTL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []byte("pem-data"), cfg.Auth.PublicKey)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "database.url")
}

func TestLoadAgentConfig(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AGENT_TOKEN", "tok")
	t.Setenv("AGENT_TRANSPORT", "grpc")

	cfg, err := LoadAgentConfig()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "grpc", cfg.Transport)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 9091, cfg.MetricsPort)
}

func TestLoadAgentConfigRequiresToken(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AGENT_TOKEN", "")
	_, err := LoadAgentConfig()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
