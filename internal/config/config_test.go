package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  base_path: api/
database:
  driver: memory
jwt:
  secret: `+validSecret+`
outbox:
  poll_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 168*time.Hour, cfg.JWT.Expiry())
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, "careflow:events", cfg.Redis.Channel)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: `+validSecret+`
`)
	t.Setenv("CAREFLOW_SERVER_PORT", "7000")
	t.Setenv("CAREFLOW_DATABASE_HOST", "db.internal")
	t.Setenv("CAREFLOW_DATABASE_SSLMODE", "require")
	t.Setenv("CAREFLOW_RATE_LIMIT_BURST", "3")
	t.Setenv("CAREFLOW_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("CAREFLOW_OUTBOX_RETRY_DELAY", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, 2*time.Second, cfg.Outbox.RetryDelay)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: short
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 0},
		Database: DatabaseConfig{Driver: "mysql"},
		JWT:      JWTConfig{Secret: validSecret, ExpiryHours: 1},
		Security: SecurityConfig{BcryptCost: 12},
		Outbox:   OutboxConfig{Enabled: true},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "outbox.batch_size")
}
