package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opsalert/internal/config"
)

const minimal = `
version: v1
engine:
  workers:
    critical: 8
thresholds:
  patterns:
    sales_streak:
      count: 4
      window: 720h
users:
  - id: u_admin
    name: Ada
    email: ada@example.com
    role: admin
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.WorkersFor("critical"))
	assert.Equal(t, 4, cfg.Engine.WorkersFor("low"))
	assert.Equal(t, 30*time.Second, cfg.Engine.JobTimeout())
	assert.Equal(t, time.Minute, cfg.Engine.EmailTimeout())
	assert.Equal(t, []string{"resend", "ses", "log"}, cfg.Mail.Providers)
	assert.Equal(t, config.PatternConf{Count: 4, Window: 720 * time.Hour}, cfg.Thresholds.Patterns["sales_streak"])
	require.Len(t, cfg.Users, 1)
	assert.Equal(t, "u_admin", cfg.Users[0].ID)

	def, err := config.DefaultRouting()
	require.NoError(t, err)
	assert.Equal(t, def, cfg.Routing)
	assert.NotEmpty(t, def.Scenarios)
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	assert.NoError(t, config.Validate(cfg))
}

func TestValidateCollectsProblems(t *testing.T) {
	doc := `
version: v1
routing:
  scenarios:
    - id: dup
      enabled: true
      types: [business.no_such_thing]
      categories: [Finance]
      children:
        - rule:
            id: dup
            roles: [janitor]
            subjects: [bystander]
        - condition:
            id: c1
            expression: ""
        - {}
users:
  - id: ""
    role: wizard
`
	_, err := config.Parse([]byte(doc))
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`duplicate id "dup"`,
		`unknown alert type "business.no_such_thing"`,
		`unknown category "Finance"`,
		`unknown role "janitor"`,
		`unknown subject "bystander"`,
		"condition c1: expression is required",
		"one of condition/rule must be set",
		"users[0]: id is required",
		`users[0]: unknown role "wizard"`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateRequiresVersion(t *testing.T) {
	_, err := config.Parse([]byte("engine: {}"))
	assert.ErrorContains(t, err, "version is required")
}

func TestLoaderReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opsalert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	l, err := config.NewLoader(path, nil)
	require.NoError(t, err)
	first := l.Config()

	var seen []*config.Config
	l.OnChange(func(c *config.Config) { seen = append(seen, c) })

	require.NoError(t, os.WriteFile(path, []byte("version: v2\n"), 0o600))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.Version)
	require.Len(t, seen, 1)
	assert.Same(t, cfg, seen[0])

	require.NoError(t, os.WriteFile(path, []byte("version: ''\n"), 0o600))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, "v2", l.Config().Version)
	assert.NotSame(t, first, l.Config())
	assert.Len(t, seen, 1)
}

func TestLoaderGateRejectsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsalert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	l, err := config.NewLoader(path, nil)
	require.NoError(t, err)

	l.Gate(func(c *config.Config) error {
		if c.Version == "blocked" {
			return errors.New("version is blocked")
		}
		return nil
	})
	called := 0
	l.OnChange(func(*config.Config) { called++ })

	require.NoError(t, os.WriteFile(path, []byte("version: blocked\n"), 0o600))
	_, err = l.Reload()
	assert.ErrorContains(t, err, "version is blocked")
	assert.Equal(t, "v1", l.Config().Version)
	assert.Zero(t, called)
}

func TestLoaderWatchPicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsalert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	l, err := config.NewLoader(path, nil)
	require.NoError(t, err)

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("version: v3\n"), 0o600))
	assert.Eventually(t, func() bool { return l.Config().Version == "v3" }, 5*time.Second, 20*time.Millisecond)

	// A rename-into-place save replaces the file without writing to it.
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("version: v4\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	assert.Eventually(t, func() bool { return l.Config().Version == "v4" }, 5*time.Second, 20*time.Millisecond)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(dotenv, []byte("KAFKA_TOPIC=from-dotenv\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_TOPIC", "from-env")
	t.Setenv("REDIS_ADDR", "")

	e, err := config.LoadEnv(dotenv, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, e.KafkaBrokers)
	assert.Equal(t, "from-env", e.KafkaTopic)
	assert.Equal(t, ":8080", e.HTTPAddr)
	assert.Empty(t, e.RedisAddr)
}
