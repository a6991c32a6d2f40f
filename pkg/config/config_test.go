package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "/mymosquitto", cfg.StagingDir)
	assert.Equal(t, "/etc/mosquitto/secure", cfg.SecureDir)
	assert.Equal(t, "/mymosquitto", cfg.DataDir)
	assert.Equal(t, "/mymosquitto/mosquitto.log", cfg.LogFile)
	assert.Equal(t, "/run/mosquitto.pid", cfg.PIDFile)
	assert.Equal(t, ":3000", cfg.API.Listen)
	assert.Equal(t, 2000, cfg.API.LogLines)
	assert.Equal(t, "127.0.0.1:10883", cfg.InternalHostPort())
	assert.Equal(t, Bootstrap{Username: "admin", Password: "admin"}, cfg.Bootstrap)
	assert.Equal(t, 100, cfg.Broker.UID)
	assert.Equal(t, 101, cfg.Broker.GID)
}

func TestLoadEnvironment(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		EnvStagingDir:  "/srv/mosq",
		EnvWebUsername: "root",
		EnvWebPassword: "hunter2",
		EnvPort:        "8080",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/srv/mosq", cfg.StagingDir)
	assert.Equal(t, "/srv/mosq", cfg.DataDir)
	assert.Equal(t, "/srv/mosq/mosquitto.log", cfg.LogFile)
	assert.Equal(t, "/srv/mosq/certs", cfg.CertDir())
	assert.Equal(t, ":8080", cfg.API.Listen)
	assert.Equal(t, Bootstrap{Username: "root", Password: "hunter2"}, cfg.Bootstrap)
}

func TestLoadInvalidPort(t *testing.T) {
	_, err := load("", envMap(map[string]string{EnvPort: "http"}))
	assert.Error(t, err)

	_, err = load("", envMap(map[string]string{EnvPort: "70000"}))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
staging_dir: /data/mosquitto
data_dir: /data/db
api:
  listen: "127.0.0.1:9000"
  auth: false
health:
  interval: 30s
log:
  level: debug
  json: false
`), 0644))

	cfg, err := load(path, envMap(map[string]string{EnvDataDir: "/override"}))
	require.NoError(t, err)

	assert.Equal(t, "/data/mosquitto", cfg.StagingDir)
	assert.Equal(t, "/override", cfg.DataDir, "environment wins over file")
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Listen)
	assert.False(t, cfg.API.Auth)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
	assert.Equal(t, 3*time.Second, cfg.Health.Timeout, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
}

func TestLoadFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pid_file: /tmp/m.pid\n"), 0644))

	cfg, err := load("", envMap(map[string]string{EnvConfigFile: path}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/m.pid", cfg.PIDFile)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0644))
	_, err = load(path, envMap(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty staging", func(c *Config) { c.StagingDir = "" }},
		{"empty secure", func(c *Config) { c.SecureDir = "" }},
		{"same dirs", func(c *Config) { c.SecureDir = c.StagingDir + "/" }},
		{"bad internal port", func(c *Config) { c.Internal.Port = 0 }},
		{"no internal user", func(c *Config) { c.Internal.Username = "" }},
		{"no log lines", func(c *Config) { c.API.LogLines = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
