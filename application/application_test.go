package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunLoadsConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:6001"
log:
  level: warn
  stdout: false
`)
	t.Setenv("CHAT_CONFIG_FILE_PATH", path)

	app := New()
	require.NoError(t, app.Run())

	var sub struct {
		Addr string `mapstructure:"addr"`
	}
	require.NoError(t, app.Config().UnmarshalKey("server", &sub))
	assert.Equal(t, "127.0.0.1:6001", sub.Addr)
}

func TestRunFailsOnMissingConfig(t *testing.T) {
	t.Setenv("CHAT_CONFIG_FILE_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, New().Run())
}

func TestModuleLoggers(t *testing.T) {
	path := writeConfig(t, `
logging:
  audit:
    level: debug
    stdout: false
`)
	t.Setenv("CHAT_CONFIG_FILE_PATH", path)

	app := New()
	require.NoError(t, app.Run())

	assert.NotNil(t, app.Logger("audit"))
	// Unknown names fall back to the global logger instead of nil.
	assert.NotNil(t, app.Logger("nope"))
}

func TestVersion(t *testing.T) {
	v := Version()
	assert.Equal(t, rawVersion, v.String())
}
