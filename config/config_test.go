package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulsedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	return c
}

func TestLoadFlattensKeys(t *testing.T) {
	c := writeConfig(t, `
db:
  root: /data/ticks
  depth: 2
  sync: false
instance: primary
`)
	v, err := c.GetValue("db.root")
	require.NoError(t, err)
	assert.Equal(t, "/data/ticks", v)
	assert.Equal(t, "primary", c.GetString("instance", "fallback"))
	assert.Equal(t, 2, c.GetInt("db.depth", 1))
	assert.Equal(t, false, c.GetBool("db.sync", true))
}

func TestGetValueNoKey(t *testing.T) {
	c := writeConfig(t, "a: 1\n")
	_, err := c.GetValue("missing")
	assert.ErrorIs(t, err, ErrNoKey)
	assert.Equal(t, "def", c.GetValueDefault("missing", "def"))
	assert.Equal(t, 7, c.GetInt("missing", 7))
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PULSEDB_TEST_ROOT", "/var/ticks")
	c := writeConfig(t, "root: ${PULSEDB_TEST_ROOT}\n")
	assert.Equal(t, "/var/ticks", c.GetString("root", ""))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
