package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "auto", c.Profile)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 16, c.Batch.MaxWorkers)
	assert.Equal(t, time.Duration(0), c.Batch.TaskTimeout)
	assert.Equal(t, 5, c.S3.MaxAttempts)
	assert.False(t, c.S3.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profile: v4
xor_key: "0x37"
log:
  level: debug
batch:
  workers: 3
  task_timeout: 90s
  verify: true
s3:
  bucket: evidence
  prefix: case-7
`), 0o644))
	t.Setenv("WXCRYPT_BATCH_WORKERS", "5")
	t.Setenv("WXCRYPT_KEY", "00ff")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v4", c.Profile)
	assert.Equal(t, "00ff", c.Key)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 5, c.Batch.Workers)
	assert.Equal(t, 90*time.Second, c.Batch.TaskTimeout)
	assert.True(t, c.Batch.Verify)
	assert.Equal(t, "evidence", c.S3.Bucket)
	assert.Equal(t, "case-7", c.S3.Prefix)

	key, ok, err := ParseXorKey(c.XorKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(0x37), key)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseXorKey(t *testing.T) {
	_, ok, err := ParseXorKey(" ")
	require.NoError(t, err)
	assert.False(t, ok)

	key, ok, err := ParseXorKey("200")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(200), key)

	_, _, err = ParseXorKey("0x100")
	assert.Error(t, err)
	_, _, err = ParseXorKey("zz")
	assert.Error(t, err)
}

func TestLogConfigApply(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	require.NoError(t, (&LogConfig{Level: "warn", Format: "json"}).Apply())
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.Error(t, (&LogConfig{Level: "loud"}).Apply())
	assert.Error(t, (&LogConfig{Level: "info", Format: "xml"}).Apply())
	require.NoError(t, (&LogConfig{Level: "info"}).Apply())
}
