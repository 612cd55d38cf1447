package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Marketplace.SweepInterval)
	assert.Equal(t, 48*time.Hour, cfg.Marketplace.ExpiringSoonWindow)
	assert.True(t, cfg.Reputation.CacheEnabled)
	assert.Equal(t, StorageDriverLocal, cfg.Certificates.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Certificates.SignedURLTTL)
	assert.True(t, cfg.Realtime.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MARKETPLACE_SWEEP_INTERVAL", "2m")
	t.Setenv("REPUTATION_CACHE_TTL", "not-a-duration")
	t.Setenv("CERTIFICATES_DRIVER", " S3 ")
	t.Setenv("S3_BUCKET", "certs")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Marketplace.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.Reputation.CacheTTL)
	assert.Equal(t, StorageDriverS3, cfg.Certificates.Driver)
	assert.Equal(t, "certs", cfg.Certificates.S3.Bucket)
	assert.True(t, cfg.Certificates.S3.ForcePathStyle)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestUnknownDriverFallsBackToLocal(t *testing.T) {
	t.Setenv("CERTIFICATES_DRIVER", "gcs")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageDriverLocal, cfg.Certificates.Driver)
}

// inDir runs the rest of the test from dir.
func inDir(t *testing.T, dir string) {
	t.Helper()
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(previous) })
}

func TestLoadWithoutDotEnv(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MARKETPLACE_SWEEP_INTERVAL=3m\n"), 0o600))
	inDir(t, dir)
	t.Setenv("MARKETPLACE_SWEEP_INTERVAL", "")
	os.Unsetenv("MARKETPLACE_SWEEP_INTERVAL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, cfg.Marketplace.SweepInterval)
}
