package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, "tracks", cfg.S3Bucket)
	assert.Equal(t, int64(4294967296), cfg.MaxFileSizeBytes)
	assert.Equal(t, int64(180*60), cfg.FreeLimitSeconds())
	assert.Equal(t, int64(0), cfg.ProLimitSeconds())
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoadRejectsBadLimits(t *testing.T) {
	t.Setenv("UPLOAD_MAX_FILE_SIZE_BYTES", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPLOAD_FREE_MINUTES", "60")
	t.Setenv("UPLOAD_PRO_MINUTES", "600")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(3600), cfg.FreeLimitSeconds())
	assert.Equal(t, int64(36000), cfg.ProLimitSeconds())
}
