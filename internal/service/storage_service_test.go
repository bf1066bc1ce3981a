package service

import (
	"testing"

	"course_platform_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageServiceMinioInitFailureReturnsUntypedNil(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "minio"
	cfg.Storage.MinioEndpoint = "not a valid endpoint"

	provider, err := NewStorageService(cfg)
	require.Error(t, err)
	// 接口值必须等于nil，下游靠 != nil 决定是否生成证书
	assert.True(t, provider == nil)
}

func TestStorageServiceUnknownTypeRejected(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "ftp"

	provider, err := NewStorageService(cfg)
	require.Error(t, err)
	assert.True(t, provider == nil)
}

func TestStorageServiceDefaultsToLocal(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.LocalPath = t.TempDir()

	provider, err := NewStorageService(cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalStorageProvider{}, provider)
}
