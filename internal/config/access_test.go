package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPath(t *testing.T) {
	cfg := Defaults()
	cfg.Directory.BaseURL = "https://mdm.example.test"
	cfg.Directory.Cache.Backend = CacheBackendRedis
	cfg.Directory.Cache.RedisAddr = "redis:6379"

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{name: "root field", path: "service.name", want: "commitgate"},
		{name: "nested field", path: "directory.cache.redis_addr", want: "redis:6379"},
		{name: "duration renders as string", path: "service.invocation_budget", want: "25s"},
		{name: "integer", path: "retry.max_attempts", want: 4},
		{name: "missing key", path: "service.missing", wantErr: true},
		{name: "through a scalar", path: "service.name.first", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPathEmptyReturnsDocument(t *testing.T) {
	got, err := Defaults().GetPath("")
	require.NoError(t, err)

	doc, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, doc, "vcs")
	assert.Contains(t, doc, "directory")
	assert.NotContains(t, doc, "SourcePath")
}
