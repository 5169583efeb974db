package heap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsComplete(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, defaultChunkSize, cfg.ChunkSize)
	require.Equal(t, pageMapThreshold, cfg.PageMapThreshold)
	require.Equal(t, degradedFragmentationRatio, cfg.DegradedFragmentationRatio)
	require.False(t, cfg.TraceEnabled)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/heap.yaml")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	os.Setenv("HEAP_CHUNKSIZE", "131072")
	defer os.Unsetenv("HEAP_CHUNKSIZE")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 131072, cfg.ChunkSize)
}

func TestNewHeapWithConfigUsesThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageMapThreshold = 256
	h := newHeapWithConfig(cfg)
	require.Equal(t, 256, h.pageMapThreshold)
}
