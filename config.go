package heap

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds the heap's tunable thresholds. The heap never requires
// a config file or environment variables to function — DefaultConfig()
// is always a complete, valid configuration.
type Config struct {
	// ChunkSize is the minimum number of bytes requested per
	// heap-extension OS call. Must be >= 64 KiB.
	ChunkSize int
	// PageMapThreshold is the total-footprint cutover to the page-map
	// path. Fixed at 128 KiB in production; exposed here only so tests
	// can shrink it to exercise the large-allocation path without
	// allocating 128 KiB blocks.
	PageMapThreshold int
	// DegradedFragmentationRatio is the optional threshold above which
	// small requests may be routed through the page-map path.
	DegradedFragmentationRatio float64
	// TraceEnabled mirrors the HEAP_TRACE environment variable default.
	TraceEnabled bool
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:                  defaultChunkSize,
		PageMapThreshold:           pageMapThreshold,
		DegradedFragmentationRatio: degradedFragmentationRatio,
		TraceEnabled:               false,
	}
}

// LoadConfig reads optional overrides from path (YAML, TOML, JSON — any
// format viper supports) layered over environment variables prefixed
// HEAP_ (e.g. HEAP_CHUNKSIZE) layered over DefaultConfig(). A missing
// path is not an error: the defaults are returned unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("HEAP")
	v.AutomaticEnv()
	v.SetDefault("chunksize", cfg.ChunkSize)
	v.SetDefault("pagemapthreshold", cfg.PageMapThreshold)
	v.SetDefault("degradedfragmentationratio", cfg.DegradedFragmentationRatio)
	v.SetDefault("traceenabled", cfg.TraceEnabled)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	cfg.ChunkSize = v.GetInt("chunksize")
	cfg.PageMapThreshold = v.GetInt("pagemapthreshold")
	cfg.DegradedFragmentationRatio = v.GetFloat64("degradedfragmentationratio")
	cfg.TraceEnabled = v.GetBool("traceenabled")
	return cfg, nil
}

// Apply installs cfg's tunables into the default process-wide heap:
// chunk size and trace flag. PageMapThreshold and
// DegradedFragmentationRatio are exposed on Config for constructing
// isolated Heap values in tests, not for mutating the shared singleton,
// since the 128 KiB cutover is fixed in production use.
func (c Config) Apply() {
	defaultHeap().source.setChunkSize(c.ChunkSize)
	SetTrace(c.TraceEnabled)
}
