package library

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tunables consumed by the reconciler and watcher. Values
// come from .libr/config.toml; a missing file yields the defaults.
type Config struct {
	// DebounceMS is the watcher debounce window in milliseconds.
	DebounceMS int
	// MinFileSizeBytes is the smallest file the watcher will surface as a
	// new document (guards against partially-copied files).
	MinFileSizeBytes int64
	// WatchExtensions is the document file-extension allowlist, lowercase
	// without dots.
	WatchExtensions []string
	// IgnoreGlobs are path.Match patterns skipped by the scanner and
	// watcher, matched against library-relative paths.
	IgnoreGlobs []string
	// HashMoveDetection enables content-hash matching of untracked files
	// against missing documents during diff.
	HashMoveDetection bool
	// HashPrefixBytes bounds how much of each file is hashed.
	HashPrefixBytes int64
	// LogFile, when set, routes logs to a rotating file instead of stderr.
	LogFile string
}

// DefaultExtensions is the document allowlist used when none is configured.
var DefaultExtensions = []string{
	"pdf", "epub", "djvu", "mobi", "fb2", "txt", "html", "htm", "azw3", "cbz", "cbr",
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceMS:        2000,
		MinFileSizeBytes:  1024,
		WatchExtensions:   append([]string(nil), DefaultExtensions...),
		IgnoreGlobs:       nil,
		HashMoveDetection: false,
		HashPrefixBytes:   256 * 1024,
	}
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// LoadConfig reads .libr/config.toml, applying defaults for absent keys.
// A missing config file is not an error.
func (r *Root) LoadConfig() (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(r.ConfigPath())
	v.SetDefault("watch.debounce_ms", def.DebounceMS)
	v.SetDefault("watch.min_file_size_bytes", def.MinFileSizeBytes)
	v.SetDefault("watch.extensions", def.WatchExtensions)
	v.SetDefault("scan.ignore_globs", def.IgnoreGlobs)
	v.SetDefault("scan.hash_move_detection", def.HashMoveDetection)
	v.SetDefault("scan.hash_prefix_bytes", def.HashPrefixBytes)
	v.SetDefault("log.file", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", r.ConfigPath(), err)
		}
	}

	return &Config{
		DebounceMS:        v.GetInt("watch.debounce_ms"),
		MinFileSizeBytes:  v.GetInt64("watch.min_file_size_bytes"),
		WatchExtensions:   v.GetStringSlice("watch.extensions"),
		IgnoreGlobs:       v.GetStringSlice("scan.ignore_globs"),
		HashMoveDetection: v.GetBool("scan.hash_move_detection"),
		HashPrefixBytes:   v.GetInt64("scan.hash_prefix_bytes"),
		LogFile:           v.GetString("log.file"),
	}, nil
}
