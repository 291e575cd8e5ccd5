package docpipe

import "log/slog"

// DefaultMaxFileSize is the per-document size cap applied when Config
// leaves MaxFileSize unset.
const DefaultMaxFileSize = 100 << 20

// Config tunes the extraction pipeline.
type Config struct {
	// MaxFileSize caps the size of a single document; larger files are
	// rejected before any parsing.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Logger receives extraction diagnostics. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
