package affiche

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/affiche/affiche/internal/llmextract"
	"github.com/hazyhaar/affiche/affiche/internal/normalize"
	"github.com/hazyhaar/affiche/affiche/internal/pipeline"
)

// Config configures the affiche service.
type Config struct {
	// Normalize assembles the per-source normalizers.
	Normalize normalize.Config `yaml:"normalize"`

	// Pipeline tunes the batch runner.
	Pipeline pipeline.Config `yaml:"pipeline"`

	// LLM configures the text-understanding fallback for documents the
	// line extractor cannot read. An empty endpoint leaves it off.
	LLM llmextract.Config `yaml:"llm"`

	// RunInterval is the scheduled batch cadence. Zero selects the
	// default (3h); a negative value disables the ticker.
	RunInterval time.Duration `yaml:"run_interval"`

	// WatchInterval and WatchDebounce tune the intake watcher that fires
	// a run when collectors land raw records. Zero selects the defaults
	// (5s poll, 30s quiet window); a negative WatchInterval disables the
	// watcher.
	WatchInterval time.Duration `yaml:"watch_interval"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// LeaseVisibility bounds how long a crashed run keeps the lease
	// before another trigger may claim it. A live run extends its lease,
	// so this only matters after a crash.
	LeaseVisibility time.Duration `yaml:"lease_visibility"`

	// IngestDir is the root directory uploaded document paths resolve
	// against. Paths escaping it are rejected.
	IngestDir string `yaml:"ingest_dir"`
}

func (c *Config) defaults() {
	if c.RunInterval == 0 {
		c.RunInterval = 3 * time.Hour
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = 5 * time.Second
	}
	if c.WatchDebounce == 0 {
		c.WatchDebounce = 30 * time.Second
	}
	if c.LeaseVisibility <= 0 {
		c.LeaseVisibility = 15 * time.Minute
	}
	if c.IngestDir == "" {
		c.IngestDir = "uploads"
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfig reads a YAML config file. Defaults are applied by New, so a
// partial file is fine.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
