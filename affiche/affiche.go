package affiche

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/affiche/affiche/internal/llmextract"
	"github.com/hazyhaar/affiche/affiche/internal/normalize"
	"github.com/hazyhaar/affiche/affiche/internal/pipeline"
	"github.com/hazyhaar/affiche/affiche/internal/store"
	"github.com/hazyhaar/affiche/docpipe"
	"github.com/hazyhaar/affiche/horosafe"
	"github.com/hazyhaar/affiche/observability"
	"github.com/hazyhaar/affiche/vtq"
	"github.com/hazyhaar/affiche/watch"
)

// leaseJobID is the permanent queue row whose claim serializes batch runs.
const leaseJobID = "pipeline"

// Service is the catalog orchestrator: one store, one normalizer registry,
// one batch runner, and the lease that collapses concurrent run triggers to
// a single batch in flight.
type Service struct {
	db        *sql.DB
	store     *store.Store
	registry  *normalize.Registry
	runner    *pipeline.Runner
	lease     *vtq.Q
	watcher   *watch.Watcher
	docs      *docpipe.Pipeline
	llm       *llmextract.Client
	metrics   pipeline.Metrics
	heartbeat *observability.HeartbeatWriter
	logger    *slog.Logger
	config    *Config
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithMetrics sets the metrics sink for run counters. Typically an
// *observability.MetricsManager on a separate database.
func WithMetrics(m pipeline.Metrics) ServiceOption {
	return func(svc *Service) { svc.metrics = m }
}

// WithHeartbeat sets a heartbeat writer that Start launches alongside the
// run triggers.
func WithHeartbeat(hw *observability.HeartbeatWriter) ServiceOption {
	return func(svc *Service) { svc.heartbeat = hw }
}

// WithLLMExtractor overrides the text-understanding client built from
// Config.LLM. Use in tests with httptest endpoints.
func WithLLMExtractor(c *llmextract.Client) ServiceOption {
	return func(svc *Service) { svc.llm = c }
}

// New creates an affiche Service on db, applying the catalog schema and
// seeding the run lease.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	svc := &Service{
		db:     db,
		store:  store.NewStore(db),
		docs:   docpipe.New(docpipe.Config{Logger: logger}),
		logger: logger,
		config: cfg,
	}

	// Apply options before assembly so injected clients and sinks are
	// visible below.
	for _, opt := range opts {
		opt(svc)
	}

	if svc.llm == nil && cfg.LLM.Endpoint != "" {
		lcfg := cfg.LLM
		lcfg.Logger = logger
		svc.llm = llmextract.New(lcfg)
	}

	ncfg := cfg.Normalize
	ncfg.LLM = svc.llm
	ncfg.Logger = logger
	svc.registry = normalize.New(ncfg)

	pcfg := cfg.Pipeline
	pcfg.Logger = logger
	if pcfg.Metrics == nil {
		pcfg.Metrics = svc.metrics
	}
	svc.runner = pipeline.New(svc.store, svc.registry, pcfg)

	svc.lease = vtq.New(db, vtq.Options{Queue: "pipeline", Visibility: cfg.LeaseVisibility})
	ctx := context.Background()
	if err := svc.lease.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("lease table: %w", err)
	}
	if err := svc.lease.EnsureJob(ctx, leaseJobID, nil); err != nil {
		return nil, fmt.Errorf("seed lease: %w", err)
	}

	if cfg.WatchInterval > 0 {
		svc.watcher = watch.New(db, watch.Options{
			Interval: cfg.WatchInterval,
			Debounce: cfg.WatchDebounce,
			Detector: watch.MaxColumnDetector("raw_records", "id"),
			Logger:   logger,
		})
	}

	return svc, nil
}

// Start launches the background triggers: the interval ticker, the intake
// watcher and the heartbeat. Non-blocking; everything stops when ctx is
// cancelled.
func (svc *Service) Start(ctx context.Context) {
	if svc.config.RunInterval > 0 {
		go svc.tick(ctx)
	}
	if svc.watcher != nil {
		// Losing the lease leaves the watch version unadvanced, so the
		// wake-up is retried once the running batch finishes.
		go svc.watcher.OnChange(ctx, func() error {
			_, err := svc.RunOnce(ctx)
			return err
		})
	}
	if svc.heartbeat != nil {
		svc.heartbeat.Start(ctx)
	}
	svc.logger.Info("affiche: started",
		"run_interval", svc.config.RunInterval,
		"watch", svc.watcher != nil)
}

// Close shuts down the service.
func (svc *Service) Close() error {
	svc.logger.Info("affiche: closed")
	return nil
}

// tick runs the batch on a fixed cadence. The first run fires immediately
// so a restart drains whatever collectors landed while the service was
// down.
func (svc *Service) tick(ctx context.Context) {
	t := time.NewTicker(svc.config.RunInterval)
	defer t.Stop()
	for {
		if _, err := svc.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) && ctx.Err() == nil {
			svc.logger.Error("scheduled run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce claims the run lease and drives one batch to completion. A second
// caller while a run is in flight gets ErrRunInProgress. The lease is
// released as soon as the run returns, so the visibility timeout only
// matters after a crash.
func (svc *Service) RunOnce(ctx context.Context) (*Outcome, error) {
	job, err := svc.lease.Claim(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim run lease: %w", err)
	}
	if job == nil {
		return nil, ErrRunInProgress
	}
	defer func() {
		// The run's context may already be cancelled; the release still
		// has to land or the lease stays held until the timeout.
		if err := svc.lease.Nack(context.Background(), job.ID); err != nil {
			svc.logger.Warn("release run lease", "error", err)
		}
	}()

	// A run outliving the lease visibility would let a second trigger
	// claim mid-batch. Extend at half-life until the run returns.
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(svc.config.LeaseVisibility / 2)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := svc.lease.Extend(ctx, job.ID, svc.config.LeaseVisibility); err != nil {
					svc.logger.Warn("extend run lease", "error", err)
				}
			}
		}
	}()
	defer close(stop)

	return svc.runner.Run(ctx)
}

// Status is a point-in-time view of the catalog and its intake backlog.
type Status struct {
	LatestRun  *Run           `json:"latest_run,omitempty"`
	PendingRaw int            `json:"pending_raw"`
	Events     int            `json:"events"`
	Sources    map[string]int `json:"sources,omitempty"`
}

// Status reports the latest run, the intake backlog and the catalog size
// broken down by source label.
func (svc *Service) Status(ctx context.Context) (*Status, error) {
	latest, err := svc.store.LatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	pending, err := svc.store.CountPendingRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending raw: %w", err)
	}
	events, err := svc.store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	sources, err := svc.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return &Status{
		LatestRun:  latest,
		PendingRaw: pending,
		Events:     events,
		Sources:    sources,
	}, nil
}

// Runs returns the most recent runs, newest first.
func (svc *Service) Runs(ctx context.Context, limit int) ([]*Run, error) {
	return svc.store.ListRuns(ctx, limit)
}

// Search queries the catalog. Text runs as an FTS5 match; source and
// category filter exactly.
func (svc *Service) Search(ctx context.Context, q SearchQuery) ([]*Event, error) {
	return svc.store.SearchEvents(ctx, q)
}

// InsertRaw stores one collected record for the next batch. The tag is not
// validated against the registry: unknown tags are stored and skipped at
// normalize time, so collectors can ship ahead of the catalog.
func (svc *Service) InsertRaw(ctx context.Context, sourceTag string, payload json.RawMessage) (*RawRecord, error) {
	sourceTag = strings.TrimSpace(sourceTag)
	if sourceTag == "" {
		return nil, fmt.Errorf("%w: source_tag is required", ErrInvalidInput)
	}
	// Tags are identifier-shaped, optionally namespaced ("document:pdf").
	// They land in logs and search filters, so reject oddballs early.
	for _, part := range strings.SplitN(sourceTag, ":", 2) {
		if err := horosafe.ValidateIdentifier(part); err != nil {
			return nil, fmt.Errorf("%w: source_tag: %v", ErrInvalidInput, err)
		}
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload must be a JSON document", ErrInvalidInput)
	}
	rec := &RawRecord{SourceTag: sourceTag, Payload: payload}
	if err := svc.store.InsertRawRecord(ctx, rec); err != nil {
		return nil, err
	}
	svc.logger.Debug("raw record stored", "source", sourceTag, "raw_id", rec.ID)
	return rec, nil
}
