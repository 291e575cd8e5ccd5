// Package pipeline drives one catalog batch run: fetch the pending raw
// records, normalize them across a bounded worker pool, insert the
// resulting events serially, and retire the raw records whose output is
// fully accounted for.
//
// The Runner performs no run serialization of its own; the service wraps
// it in a queue claim so concurrent triggers collapse to one run in
// flight.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/affiche/affiche/internal/normalize"
	"github.com/hazyhaar/affiche/affiche/internal/store"
	"github.com/hazyhaar/affiche/idgen"
	"github.com/hazyhaar/affiche/observability"
)

// Metrics receives run-level counters. Satisfied by
// observability.MetricsManager.
type Metrics interface {
	RecordSimple(name string, value float64, unit string)
}

// Config tunes a Runner.
type Config struct {
	// Workers bounds the normalization fan-out. Default: 4.
	Workers int `yaml:"workers"`

	Metrics Metrics      `yaml:"-"`
	Logger  *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Runner executes batch runs against one store.
type Runner struct {
	store    *store.Store
	registry *normalize.Registry
	cfg      Config
	log      *slog.Logger
	newID    func() string
}

// New creates a Runner.
func New(st *store.Store, reg *normalize.Registry, cfg Config) *Runner {
	cfg.defaults()
	return &Runner{
		store:    st,
		registry: reg,
		cfg:      cfg,
		log:      cfg.Logger.With("component", "pipeline"),
		newID:    idgen.New,
	}
}

// SourceCounts aggregates one source tag's outcomes within a run.
type SourceCounts struct {
	Fetched      int `json:"fetched"`
	Missing      int `json:"missing"`
	Skipped      int `json:"skipped"`
	Dropped      int `json:"dropped"`
	Normalized   int `json:"normalized"`
	Inserted     int `json:"inserted"`
	Duplicates   int `json:"duplicates"`
	InsertFailed int `json:"insert_failed"`
}

// Outcome is one run's bookkeeping row plus its per-source breakdown.
type Outcome struct {
	Run     *store.Run               `json:"run"`
	Sources map[string]*SourceCounts `json:"sources"`
}

func (o *Outcome) counts(tag string) *SourceCounts {
	c, ok := o.Sources[tag]
	if !ok {
		c = &SourceCounts{}
		o.Sources[tag] = c
	}
	return c
}

// result carries one record's normalization outcome. Results are addressed
// by input position so the insert phase walks them in fetch order
// regardless of worker completion order.
type result struct {
	rec     *store.RawRecord
	events  []*store.Event
	err     error
	missing bool
}

// Run executes one batch. The returned Outcome is non-nil whenever a run
// row was written, including failed runs.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	started := time.Now()
	run, err := r.store.StartRun(ctx, r.newID())
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	log := r.log.With("run_id", run.ID)
	out := &Outcome{Run: run, Sources: make(map[string]*SourceCounts)}

	records, err := r.store.ListPendingRaw(ctx)
	if err != nil {
		run.Status = store.RunStatusError
		run.Error = err.Error()
		r.finalize(run)
		return out, fmt.Errorf("fetch pending: %w", err)
	}
	run.Fetched = len(records)
	for _, rec := range records {
		out.counts(rec.SourceTag).Fetched++
	}

	results := r.normalizeAll(ctx, records)
	if ctx.Err() != nil {
		run.Status = store.RunStatusError
		run.Error = ctx.Err().Error()
		r.finalize(run)
		return out, ctx.Err()
	}

	retire := r.load(ctx, results, out)
	if len(retire) > 0 {
		n, err := r.store.DeleteRawRecords(ctx, retire)
		if err != nil {
			run.Status = store.RunStatusError
			run.Error = fmt.Sprintf("retire: %v", err)
			r.finalize(run)
			return out, fmt.Errorf("retire: %w", err)
		}
		run.Retired = n
	}

	run.Status = store.RunStatusDone
	r.finalize(run)
	r.record(run, time.Since(started))
	log.Info("run complete",
		"fetched", run.Fetched, "missing", run.Missing, "skipped", run.Skipped,
		"dropped", run.Dropped, "normalized", run.Normalized,
		"inserted", run.Inserted, "duplicates", run.Duplicates,
		"insert_failed", run.InsertFailed, "retired", run.Retired,
		"duration", time.Since(started))
	return out, nil
}

// normalizeAll fans the batch out across the worker pool. Cancellation
// stops dispatch; workers already running finish their record.
func (r *Runner) normalizeAll(ctx context.Context, records []*store.RawRecord) []result {
	results := make([]result, len(records))
	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup

	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		n, ok := r.registry.Lookup(rec.SourceTag)
		if !ok {
			results[i] = result{rec: rec, missing: true}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rec *store.RawRecord, n normalize.Normalizer) {
			defer wg.Done()
			defer func() { <-sem }()
			events, err := n.Normalize(ctx, rec)
			results[i] = result{rec: rec, events: events, err: err}
		}(i, rec, n)
	}
	wg.Wait()
	return results
}

// load inserts the normalized events serially in fetch order and returns
// the raw ids safe to retire: every produced event inserted or confirmed
// duplicate, or the normalizer judged the record unusable. Missing
// normalizers and normalizer errors leave the record pending.
func (r *Runner) load(ctx context.Context, results []result, out *Outcome) []int64 {
	run := out.Run
	retire := make([]int64, 0, len(results))
	for _, res := range results {
		if res.rec == nil {
			continue // dispatch stopped before this record; stays pending
		}
		c := out.counts(res.rec.SourceTag)
		switch {
		case res.missing:
			run.Missing++
			c.Missing++
		case res.err != nil:
			run.Skipped++
			c.Skipped++
			r.log.Warn("record skipped",
				"source", res.rec.SourceTag, "raw_id", res.rec.ID, "error", res.err)
		case len(res.events) == 0:
			run.Dropped++
			c.Dropped++
			retire = append(retire, res.rec.ID)
		default:
			stored := true
			for _, ev := range res.events {
				run.Normalized++
				c.Normalized++
				inserted, err := r.store.InsertEvent(ctx, ev)
				if err != nil {
					run.InsertFailed++
					c.InsertFailed++
					stored = false
					r.log.Warn("insert failed",
						"source", res.rec.SourceTag, "raw_id", res.rec.ID,
						"url", ev.URL, "error", err)
					continue
				}
				if inserted {
					run.Inserted++
					c.Inserted++
				} else {
					run.Duplicates++
					c.Duplicates++
				}
			}
			if stored {
				retire = append(retire, res.rec.ID)
			}
		}
	}
	return retire
}

// finalize writes the terminal run row. The run's own context may already
// be gone, so the bookkeeping write gets a short detached deadline.
func (r *Runner) finalize(run *store.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.FinishRun(ctx, run); err != nil {
		r.log.Error("finalize run", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) record(run *store.Run, elapsed time.Duration) {
	m := r.cfg.Metrics
	if m == nil {
		return
	}
	m.RecordSimple(observability.MetricRunDurationMs, float64(elapsed.Milliseconds()), "milliseconds")
	m.RecordSimple(observability.MetricRecordsFetched, float64(run.Fetched), "count")
	m.RecordSimple(observability.MetricRecordsMissing, float64(run.Missing), "count")
	m.RecordSimple(observability.MetricRecordsSkipped, float64(run.Skipped), "count")
	m.RecordSimple(observability.MetricEventsInserted, float64(run.Inserted), "count")
	m.RecordSimple(observability.MetricEventsDuplicate, float64(run.Duplicates), "count")
}
