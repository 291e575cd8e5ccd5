package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hazyhaar/affiche/dbopen"
)

// RuntimeMetrics captures Go process health at a point in time.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
	MemorySysMB     float64
	GCCount         uint32
}

// CollectRuntimeMetrics reads the current runtime stats. Cheap enough to
// call on every beat.
func CollectRuntimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	const mb = 1 << 20
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(ms.Alloc) / mb,
		MemorySysMB:     float64(ms.Sys) / mb,
		GCCount:         ms.NumGC,
	}
}

// HeartbeatWriter writes periodic liveness rows to worker_heartbeats so an
// operator can tell a stalled scheduler from a dead process.
type HeartbeatWriter struct {
	db       *sql.DB
	worker   string
	hostname string
	pid      int
	interval time.Duration
	quit     chan struct{}
	wg       sync.WaitGroup
}

func hostName() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// NewHeartbeatWriter creates a writer for the named worker. The staleness
// threshold readers use should be a small multiple of interval.
func NewHeartbeatWriter(db *sql.DB, workerName string, interval time.Duration) *HeartbeatWriter {
	return &HeartbeatWriter{
		db:       db,
		worker:   workerName,
		hostname: hostName(),
		pid:      os.Getpid(),
		interval: interval,
		quit:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine. It runs until Stop or context
// cancellation.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	hw.wg.Add(1)
	go hw.loop(ctx)
}

const insertBeatSQL = `
INSERT INTO worker_heartbeats
  (timestamp, worker_name, hostname, worker_pid,
   goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count)
VALUES (?,?,?,?,?,?,?,?)`

// WriteHeartbeat writes one beat with current runtime stats. The write
// shares the observability database with the metrics flusher, so it retries
// on BUSY; it runs on a short detached deadline because a beat is still
// worth landing while the service is shutting down.
func (hw *HeartbeatWriter) WriteHeartbeat() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m := CollectRuntimeMetrics()
	_, err := dbopen.Exec(ctx, hw.db, insertBeatSQL,
		time.Now().Unix(), hw.worker, hw.hostname, hw.pid,
		m.GoroutinesCount, m.MemoryAllocMB, m.MemorySysMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("write heartbeat row: %w", err)
	}
	return nil
}

// Stop signals the heartbeat goroutine to exit and waits for it.
func (hw *HeartbeatWriter) Stop() {
	close(hw.quit)
	hw.wg.Wait()
}

func (hw *HeartbeatWriter) loop(ctx context.Context) {
	defer hw.wg.Done()

	beat := func() {
		if err := hw.WriteHeartbeat(); err != nil {
			slog.Error("heartbeat write failed", "worker", hw.worker, "error", err)
		}
	}

	// First beat fires immediately so restarts show up without waiting a
	// full interval.
	beat()

	tick := time.NewTicker(hw.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hw.quit:
			return
		case <-tick.C:
			beat()
		}
	}
}

// HeartbeatStatus is the latest beat for a worker with the staleness
// verdict already computed.
type HeartbeatStatus struct {
	WorkerName      string         `json:"worker_name"`
	Hostname        string         `json:"hostname"`
	PID             int            `json:"pid"`
	Timestamp       time.Time      `json:"timestamp"`
	GoroutinesCount int            `json:"goroutines_count"`
	MemoryAllocMB   float64        `json:"memory_alloc_mb"`
	MemorySysMB     float64        `json:"memory_sys_mb"`
	GCCount         int            `json:"gc_count"`
	Alive           bool           `json:"alive"`
	StaleSince      *time.Duration `json:"stale_since,omitempty"`
}

func (hs *HeartbeatStatus) judge(threshold time.Duration) {
	age := time.Since(hs.Timestamp)
	if age <= threshold {
		hs.Alive = true
		return
	}
	overshoot := age - threshold
	hs.StaleSince = &overshoot
}

const selectBeatSQL = `
SELECT timestamp, worker_name, hostname, worker_pid,
       goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
  FROM worker_heartbeats
 WHERE worker_name = ?
 ORDER BY timestamp DESC
 LIMIT 1`

// LatestHeartbeat returns the newest beat for workerName, judged against
// stalenessThreshold (typically 3x the write interval). Returns nil, nil
// when the worker has never beaten.
func LatestHeartbeat(ctx context.Context, db *sql.DB, workerName string, stalenessThreshold time.Duration) (*HeartbeatStatus, error) {
	var (
		hs HeartbeatStatus
		ts int64
	)
	row := db.QueryRowContext(ctx, selectBeatSQL, workerName)
	switch err := row.Scan(&ts, &hs.WorkerName, &hs.Hostname, &hs.PID,
		&hs.GoroutinesCount, &hs.MemoryAllocMB, &hs.MemorySysMB, &hs.GCCount); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load latest heartbeat: %w", err)
	}

	hs.Timestamp = time.Unix(ts, 0)
	hs.judge(stalenessThreshold)
	return &hs, nil
}
