/*
backup.go - Periodic database backup scheduler

PURPOSE:
  Copies the cashbook database to a fixed backup path on an interval, and on
  demand. The schedule can be changed at runtime from the API.

DESIGN:
  - Runs a background goroutine driven by a ticker
  - Interval is clamped to [MinBackupInterval, MaxBackupInterval]
  - Changing settings restarts the loop with the new interval
  - Backups never overlap: a manual run waits for a scheduled one

CONFIGURATION:
  - backup.enabled:  Whether the loop runs (default: false)
  - backup.interval: How often to copy (default: 10 minutes)
  - backup.path:     Destination file, overwritten each run

USAGE:
  scheduler := NewBackupScheduler(store, "./data/backups/cashbook.db")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: Backup (VACUUM INTO)
  - handlers.go: backup endpoints
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	MinBackupInterval     = 30 * time.Second
	MaxBackupInterval     = 24 * time.Hour
	DefaultBackupInterval = 10 * time.Minute

	backupTimeout = 5 * time.Minute
)

// Backuper writes a consistent copy of the database to path.
type Backuper interface {
	Backup(ctx context.Context, path string) error
}

// BackupObserver is notified after every backup attempt.
type BackupObserver interface {
	ObserveBackup(at time.Time, err error)
}

// BackupStatus is a point-in-time view of the scheduler.
type BackupStatus struct {
	Enabled    bool
	Running    bool
	Interval   time.Duration
	Path       string
	LastRun    time.Time
	LastError  string
	NextRun    time.Time
	TotalRuns  int
	FailedRuns int
}

// ClampInterval bounds d to the supported range. Zero selects the default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultBackupInterval
	case d < MinBackupInterval:
		return MinBackupInterval
	case d > MaxBackupInterval:
		return MaxBackupInterval
	}
	return d
}

// BackupScheduler handles periodic backups.
type BackupScheduler struct {
	Target   Backuper
	Path     string
	Observer BackupObserver
	Now      func() time.Time

	// loopMu guards the loop lifecycle; mu guards status fields.
	loopMu sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup

	runMu sync.Mutex

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	running  bool
	lastRun  time.Time
	lastErr  error
	nextRun  time.Time
	total    int
	failed   int
}

// NewBackupScheduler creates a disabled scheduler with the default interval.
func NewBackupScheduler(target Backuper, path string) *BackupScheduler {
	return &BackupScheduler{
		Target:   target,
		Path:     path,
		Now:      time.Now,
		interval: DefaultBackupInterval,
	}
}

// Configure sets the schedule and restarts the loop if it is running.
// The returned interval is the clamped value actually in effect.
func (bs *BackupScheduler) Configure(enabled bool, interval time.Duration) time.Duration {
	interval = ClampInterval(interval)

	bs.loopMu.Lock()
	defer bs.loopMu.Unlock()

	bs.mu.Lock()
	bs.enabled = enabled
	bs.interval = interval
	bs.mu.Unlock()

	if bs.ticker != nil {
		bs.stopLocked()
		bs.startLocked()
	}
	return interval
}

// Start begins the scheduler.
func (bs *BackupScheduler) Start() {
	bs.loopMu.Lock()
	defer bs.loopMu.Unlock()
	bs.startLocked()
}

// Stop stops the scheduler and waits for a running backup to finish.
func (bs *BackupScheduler) Stop() {
	bs.loopMu.Lock()
	defer bs.loopMu.Unlock()
	bs.stopLocked()
}

func (bs *BackupScheduler) startLocked() {
	if bs.ticker != nil {
		return
	}

	bs.mu.Lock()
	enabled, interval := bs.enabled, bs.interval
	bs.mu.Unlock()

	if !enabled {
		log.Println("[Backup] Disabled, not starting")
		return
	}

	bs.ticker = time.NewTicker(interval)
	bs.stop = make(chan struct{})
	bs.setNext(bs.Now().Add(interval))
	bs.wg.Add(1)

	go bs.run(bs.ticker, bs.stop, interval)

	log.Printf("[Backup] Started with interval: %v, path: %s", interval, bs.Path)
}

func (bs *BackupScheduler) stopLocked() {
	if bs.ticker == nil {
		return
	}
	bs.ticker.Stop()
	close(bs.stop)
	bs.wg.Wait()
	bs.ticker = nil
	bs.setNext(time.Time{})
	log.Println("[Backup] Stopped")
}

func (bs *BackupScheduler) run(ticker *time.Ticker, stop <-chan struct{}, interval time.Duration) {
	defer bs.wg.Done()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
			_ = bs.RunNow(ctx)
			cancel()
			bs.setNext(bs.Now().Add(interval))
		case <-stop:
			return
		}
	}
}

// RunNow performs one backup immediately.
func (bs *BackupScheduler) RunNow(ctx context.Context) error {
	bs.runMu.Lock()
	defer bs.runMu.Unlock()

	bs.mu.Lock()
	bs.running = true
	bs.mu.Unlock()

	start := bs.Now()
	err := bs.Target.Backup(ctx, bs.Path)

	bs.mu.Lock()
	bs.running = false
	bs.lastRun = start
	bs.lastErr = err
	bs.total++
	if err != nil {
		bs.failed++
	}
	bs.mu.Unlock()

	if err != nil {
		log.Printf("[Backup] Failed: %v", err)
	} else {
		log.Printf("[Backup] Wrote %s in %v", bs.Path, bs.Now().Sub(start))
	}
	if bs.Observer != nil {
		bs.Observer.ObserveBackup(start, err)
	}
	return err
}

// Status returns the current scheduler state.
func (bs *BackupScheduler) Status() BackupStatus {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	s := BackupStatus{
		Enabled:    bs.enabled,
		Running:    bs.running,
		Interval:   bs.interval,
		Path:       bs.Path,
		LastRun:    bs.lastRun,
		NextRun:    bs.nextRun,
		TotalRuns:  bs.total,
		FailedRuns: bs.failed,
	}
	if bs.lastErr != nil {
		s.LastError = bs.lastErr.Error()
	}
	return s
}

func (bs *BackupScheduler) setNext(t time.Time) {
	bs.mu.Lock()
	bs.nextRun = t
	bs.mu.Unlock()
}
