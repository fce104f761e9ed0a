// Package scheduler provides cron-based scheduling for recurring mbox
// re-imports.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wesm/mboxvault/internal/config"
)

// ImportFunc is the callback invoked when a scheduled import should run.
// It receives the configured path and returns how many new records landed.
// Re-importing is idempotent, so a run over an unchanged file imports zero.
type ImportFunc func(ctx context.Context, path string) (int, error)

// ImportStatus represents the state of one scheduled import.
type ImportStatus struct {
	Path         string    `json:"path"`
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"last_run,omitempty"`
	LastImported int       `json:"last_imported"`
	NextRun      time.Time `json:"next_run"`
	Schedule     string    `json:"schedule"`
	LastError    string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based import scheduling.
type Scheduler struct {
	cron       *cron.Cron
	importFunc ImportFunc
	logger     *slog.Logger

	mu           sync.RWMutex
	jobs         map[string]cron.EntryID // path -> cron entry ID
	schedules    map[string]string       // path -> cron expression
	running      map[string]bool         // path -> currently importing
	lastRun      map[string]time.Time    // path -> last successful run
	lastImported map[string]int          // path -> records added by last successful run
	lastErr      map[string]error        // path -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running import goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// New creates a new Scheduler with the given import callback.
func New(importFunc ImportFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         cron.New(cron.WithParser(newParser())),
		importFunc:   importFunc,
		logger:       slog.Default(),
		jobs:         make(map[string]cron.EntryID),
		schedules:    make(map[string]string),
		running:      make(map[string]bool),
		lastRun:      make(map[string]time.Time),
		lastImported: make(map[string]int),
		lastErr:      make(map[string]error),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddImport schedules a re-import of path using the given cron expression.
// Returns an error if the cron expression is invalid.
func (s *Scheduler) AddImport(path, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing schedule if present
	if entryID, exists := s.jobs[path]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, path)
		delete(s.schedules, path)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[path] {
			s.mu.Unlock()
			return
		}
		s.running[path] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runImport(path)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[path] = entryID
	s.schedules[path] = cronExpr
	s.logger.Info("scheduled import",
		"path", path,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddImportsFromConfig adds all enabled imports from the config.
// Returns the number of imports scheduled and any errors encountered.
func (s *Scheduler) AddImportsFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for _, imp := range cfg.ScheduledImports() {
		if err := s.AddImport(imp.Path, imp.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", imp.Path, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// RemoveImport removes the schedule for path.
func (s *Scheduler) RemoveImport(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[path]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, path)
		delete(s.schedules, path)
		s.logger.Info("removed schedule", "path", path)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler and cancels running imports, which roll back.
// The returned context is done when all work has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// runImport executes one import (called by cron or TriggerImport).
// The caller must have already called wg.Add(1) and set running[path] = true.
func (s *Scheduler) runImport(path string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[path] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled import", "path", path)
	start := time.Now()

	n, err := s.importFunc(s.ctx, path)

	s.mu.Lock()
	if err != nil {
		s.lastErr[path] = err
		s.logger.Error("scheduled import failed",
			"path", path,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[path] = time.Now()
		s.lastImported[path] = n
		s.lastErr[path] = nil
		s.logger.Info("scheduled import completed",
			"path", path,
			"imported", n,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if path has been added to the scheduler.
func (s *Scheduler) IsScheduled(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[path]
	return exists
}

// TriggerImport runs a scheduled import now, outside of its schedule.
// Returns an error if an import of path is already running, path is not
// scheduled, or the scheduler has been stopped.
func (s *Scheduler) TriggerImport(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[path]; !exists {
		return fmt.Errorf("%s is not scheduled", path)
	}
	if s.running[path] {
		return fmt.Errorf("import already running for %s", path)
	}

	s.running[path] = true
	s.wg.Add(1)
	go s.runImport(path)
	return nil
}

// Status returns the state of every scheduled import, ordered by path.
func (s *Scheduler) Status() []ImportStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]ImportStatus, 0, len(s.jobs))
	for path, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := ImportStatus{
			Path:         path,
			Running:      s.running[path],
			LastRun:      s.lastRun[path],
			LastImported: s.lastImported[path],
			NextRun:      entry.Next,
			Schedule:     s.schedules[path],
		}
		if err := s.lastErr[path]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Path < statuses[j].Path })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := newParser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
