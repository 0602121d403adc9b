package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic ledger maintenance
type Job func(ctx context.Context) error

// ScheduleManager runs named maintenance jobs on cron schedules
type ScheduleManager struct {
	cron    *cron.Cron
	jobs    map[string]*registeredJob
	logger  *zap.Logger
	timeout time.Duration
	mu      sync.RWMutex
	running bool
}

type registeredJob struct {
	name    string
	expr    string
	entryID cron.EntryID
	run     Job

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	runCount int
}

// JobStatus represents the status of a scheduled job
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	PrevRun   time.Time `json:"prev_run"`
	RunCount  int       `json:"run_count"`
	LastError string    `json:"last_error,omitempty"`
}

// NewScheduleManager creates a schedule manager. Each run is bounded by
// timeout; a non-positive timeout means one minute.
func NewScheduleManager(logger *zap.Logger, timeout time.Duration) *ScheduleManager {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ScheduleManager{
		cron:    cron.New(),
		jobs:    make(map[string]*registeredJob),
		logger:  logger,
		timeout: timeout,
	}
}

// Add registers job under name, replacing any job with the same name. expr
// accepts five-field cron expressions and descriptors such as "@every 5m".
func (m *ScheduleManager) Add(name, expr string, job Job) error {
	if err := ValidateCronExpression(expr); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", expr, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[name]; ok {
		m.cron.Remove(existing.entryID)
	}

	registered := &registeredJob{name: name, expr: expr, run: job}
	entryID, err := m.cron.AddFunc(expr, func() {
		_ = m.execute(context.Background(), registered)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	registered.entryID = entryID
	m.jobs[name] = registered

	m.logger.Info("Added schedule", zap.String("job", name), zap.String("cron", expr))
	return nil
}

// Remove unregisters a job
func (m *ScheduleManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[name]; ok {
		m.cron.Remove(job.entryID)
		delete(m.jobs, name)
		m.logger.Info("Removed schedule", zap.String("job", name))
	}
}

// RunNow executes a registered job immediately and returns its error
func (m *ScheduleManager) RunNow(ctx context.Context, name string) error {
	m.mu.RLock()
	job, ok := m.jobs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return m.execute(ctx, job)
}

func (m *ScheduleManager) execute(ctx context.Context, job *registeredJob) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// one run per job at a time
	job.mu.Lock()
	defer job.mu.Unlock()

	started := time.Now()
	err := job.run(ctx)
	job.lastRun = started
	job.lastErr = err
	job.runCount++

	if err != nil {
		m.logger.Error("Scheduled job failed", zap.String("job", job.name), zap.Error(err))
		return err
	}
	m.logger.Debug("Scheduled job completed",
		zap.String("job", job.name),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// Start starts the cron scheduler
func (m *ScheduleManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("schedule manager already running")
	}
	m.running = true
	m.cron.Start()

	m.logger.Info("Starting schedule manager", zap.Int("jobs", len(m.jobs)))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (m *ScheduleManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Stopping schedule manager")
	<-m.cron.Stop().Done()
}

// GetActiveJobs returns the number of registered jobs
func (m *ScheduleManager) GetActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// GetJobStatus returns the status of a registered job
func (m *ScheduleManager) GetJobStatus(name string) (*JobStatus, error) {
	m.mu.RLock()
	job, ok := m.jobs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}

	entry := m.cron.Entry(job.entryID)
	job.mu.Lock()
	defer job.mu.Unlock()

	status := &JobStatus{
		Name:     job.name,
		Schedule: job.expr,
		NextRun:  entry.Next,
		PrevRun:  entry.Prev,
		RunCount: job.runCount,
	}
	if job.lastErr != nil {
		status.LastError = job.lastErr.Error()
	}
	return status, nil
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
