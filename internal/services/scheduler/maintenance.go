package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 2 * time.Minute

// Job is one named maintenance task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Maintenance runs jobs on a cron schedule. A job still running when its
// next tick fires is skipped.
type Maintenance struct {
	cron     *cron.Cron
	schedule string
	jobs     []Job
	mu       sync.Mutex
	started  bool
	timeout  time.Duration
}

// NewMaintenance validates schedule ("@every 1h", "0 */6 * * *", ...).
func NewMaintenance(schedule string, jobs ...Job) (*Maintenance, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	return &Maintenance{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		jobs:     jobs,
		timeout:  defaultJobTimeout,
	}, nil
}

// RunOnce executes every job immediately, in order.
func (m *Maintenance) RunOnce(ctx context.Context) {
	for _, job := range m.jobs {
		m.runJob(ctx, job)
	}
}

// Start registers the jobs and starts the cron loop.
func (m *Maintenance) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if _, err := m.cron.AddFunc(m.schedule, func() { m.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	m.cron.Start()
	m.started = true
	fiberlog.Infof("Maintenance scheduler started (%s, %d job(s))", m.schedule, len(m.jobs))
	return nil
}

// Stop halts the loop and waits for a running job to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	<-m.cron.Stop().Done()
	m.started = false
	fiberlog.Info("Maintenance scheduler stopped")
}

func (m *Maintenance) runJob(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		fiberlog.Errorf("Maintenance: %s failed after %v: %v", job.Name, time.Since(start), err)
		return
	}
	fiberlog.Debugf("Maintenance: %s finished in %v", job.Name, time.Since(start))
}
