package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jackzampolin/papercast/internal/podcast"
)

// Manager runs jobs concurrently with a fixed slot count and owns per-job
// cancellation. Jobs beyond the slot count queue on the semaphore.
type Manager struct {
	orch   *Orchestrator
	slots  *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a job manager with maxConcurrent slots.
func NewManager(orch *Orchestrator, maxConcurrent int, logger *slog.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		orch:    orch,
		slots:   semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Enqueue schedules a job for execution. It returns immediately; the job
// waits for a free slot and then runs to a terminal state.
func (m *Manager) Enqueue(ctx context.Context, jobID string) {
	jobCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.cancels, jobID)
			m.mu.Unlock()
			cancel()
		}()

		if err := m.slots.Acquire(jobCtx, 1); err != nil {
			// Cancelled while queued; mark the job failed so callers see it.
			m.orch.fail(jobID, podcast.WrapError(podcast.ErrCancelled, err))
			return
		}
		defer m.slots.Release(1)

		if err := m.orch.Run(jobCtx, jobID); err != nil {
			m.logger.Warn("job finished with error", "job_id", jobID, "error", err)
		}
	}()
}

// Cancel requests cancellation of a running or queued job. The job moves to
// failed with a cancelled error; artifacts already produced are retained.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if !ok {
		return podcast.ErrJobNotFound
	}
	cancel()
	return nil
}

// Running reports whether the manager is tracking the job.
func (m *Manager) Running(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancels[jobID]
	return ok
}

// Wait blocks until every enqueued job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
