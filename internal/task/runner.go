package task

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aarnphm/morph/internal/agent"
)

// StatusFunc polls the backend for one task's status.
type StatusFunc func(ctx context.Context, class agent.TaskClass, taskID string) (*agent.TaskStatusResponse, error)

// CompleteFunc receives exactly one call per task when it reaches a
// terminal state. Failure and cancellation arrive here too; they are data,
// not errors.
type CompleteFunc func(t Task, status agent.TaskStatus)

// Runner starts one polling goroutine per registered task and stops it when
// the task leaves the registry. Poll cadence follows the task's class.
type Runner struct {
	reg        *Registry
	status     StatusFunc
	onComplete CompleteFunc
	log        *slog.Logger

	// maxDuration bounds how long a single task may stay in flight before
	// it is abandoned as cancelled.
	maxDuration time.Duration
	interval    func(agent.TaskClass) time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxDuration bounds per-task polling time.
func WithMaxDuration(d time.Duration) RunnerOption {
	return func(r *Runner) { r.maxDuration = d }
}

// WithInterval overrides the per-class poll interval.
func WithInterval(fn func(agent.TaskClass) time.Duration) RunnerOption {
	return func(r *Runner) { r.interval = fn }
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner creates a runner over the given registry.
func NewRunner(reg *Registry, status StatusFunc, onComplete CompleteFunc, opts ...RunnerOption) *Runner {
	r := &Runner{
		reg:         reg,
		status:      status,
		onComplete:  onComplete,
		log:         slog.Default(),
		maxDuration: 10 * time.Minute,
		interval:    func(c agent.TaskClass) time.Duration { return c.PollInterval() },
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds the task to the registry and starts its poller. Registering
// an id that is already pending is a no-op.
func (r *Runner) Register(ctx context.Context, t Task) {
	if !r.reg.Add(t) {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancels[t.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.poll(pollCtx, t)
}

// Stop cancels one task's poller without firing completion. Absent ids are
// a no-op.
func (r *Runner) Stop(id string) {
	r.reg.CompareAndRemove(id)
	r.stopPoller(id)
}

// StopWhere cancels every poller whose task matches, without firing
// completion. Vault switches use a file-id prefix match to drop all of a
// vault's pending work at once.
func (r *Runner) StopWhere(match func(Task) bool) {
	for _, t := range r.reg.RemoveWhere(match) {
		r.stopPoller(t.ID)
	}
}

// StopOwner cancels every poller whose task belongs to the given file.
func (r *Runner) StopOwner(fileID string) {
	r.StopWhere(func(t Task) bool { return t.FileID == fileID })
}

// StopVault cancels every poller whose file id belongs to the given vault.
func (r *Runner) StopVault(vaultID string) {
	prefix := vaultID + ":"
	r.StopWhere(func(t Task) bool { return strings.HasPrefix(t.FileID, prefix) })
}

// Wait blocks until every poller goroutine has exited. Call after the
// parent context is cancelled.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Pending returns a snapshot of the tasks still awaiting completion.
func (r *Runner) Pending() []Task {
	return r.reg.Snapshot()
}

func (r *Runner) poll(ctx context.Context, t Task) {
	defer r.wg.Done()
	defer r.stopPoller(t.ID)

	ticker := time.NewTicker(r.interval(t.Class))
	defer ticker.Stop()
	deadline := time.NewTimer(r.maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown or explicit stop. The registry entry, if still
			// present, is left for the next process start to reconcile.
			return
		case <-deadline.C:
			r.log.Warn("task poll deadline exceeded",
				slog.String("task_id", t.ID),
				slog.Duration("max", r.maxDuration))
			if r.reg.CompareAndRemove(t.ID) {
				r.onComplete(t, agent.StatusCancelled)
			}
			return
		case <-ticker.C:
			status, err := r.status(ctx, t.Class, t.ID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Fail fast: a poll error ends this task without touching
				// its siblings.
				r.log.Error("task poll failed",
					slog.String("task_id", t.ID),
					slog.String("error", err.Error()))
				if r.reg.CompareAndRemove(t.ID) {
					r.onComplete(t, agent.StatusFailure)
				}
				return
			}
			if !status.Status.Terminal() {
				continue
			}
			// Only the observer that wins the removal delivers completion.
			if r.reg.CompareAndRemove(t.ID) {
				r.onComplete(t, status.Status)
			}
			return
		}
	}
}

func (r *Runner) stopPoller(id string) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	if ok {
		delete(r.cancels, id)
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
