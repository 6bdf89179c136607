package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/order-asset-packer/internal/pipeline"
	"github.com/tendant/order-asset-packer/internal/progress"
)

// ErrNotReady is returned by Archive while a job is still running or after
// it failed.
var ErrNotReady = errors.New("archive not ready")

// Task runs one job. It must report through reporter and return the archive
// path on success. The job id is available through IDFromContext.
type Task func(ctx context.Context, inputPath, outputDir string, reporter progress.Reporter) (string, error)

type jobIDKey struct{}

// IDFromContext returns the id of the job a Task is running, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey{}).(string)
	return id, ok
}

// PipelineTask runs pipeline.Run with fixed options.
func PipelineTask(opts pipeline.Options, extra ...pipeline.Option) Task {
	return func(ctx context.Context, inputPath, outputDir string, reporter progress.Reporter) (string, error) {
		return pipeline.Run(ctx, inputPath, outputDir, reporter, opts, extra...)
	}
}

// Runner starts each submitted job on its own goroutine in its own output
// directory and records state transitions in a Store.
type Runner struct {
	store   Store
	task    Task
	workDir string
	logger  *slog.Logger
	now     func() time.Time
	observe func(id string) progress.Reporter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	done    map[string]chan struct{}
	running sync.WaitGroup
}

type RunnerOption func(*Runner)

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithObserver adds a per-job reporter that sees every update after the
// store does.
func WithObserver(observe func(id string) progress.Reporter) RunnerOption {
	return func(r *Runner) { r.observe = observe }
}

func NewRunner(store Store, workDir string, task Task, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:   store,
		task:    task,
		workDir: workDir,
		logger:  slog.Default(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(map[string]chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OutputDir is where job id writes its files.
func (r *Runner) OutputDir(id string) string {
	return filepath.Join(r.workDir, id, "output")
}

// ErrDuplicateJob is returned by SubmitID for an id already in use.
var ErrDuplicateJob = errors.New("job already exists")

// Submit registers a job for inputPath under a fresh UUID and starts it.
func (r *Runner) Submit(inputPath string) (string, error) {
	id := uuid.NewString()
	if err := r.SubmitID(id, inputPath); err != nil {
		return "", err
	}
	return id, nil
}

// SubmitID is Submit with a caller-chosen id.
func (r *Runner) SubmitID(id, inputPath string) error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("runner closed: %w", err)
	}

	ch := make(chan struct{})
	r.mu.Lock()
	if _, ok := r.done[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	r.done[id] = ch
	r.mu.Unlock()

	if err := r.store.Put(r.ctx, NewState(id, r.now())); err != nil {
		r.mu.Lock()
		delete(r.done, id)
		r.mu.Unlock()
		return err
	}

	r.running.Add(1)
	go func() {
		defer r.running.Done()
		defer close(ch)
		r.run(id, inputPath)
	}()
	return nil
}

func (r *Runner) run(id, inputPath string) {
	logger := r.logger.With("job_id", id)
	logger.Info("job started", "input", inputPath)

	var mu sync.Mutex
	var reporter progress.Reporter = progress.Func(func(label string, pct *float64) {
		mu.Lock()
		defer mu.Unlock()
		r.update(id, logger, func(s *State) { ApplyProgress(s, label, pct, r.now()) })
	})
	if r.observe != nil {
		reporter = progress.Multi(reporter, r.observe(id))
	}

	outDir := r.OutputDir(id)
	archivePath, err := r.task(context.WithValue(r.ctx, jobIDKey{}, id), inputPath, outDir, reporter)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		logger.Error("job failed", "err", err)
		r.update(id, logger, func(s *State) { MarkFailed(s, err, r.now()) })
		return
	}
	logger.Info("job done", "archive", archivePath)
	r.update(id, logger, func(s *State) { MarkDone(s, archivePath, r.now()) })
}

func (r *Runner) update(id string, logger *slog.Logger, fn func(*State)) {
	// the job's own context may be cancelled; state must still land
	ctx := context.WithoutCancel(r.ctx)
	s, err := r.store.Get(ctx, id)
	if err != nil {
		logger.Warn("load job state failed", "err", err)
		return
	}
	fn(&s)
	if err := r.store.Put(ctx, s); err != nil {
		logger.Warn("save job state failed", "err", err)
	}
}

func (r *Runner) Status(id string) (State, error) {
	return r.store.Get(context.Background(), id)
}

// Archive returns the bytes of a finished job's archive.
func (r *Runner) Archive(id string) ([]byte, error) {
	s, err := r.store.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusDone || s.ArchivePath == "" {
		return nil, fmt.Errorf("job %s is %s: %w", id, s.Status, ErrNotReady)
	}
	data, err := os.ReadFile(s.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return data, nil
}

// Wait blocks until job id finishes or ctx is done and returns its state.
func (r *Runner) Wait(ctx context.Context, id string) (State, error) {
	r.mu.Lock()
	ch, ok := r.done[id]
	r.mu.Unlock()
	if ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return State{}, ctx.Err()
		}
	}
	return r.store.Get(ctx, id)
}

// Forget drops a finished job's state and files.
func (r *Runner) Forget(id string) error {
	s, err := r.store.Get(context.Background(), id)
	if err != nil {
		return err
	}
	if !s.Terminal() {
		return fmt.Errorf("job %s still %s", id, s.Status)
	}
	r.mu.Lock()
	delete(r.done, id)
	r.mu.Unlock()

	var errs []error
	if err := os.RemoveAll(filepath.Join(r.workDir, id)); err != nil {
		errs = append(errs, fmt.Errorf("remove files: %w", err))
	}
	if err := r.store.Delete(context.Background(), id); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close cancels running jobs and waits for them to record their final state.
func (r *Runner) Close() {
	r.cancel()
	r.running.Wait()
}
