// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tendant/order-asset-packer/internal/bus"
	"github.com/tendant/order-asset-packer/internal/config"
	"github.com/tendant/order-asset-packer/internal/jobs"
	"github.com/tendant/order-asset-packer/internal/pipeline"
	"github.com/tendant/order-asset-packer/internal/progress"
	"github.com/tendant/order-asset-packer/pkg/schema"
)

type workerConfig struct {
	NATSURL         string
	JobSubject      string
	WorkerQueue     string
	ProgressSubject string
	ResultSubject   string
	WorkDir         string
	JobStorePath    string
	OptionsFile     string
	HandlerTimeout  time.Duration
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := LoadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("worker starting", "nats_url", cfg.NATSURL, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue, "progress_subject", cfg.ProgressSubject, "result_subject", cfg.ResultSubject, "work_dir", cfg.WorkDir)

	opts, err := config.Load(cfg.OptionsFile)
	if err != nil {
		fatal(logger, "load pipeline options", err, "options_file", cfg.OptionsFile)
	}
	logger.Info("loaded pipeline options", "order_prefix", opts.OrderPrefix, "max_concurrency", opts.MaxConcurrency, "retry_count", opts.RetryCount, "timeout", opts.Timeout())

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		fatal(logger, "ensure work directory", err, "work_dir", cfg.WorkDir)
	}

	store, closeStore, err := openStore(cfg.JobStorePath)
	if err != nil {
		fatal(logger, "open job store", err, "path", cfg.JobStorePath)
	}
	defer closeStore()

	nc, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	defer nc.Close()

	w := newWorker(cfg, nc, store, opts, logger)
	defer w.runner.Close()

	_, err = nc.QueueSubscribeJSON(cfg.JobSubject, cfg.WorkerQueue, cfg.HandlerTimeout, w.handle)
	if err != nil {
		fatal(logger, "subscribe worker", err, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue)
	}
	logger.Info("listening for jobs", "subject", cfg.JobSubject, "queue", cfg.WorkerQueue)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")
}

func openStore(path string) (jobs.Store, func(), error) {
	if path == "" {
		return jobs.NewMemoryStore(), func() {}, nil
	}
	s, err := jobs.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

type worker struct {
	cfg    workerConfig
	pub    bus.Publisher
	runner *jobs.Runner
	opts   pipeline.Options
	logger *slog.Logger
}

func newWorker(cfg workerConfig, pub bus.Publisher, store jobs.Store, opts pipeline.Options, logger *slog.Logger) *worker {
	w := &worker{cfg: cfg, pub: pub, opts: opts, logger: logger}
	w.runner = jobs.NewRunner(store, cfg.WorkDir, w.runJob,
		jobs.WithRunnerLogger(logger),
		jobs.WithObserver(func(id string) progress.Reporter {
			return bus.NewProgressPublisher(pub, cfg.ProgressSubject, id, logger)
		}),
	)
	return w
}

// ValidationError marks a request that can never succeed as sent.
type ValidationError struct {
	Type    schema.FailureType
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func (w *worker) handle(_ context.Context, data []byte) {
	var req schema.JobRequest
	if err := json.Unmarshal(data, &req); err != nil {
		w.logger.Warn("invalid job request", "err", err)
		w.publishDone(buildDone(req, nil, 0, ValidationError{Type: schema.FailureTypeValidation, Message: fmt.Sprintf("decode request: %v", err)}))
		return
	}

	id, err := jobID(req)
	if err != nil {
		w.logger.Warn("invalid job id", "id", req.ID, "err", err)
		w.publishDone(buildDone(req, nil, 0, err))
		return
	}
	req.ID = id
	jobLogger := w.logger.With("job_id", id)

	if strings.TrimSpace(req.InputPath) == "" {
		err := ValidationError{Type: schema.FailureTypeValidation, Message: "job request missing input_path"}
		jobLogger.Warn("missing input path")
		w.publishDone(buildDone(req, nil, 0, err))
		return
	}

	if err := w.runner.SubmitID(id, req.InputPath); err != nil {
		jobLogger.Error("submit job failed", "err", err)
		w.publishDone(buildDone(req, nil, 0, err))
		return
	}
	jobLogger.Info("received job", "input", req.InputPath)
}

func (w *worker) runJob(ctx context.Context, inputPath, outputDir string, reporter progress.Reporter) (string, error) {
	id, _ := jobs.IDFromContext(ctx)
	start := time.Now()
	res, err := pipeline.RunDetailed(ctx, inputPath, outputDir, reporter, w.opts, pipeline.WithLogger(w.logger.With("job_id", id)))
	w.publishDone(buildDone(schema.JobRequest{ID: id, InputPath: inputPath}, res, time.Since(start), err))
	if err != nil {
		return "", err
	}
	return res.ArchivePath, nil
}

func (w *worker) publishDone(done schema.JobDone) {
	if err := w.pub.PublishJSON(w.cfg.ResultSubject, done); err != nil {
		w.logger.Error("publish result failed", "subject", w.cfg.ResultSubject, "job_id", done.JobID, "err", err)
	}
}

// jobID returns the request's id, or a fresh one when it is empty.
func jobID(req schema.JobRequest) (string, error) {
	if req.ID == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return "", ValidationError{Type: schema.FailureTypeValidation, Message: fmt.Sprintf("parse job id: %v", err)}
	}
	return id.String(), nil
}

func buildDone(req schema.JobRequest, res *pipeline.Result, elapsed time.Duration, cause error) schema.JobDone {
	done := schema.JobDone{
		JobID:            req.ID,
		InputPath:        req.InputPath,
		Status:           schema.JobStatusDone,
		ProcessingTimeMs: elapsed.Milliseconds(),
		HappenedAt:       time.Now().Unix(),
	}
	if cause != nil {
		done.Status = schema.JobStatusError
		done.Error = cause.Error()
		done.FailureType = classifyError(cause)
		return done
	}
	if res != nil {
		done.ArchivePath = res.ArchivePath
		done.Summary = &schema.JobSummary{
			Orders:     res.Orders,
			Groups:     res.Groups,
			MainPhotos: res.MainPhotos,
			Polaroids:  res.Polaroids,
			Skipped:    res.Skipped,
			Engravings: res.Engravings,
		}
	}
	return done
}

func classifyError(err error) schema.FailureType {
	if err == nil {
		return ""
	}

	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Type
	}
	if pipeline.IsConfigError(err) {
		if errors.Is(err, os.ErrPermission) {
			return schema.FailureTypePermanent
		}
		return schema.FailureTypeValidation
	}
	if errors.Is(err, jobs.ErrDuplicateJob) {
		return schema.FailureTypeValidation
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return schema.FailureTypeRetryable
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) {
		return schema.FailureTypePermanent
	}

	// unknown errors are usually disk or transient I/O
	return schema.FailureTypeRetryable
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func LoadConfig() (workerConfig, error) {
	cfg := workerConfig{
		NATSURL:         getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject:      getenv("JOB_SUBJECT", "orderassets.jobs"),
		WorkerQueue:     getenv("WORKER_QUEUE", "orderassets-workers"),
		ProgressSubject: getenv("PROGRESS_SUBJECT", "orderassets.jobs.progress"),
		ResultSubject:   getenv("RESULT_SUBJECT", "orderassets.jobs.done"),
		WorkDir:         getenv("WORK_DIR", "./data/jobs"),
		JobStorePath:    getenv("JOB_STORE_PATH", ""),
		OptionsFile:     getenv(config.EnvOptionsFile, ""),
	}

	secs, err := parsePositiveInt(getenv("HANDLER_TIMEOUT_SECONDS", "30"), "HANDLER_TIMEOUT_SECONDS")
	if err != nil {
		return workerConfig{}, err
	}
	cfg.HandlerTimeout = time.Duration(secs) * time.Second

	if cfg.ProgressSubject == cfg.JobSubject || cfg.ResultSubject == cfg.JobSubject {
		return workerConfig{}, fmt.Errorf("event subjects must differ from JOB_SUBJECT %q", cfg.JobSubject)
	}
	return cfg, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
