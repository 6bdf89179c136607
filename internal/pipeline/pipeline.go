// Package pipeline runs one order export end to end: read, filter, parse,
// group, fetch, report and archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/order-asset-packer/internal/archive"
	"github.com/tendant/order-asset-packer/internal/extract"
	"github.com/tendant/order-asset-packer/internal/fetch"
	"github.com/tendant/order-asset-packer/internal/img"
	"github.com/tendant/order-asset-packer/internal/order"
	"github.com/tendant/order-asset-packer/internal/progress"
	"github.com/tendant/order-asset-packer/internal/report"
)

// InputError wraps a failure to read the order export.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string { return fmt.Sprintf("read input %s: %v", e.Path, e.Err) }

func (e *InputError) Unwrap() error { return e.Err }

// Result summarizes a finished run.
type Result struct {
	ArchivePath string
	Timestamp   string
	Orders      int
	Groups      int
	MainPhotos  int
	Polaroids   int
	Skipped     int
	Engravings  int
	// Statuses counts orders by main photo status; the values sum to Orders.
	Statuses map[order.PhotoStatus]int
	Duration time.Duration
}

type runConfig struct {
	logger   *slog.Logger
	http     *http.Client
	renderer img.EngravingRenderer
	now      func() time.Time
}

type Option func(*runConfig)

func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient overrides the download client. Its Timeout is replaced by
// the configured one when unset.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *runConfig) { c.http = hc }
}

// WithRenderer supplies the engraving renderer used when
// RenderBackMessageImages is set.
func WithRenderer(r img.EngravingRenderer) Option {
	return func(c *runConfig) { c.renderer = r }
}

// WithClock fixes the time used for report and archive names.
func WithClock(now func() time.Time) Option {
	return func(c *runConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Run processes inputPath into outputDir and returns the archive path.
func Run(ctx context.Context, inputPath, outputDir string, reporter progress.Reporter, opts Options, extra ...Option) (string, error) {
	res, err := RunDetailed(ctx, inputPath, outputDir, reporter, opts, extra...)
	if err != nil {
		return "", err
	}
	return res.ArchivePath, nil
}

// RunDetailed is Run returning the run summary. Per-asset failures never
// fail the run; they land in the skip report. Configuration, input and
// report/archive I/O errors are returned after an error report with a nil
// percent.
func RunDetailed(ctx context.Context, inputPath, outputDir string, reporter progress.Reporter, opts Options, extra ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.Default(), now: time.Now}
	for _, o := range extra {
		o(&cfg)
	}
	if reporter == nil {
		reporter = progress.Nop
	}

	res, err := run(ctx, inputPath, outputDir, reporter, opts, cfg)
	if err != nil {
		cfg.logger.Error("pipeline failed", "input", inputPath, "err", err)
		reporter.Report("Error: "+err.Error(), nil)
		return nil, err
	}
	return res, nil
}

func run(ctx context.Context, inputPath, outputDir string, reporter progress.Reporter, opts Options, cfg runConfig) (*Result, error) {
	start := time.Now()
	logger := cfg.logger

	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if err := checkOutputDir(outputDir); err != nil {
		return nil, err
	}

	reporter.Report("Reading input", progress.Pct(progress.ReadInput))
	table, err := extract.ReadRows(inputPath)
	if err != nil {
		return nil, &InputError{Path: inputPath, Err: err}
	}

	reporter.Report("Filtering orders", progress.Pct(progress.Filter))
	filtered := extract.Filter(table, opts.OrderPrefix, extract.DefaultColumns)
	logger.Info("filtered input", "rows", len(table.Rows), "kept", len(filtered.Rows), "prefix", opts.OrderPrefix)

	reporter.Report("Parsing orders", progress.Pct(progress.Parse))
	orders, err := extract.Extract(filtered, opts.OrderPrefix)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	ts := report.Timestamp(cfg.now())
	groups, keys := extract.Group(orders)

	fopts := []fetch.Option{fetch.WithLogger(logger), fetch.WithHTTPClient(cfg.http)}
	if opts.RenderBackMessageImages {
		r := cfg.renderer
		if r == nil {
			r = img.NewTextRenderer()
		}
		fopts = append(fopts, fetch.WithRenderer(r))
	}
	fetcher := fetch.New(fetch.Config{
		MaxConcurrency: opts.MaxConcurrency,
		RetryCount:     opts.RetryCount,
		BackoffFactor:  opts.BackoffFactor,
		Timeout:        opts.Timeout(),
		MaxSide:        opts.MaxImageSide,
	}, fopts...)

	res := &Result{
		Timestamp: ts,
		Orders:    len(orders),
		Groups:    len(keys),
		Statuses:  make(map[order.PhotoStatus]int),
	}
	var skips []order.SkipRecord

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled before group %s: %w", key, err)
		}
		groupOrders := groups[key]
		groupDir := filepath.Join(outputDir, key)
		if err := os.MkdirAll(groupDir, 0o755); err != nil {
			return nil, fmt.Errorf("create group dir: %w", err)
		}

		glog := logger.With("group", key)
		glog.Info("processing group", "orders", len(groupOrders), "workers", fetcher.Workers())

		tally := fetch.NewTally(groupOrders)
		fetcher.FetchGroup(ctx, groupDir, groupOrders, tally)

		mainOK, polaroidOK := tally.Counts()
		res.MainPhotos += mainOK
		res.Polaroids += polaroidOK
		groupSkips := tally.Skips()
		skips = append(skips, groupSkips...)
		engravings := tally.Engravings()
		res.Engravings += len(engravings)

		if opts.EmitPerGroupCSV {
			if err := report.WriteOrders(filepath.Join(groupDir, report.GroupOrdersFile), groupOrders); err != nil {
				return nil, fmt.Errorf("group report %s: %w", key, err)
			}
		}
		if opts.EmitBackMessageCSV {
			if _, err := report.WriteEngravings(groupDir, engravings); err != nil {
				return nil, fmt.Errorf("back message report %s: %w", key, err)
			}
		}

		glog.Info("group done", "main_photos", mainOK, "polaroids", polaroidOK, "skipped", len(groupSkips))
		reporter.Report(progress.GroupLabel(key, i+1, len(keys)), progress.Pct(progress.GroupPercent(i+1, len(keys))))
	}

	for _, o := range orders {
		res.Statuses[o.MainPhotoStatus]++
	}
	res.Skipped = len(skips)

	if err := report.WriteOrders(filepath.Join(outputDir, report.GlobalOrdersName(ts)), orders); err != nil {
		return nil, fmt.Errorf("global report: %w", err)
	}
	if _, err := report.WriteSkips(outputDir, ts, skips); err != nil {
		return nil, fmt.Errorf("skip report: %w", err)
	}

	reporter.Report("Building archive", progress.Pct(progress.Archive))
	archivePath, err := archive.Archive(outputDir, opts.ArchiveBaseName+"_"+ts+".zip")
	if err != nil {
		return nil, err
	}
	res.ArchivePath = archivePath
	res.Duration = time.Since(start)

	logger.Info("pipeline complete",
		"archive", archivePath,
		"orders", res.Orders,
		"groups", res.Groups,
		"main_photos", res.MainPhotos,
		"polaroids", res.Polaroids,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)
	reporter.Report("Done", progress.Pct(progress.Done))
	return res, nil
}

// checkOutputDir refuses a directory that already has entries; the archive
// bundles everything under it.
func checkOutputDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	if len(entries) > 0 {
		return &OptionsError{Field: "output_dir", Reason: fmt.Sprintf("%s is not empty", dir)}
	}
	return nil
}

// IsConfigError reports whether err happened before any asset work: bad
// options, unreadable input or missing columns.
func IsConfigError(err error) bool {
	var (
		oe *OptionsError
		ie *InputError
		me *extract.MissingColumnError
	)
	return errors.As(err, &oe) || errors.As(err, &ie) || errors.As(err, &me)
}
