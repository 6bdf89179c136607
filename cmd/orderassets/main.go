package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/order-asset-packer/internal/config"
	"github.com/tendant/order-asset-packer/internal/pipeline"
	"github.com/tendant/order-asset-packer/internal/progress"
	"github.com/tendant/order-asset-packer/internal/report"
)

var version = "dev"

type runFlags struct {
	configFile  string
	outputDir   string
	logLevel    string
	prefix      string
	concurrency int
	render      bool
	jsonOut     bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "orderassets",
		Short:        "Package customer order assets into a downloadable archive.",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(stdout, stderr), newVersionCmd(stdout))
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, version)
		},
	}
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <orders.csv|orders.xlsx>",
		Short: "Fetch, organize and archive the assets of an order export",
		Long: `Run reads an order export, downloads every photo and polaroid of the
orders matching the prefix, writes CSV reports per product group and bundles
the output directory into a zip archive.

Without --output each run gets a fresh directory under ./output. An explicit
--output directory must be empty or missing.

Options come from --config (YAML), then environment variables, then flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(stderr, f.logLevel)

			opts, err := config.Load(f.configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("prefix") {
				opts.OrderPrefix = f.prefix
			}
			if cmd.Flags().Changed("concurrency") {
				opts.MaxConcurrency = f.concurrency
			}
			if cmd.Flags().Changed("render-engravings") {
				opts.RenderBackMessageImages = f.render
			}

			reporter := progress.Func(func(label string, pct *float64) {
				if pct == nil {
					fmt.Fprintln(stderr, label)
					return
				}
				fmt.Fprintf(stderr, "[%3.0f%%] %s\n", *pct, label)
			})

			outDir := f.outputDir
			if !cmd.Flags().Changed("output") {
				if outDir, err = runDir(f.outputDir, time.Now()); err != nil {
					return err
				}
			}

			res, err := pipeline.RunDetailed(cmd.Context(), args[0], outDir, reporter, opts, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			if f.jsonOut {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(summary(res))
			}
			fmt.Fprintln(stdout, res.ArchivePath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", os.Getenv(config.EnvOptionsFile), "YAML options file")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "output", "output directory, must be empty; unset means a new run directory under ./output")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "order id prefix to keep")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 0, "concurrent downloads per group")
	cmd.Flags().BoolVar(&f.render, "render-engravings", false, "render back-engraving proof images")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the run summary as JSON")
	return cmd
}

// runDir creates an empty per-run directory under base.
func runDir(base string, now time.Time) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, report.Timestamp(now)+"_")
	if err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

type runSummary struct {
	Archive    string         `json:"archive"`
	Orders     int            `json:"orders"`
	Groups     int            `json:"groups"`
	MainPhotos int            `json:"main_photos"`
	Polaroids  int            `json:"polaroids"`
	Skipped    int            `json:"skipped"`
	Engravings int            `json:"engravings"`
	Statuses   map[string]int `json:"statuses"`
	DurationMs int64          `json:"duration_ms"`
}

func summary(res *pipeline.Result) runSummary {
	statuses := make(map[string]int, len(res.Statuses))
	for k, v := range res.Statuses {
		statuses[string(k)] = v
	}
	return runSummary{
		Archive:    res.ArchivePath,
		Orders:     res.Orders,
		Groups:     res.Groups,
		MainPhotos: res.MainPhotos,
		Polaroids:  res.Polaroids,
		Skipped:    res.Skipped,
		Engravings: res.Engravings,
		Statuses:   statuses,
		DurationMs: res.Duration.Milliseconds(),
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
