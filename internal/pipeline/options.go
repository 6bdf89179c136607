package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/order-asset-packer/internal/extract"
)

// MinTimeout is the floor applied to the per-request timeout.
const MinTimeout = 3 * time.Second

// Options tunes a run. Zero values are not defaults; start from
// DefaultOptions.
type Options struct {
	OrderPrefix             string  `yaml:"order_prefix"`
	MaxConcurrency          int     `yaml:"max_concurrency"`
	RetryCount              int     `yaml:"retry_count"`
	BackoffFactor           float64 `yaml:"backoff_factor"`
	TimeoutSeconds          float64 `yaml:"timeout_seconds"`
	EmitPerGroupCSV         bool    `yaml:"emit_per_group_csv"`
	EmitBackMessageCSV      bool    `yaml:"emit_back_message_csv"`
	ArchiveBaseName         string  `yaml:"archive_base_name"`
	RenderBackMessageImages bool    `yaml:"render_back_message_images"`
	// MaxImageSide bounds the longer side of saved images; 0 keeps the source size.
	MaxImageSide int `yaml:"max_image_side"`
}

func DefaultOptions() Options {
	return Options{
		OrderPrefix:        extract.DefaultPrefix,
		MaxConcurrency:     8,
		RetryCount:         3,
		BackoffFactor:      0.6,
		TimeoutSeconds:     15,
		EmitPerGroupCSV:    true,
		EmitBackMessageCSV: true,
		ArchiveBaseName:    "results",
	}
}

// OptionsError reports an option that cannot be used.
type OptionsError struct {
	Field  string
	Reason string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Field, e.Reason)
}

// Normalize validates o and applies floors. Concurrency is clamped later
// against the host's CPU count.
func (o Options) Normalize() (Options, error) {
	o.OrderPrefix = strings.TrimSpace(o.OrderPrefix)
	o.ArchiveBaseName = strings.TrimSpace(o.ArchiveBaseName)

	switch {
	case o.RetryCount < 0:
		return o, &OptionsError{Field: "retry_count", Reason: "must not be negative"}
	case o.BackoffFactor < 0:
		return o, &OptionsError{Field: "backoff_factor", Reason: "must not be negative"}
	case o.MaxImageSide < 0:
		return o, &OptionsError{Field: "max_image_side", Reason: "must not be negative"}
	case o.ArchiveBaseName == "":
		return o, &OptionsError{Field: "archive_base_name", Reason: "must not be empty"}
	case strings.ContainsAny(o.ArchiveBaseName, `/\`) || o.ArchiveBaseName == "." || o.ArchiveBaseName == "..":
		return o, &OptionsError{Field: "archive_base_name", Reason: "must be a plain file name"}
	}
	if o.Timeout() < MinTimeout {
		o.TimeoutSeconds = MinTimeout.Seconds()
	}
	return o, nil
}

// Timeout is the per-request timeout as a Duration.
func (o Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds * float64(time.Second))
}
