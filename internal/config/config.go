// Package config loads pipeline options from an optional YAML file with
// environment overrides on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tendant/order-asset-packer/internal/pipeline"
)

// Environment variables that override file values.
const (
	EnvOrderPrefix        = "ORDER_PREFIX"
	EnvMaxConcurrency     = "MAX_CONCURRENCY"
	EnvRetryCount         = "RETRY_COUNT"
	EnvBackoffFactor      = "BACKOFF_FACTOR"
	EnvTimeoutSeconds     = "TIMEOUT_SECONDS"
	EnvEmitPerGroupCSV    = "EMIT_PER_GROUP_CSV"
	EnvEmitBackMessageCSV = "EMIT_BACK_MESSAGE_CSV"
	EnvArchiveBaseName    = "ARCHIVE_BASE_NAME"
	EnvRenderBackMessages = "RENDER_BACK_MESSAGE_IMAGES"
	EnvMaxImageSide       = "MAX_IMAGE_SIDE"
	EnvOptionsFile        = "PIPELINE_CONFIG"
)

// Load returns defaults, overlaid by the YAML file at path (if non-empty),
// overlaid by the environment. The result is normalized.
func Load(path string) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return opts, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if opts, err = Decode(f, opts); err != nil {
			return opts, fmt.Errorf("config %s: %w", path, err)
		}
	}
	opts, err := ApplyEnv(opts, os.LookupEnv)
	if err != nil {
		return opts, err
	}
	return opts.Normalize()
}

// Decode overlays the YAML document in r onto base. Unknown keys are
// rejected.
func Decode(r io.Reader, base pipeline.Options) (pipeline.Options, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return base, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return base, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	opts := base
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("decode yaml: %w", err)
	}
	return opts, nil
}

// ApplyEnv overlays variables found through lookup onto opts.
func ApplyEnv(opts pipeline.Options, lookup func(string) (string, bool)) (pipeline.Options, error) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvOrderPrefix); ok {
		opts.OrderPrefix = v
	}
	if v, ok := get(EnvArchiveBaseName); ok {
		opts.ArchiveBaseName = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvMaxConcurrency, &opts.MaxConcurrency},
		{EnvRetryCount, &opts.RetryCount},
		{EnvMaxImageSide, &opts.MaxImageSide},
	}
	for _, it := range ints {
		if v, ok := get(it.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			*it.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{EnvBackoffFactor, &opts.BackoffFactor},
		{EnvTimeoutSeconds, &opts.TimeoutSeconds},
	}
	for _, it := range floats {
		if v, ok := get(it.key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			*it.dst = f
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{EnvEmitPerGroupCSV, &opts.EmitPerGroupCSV},
		{EnvEmitBackMessageCSV, &opts.EmitBackMessageCSV},
		{EnvRenderBackMessages, &opts.RenderBackMessageImages},
	}
	for _, it := range bools {
		if v, ok := get(it.key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			*it.dst = b
		}
	}
	return opts, nil
}
