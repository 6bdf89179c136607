package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/order-asset-packer/internal/img"
	"github.com/tendant/order-asset-packer/internal/order"
	"github.com/tendant/order-asset-packer/internal/textutil"
)

// MaxWorkers is the hard cap on per-group concurrency.
const MaxWorkers = 32

// Subdirectories of a group directory.
const (
	MainDir      = "main"
	PolaroidDir  = "polaroids"
	EngravingDir = "back_messages"
)

// Config controls download behavior.
type Config struct {
	MaxConcurrency int
	RetryCount     int
	BackoffFactor  float64
	Timeout        time.Duration
	// MaxSide bounds normalized image dimensions; zero keeps source size.
	MaxSide int
}

// ClampConcurrency bounds requested to [1, min(2*cpus, MaxWorkers)].
func ClampConcurrency(requested, cpus int) int {
	limit := 2 * cpus
	if limit > MaxWorkers {
		limit = MaxWorkers
	}
	if limit < 1 {
		limit = 1
	}
	n := requested
	if n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Fetcher downloads and normalizes the assets of one product group at a time.
type Fetcher struct {
	client   *Client
	workers  int
	maxSide  int
	renderer img.EngravingRenderer
	logger   *slog.Logger
}

type Option func(*Fetcher)

// WithHTTPClient replaces the transport's http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		if hc != nil {
			f.client.HTTP = hc
		}
	}
}

// WithRenderer enables back-engraving proofs.
func WithRenderer(r img.EngravingRenderer) Option {
	return func(f *Fetcher) { f.renderer = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func New(cfg Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  NewClient(cfg.Timeout, cfg.RetryCount, cfg.BackoffFactor),
		workers: ClampConcurrency(cfg.MaxConcurrency, runtime.NumCPU()),
		maxSide: cfg.MaxSide,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.client.HTTP.Timeout == 0 && cfg.Timeout > 0 {
		hc := *f.client.HTTP
		hc.Timeout = cfg.Timeout
		f.client.HTTP = &hc
	}
	f.client.Logger = f.logger
	return f
}

// Workers returns the effective pool size.
func (f *Fetcher) Workers() int { return f.workers }

// FetchGroup processes every order of one group with at most Workers()
// orders in flight and returns once all of them are done. Failures are
// recorded in tally; one order never stops another.
func (f *Fetcher) FetchGroup(ctx context.Context, groupDir string, orders []*order.Order, tally *Tally) {
	var g errgroup.Group
	g.SetLimit(f.workers)
	for _, o := range orders {
		g.Go(func() error {
			f.processOrder(ctx, groupDir, o, tally)
			return nil
		})
	}
	_ = g.Wait()
}

func (f *Fetcher) processOrder(ctx context.Context, groupDir string, o *order.Order, tally *Tally) {
	logger := f.logger.With("order_id", o.ID)

	f.fetchMain(ctx, groupDir, o, tally, logger)
	for i, link := range o.PolaroidLinks {
		f.fetchPolaroid(ctx, groupDir, o, i+1, link, tally, logger)
	}

	if !o.HasEngraving() {
		return
	}
	text := textutil.StripEmoji(o.EngravingValue)
	tally.AddEngraving(order.BackEngravingRecord{OrderID: o.ID, Type: o.EngravingType, Text: text})
	if f.renderer == nil {
		return
	}
	dst := filepath.Join(groupDir, EngravingDir, EngravingFileName(o))
	if err := f.renderer.Render(o.EngravingValue, dst); err != nil {
		logger.Debug("skipping back engraving proof", "err", err)
	}
}

func (f *Fetcher) fetchMain(ctx context.Context, groupDir string, o *order.Order, tally *Tally, logger *slog.Logger) {
	link := strings.TrimSpace(o.MainPhotoLink)
	if !IsHTTP(link) {
		o.MainPhotoStatus = order.PhotoInvalid
		tally.Skip(order.SkipRecord{OrderID: o.ID, AssetType: order.AssetMainPhoto, Link: o.MainPhotoLink, Reason: "invalid link"}, 0)
		logger.Info("main photo link invalid", "link", o.MainPhotoLink)
		return
	}

	dst := filepath.Join(groupDir, MainDir, MainFileName(o))
	if err := f.download(ctx, link, dst); err != nil {
		o.MainPhotoStatus = order.PhotoFailed
		tally.Skip(order.SkipRecord{OrderID: o.ID, AssetType: order.AssetMainPhoto, Link: link, Reason: err.Error()}, 0)
		logger.Warn("main photo failed", "link", link, "err", err)
		return
	}
	o.MainPhotoStatus = order.PhotoSuccess
	tally.AddMainSuccess()
}

func (f *Fetcher) fetchPolaroid(ctx context.Context, groupDir string, o *order.Order, n int, link string, tally *Tally, logger *slog.Logger) {
	link = strings.TrimSpace(link)
	asset := order.PolaroidAsset(n)
	if !IsHTTP(link) {
		tally.Skip(order.SkipRecord{OrderID: o.ID, AssetType: asset, Link: link, Reason: "invalid link"}, n)
		logger.Info("polaroid link invalid", "asset", asset, "link", link)
		return
	}

	dst := filepath.Join(groupDir, PolaroidDir, PolaroidFileName(o, n))
	if err := f.download(ctx, link, dst); err != nil {
		tally.Skip(order.SkipRecord{OrderID: o.ID, AssetType: asset, Link: link, Reason: err.Error()}, n)
		logger.Warn("polaroid failed", "asset", asset, "link", link, "err", err)
		return
	}
	if o.PolaroidSuccessCount < len(o.PolaroidLinks) {
		o.PolaroidSuccessCount++
	}
	tally.AddPolaroidSuccess()
}

func (f *Fetcher) download(ctx context.Context, link, dst string) error {
	body, err := f.client.Get(ctx, link)
	if err != nil {
		return err
	}
	if _, err := img.Normalize(body, dst, f.maxSide); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// IsHTTP reports whether link is an absolute http(s) URL.
func IsHTTP(link string) bool {
	l := strings.ToLower(link)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// colors is matched longest-first against the lowercased variant.
var colors = []string{
	"yellow gold", "white gold", "rose gold", "space gray", "navy blue",
	"gold", "silver", "rose", "black", "white", "bronze", "copper",
	"blue", "red", "pink", "green", "purple", "brown", "gray", "grey",
}

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ColorToken picks the color a variant names, falling back to its first
// slash- or space-delimited segment.
func ColorToken(variant string) string {
	v := strings.ToLower(variant)
	for _, c := range colors {
		if containsWord(v, c) {
			return strings.ReplaceAll(c, " ", "-")
		}
	}
	seg := strings.TrimSpace(variant)
	if i := strings.Index(seg, "/"); i >= 0 {
		seg = strings.TrimSpace(seg[:i])
	}
	if fields := strings.Fields(seg); len(fields) > 0 {
		seg = fields[0]
	}
	seg = strings.Trim(reUnsafe.ReplaceAllString(strings.ToLower(seg), ""), "-_")
	if seg == "" {
		return "default"
	}
	return seg
}

func containsWord(s, word string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if (i == 0 || !isAlnum(s[i-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		start = i + 1
	}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// SafeOrderID strips the leading '#' and anything unsafe in a file name.
func SafeOrderID(id string) string {
	s := reUnsafe.ReplaceAllString(strings.TrimPrefix(strings.TrimSpace(id), "#"), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "order"
	}
	return s
}

func MainFileName(o *order.Order) string {
	return SafeOrderID(o.ID) + "_" + ColorToken(o.Variant) + ".jpg"
}

func PolaroidFileName(o *order.Order, n int) string {
	return SafeOrderID(o.ID) + "_polaroid_" + strconv.Itoa(n) + ".jpg"
}

func EngravingFileName(o *order.Order) string {
	return SafeOrderID(o.ID) + "_back.png"
}
