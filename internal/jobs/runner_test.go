package jobs

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tendant/order-asset-packer/internal/pipeline"
	"github.com/tendant/order-asset-packer/internal/progress"
)

func waitFor(t *testing.T, r *Runner, id string) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := r.Wait(ctx, id)
	require.NoError(t, err)
	return s
}

func writeArchiveTask(content string) Task {
	return func(ctx context.Context, input, outDir string, rep progress.Reporter) (string, error) {
		if id, ok := IDFromContext(ctx); !ok || filepath.Base(filepath.Dir(outDir)) != id {
			return "", errors.New("job id not in context")
		}
		rep.Report("Reading input", progress.Pct(progress.ReadInput))
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", err
		}
		path := filepath.Join(outDir, "results.zip")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
		rep.Report("Done", progress.Pct(progress.Done))
		return path, nil
	}
}

func TestRunnerDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	work := t.TempDir()
	r := NewRunner(NewMemoryStore(), work, writeArchiveTask("zip-bytes"))
	defer r.Close()

	id, err := r.Submit("orders.csv")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	s := waitFor(t, r, id)
	assert.Equal(t, StatusDone, s.Status)
	assert.Equal(t, 100.0, s.Progress)
	assert.Equal(t, filepath.Join(work, id, "output", "results.zip"), s.ArchivePath)

	data, err := r.Archive(id)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	require.NoError(t, r.Forget(id))
	_, err = r.Status(id)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoDirExists(t, filepath.Join(work, id))
}

func TestRunnerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	task := func(ctx context.Context, input, outDir string, rep progress.Reporter) (string, error) {
		rep.Report("Parsing orders", progress.Pct(progress.Parse))
		err := errors.New("missing required columns: Name")
		rep.Report("Error: "+err.Error(), nil)
		return "", err
	}
	r := NewRunner(NewMemoryStore(), t.TempDir(), task)
	defer r.Close()

	id, err := r.Submit("orders.csv")
	require.NoError(t, err)

	s := waitFor(t, r, id)
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "missing required columns: Name", s.Message)
	assert.Equal(t, progress.Parse, s.Progress)

	_, err = r.Archive(id)
	assert.True(t, errors.Is(err, ErrNotReady), "got %v", err)
}

func TestRunnerInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	task := func(ctx context.Context, input, outDir string, rep progress.Reporter) (string, error) {
		rep.Report("Processing Gold (1/2)", progress.Pct(48.5))
		close(started)
		<-release
		return writeArchiveTask("late")(ctx, input, outDir, rep)
	}
	r := NewRunner(NewMemoryStore(), t.TempDir(), task)
	defer r.Close()

	id, err := r.Submit("orders.csv")
	require.NoError(t, err)
	<-started

	s, err := r.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, s.Status)
	assert.Equal(t, 48.5, s.Progress)

	_, err = r.Archive(id)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Error(t, r.Forget(id))

	close(release)
	assert.Equal(t, StatusDone, waitFor(t, r, id).Status)
}

func TestRunnerCloseCancelsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	task := func(ctx context.Context, input, outDir string, rep progress.Reporter) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	r := NewRunner(NewMemoryStore(), t.TempDir(), task)
	id, err := r.Submit("orders.csv")
	require.NoError(t, err)
	<-started

	r.Close()

	s, err := r.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, s.Status)

	_, err = r.Submit("again.csv")
	assert.Error(t, err)
}

type collected struct {
	mu     sync.Mutex
	labels map[string][]string
}

func (c *collected) observer(id string) progress.Reporter {
	return progress.Func(func(label string, _ *float64) {
		c.mu.Lock()
		c.labels[id] = append(c.labels[id], label)
		c.mu.Unlock()
	})
}

func TestRunnerObserverSeesUpdates(t *testing.T) {
	c := &collected{labels: make(map[string][]string)}
	r := NewRunner(NewMemoryStore(), t.TempDir(), writeArchiveTask("x"), WithObserver(c.observer))
	defer r.Close()

	id, err := r.Submit("orders.csv")
	require.NoError(t, err)
	waitFor(t, r, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{"Reading input", "Done"}, c.labels[id])
}

func TestRunnerSubmitIDRejectsDuplicates(t *testing.T) {
	r := NewRunner(NewMemoryStore(), t.TempDir(), writeArchiveTask("x"))
	defer r.Close()

	id := uuid.NewString()
	require.NoError(t, r.SubmitID(id, "a.csv"))
	err := r.SubmitID(id, "b.csv")
	assert.True(t, errors.Is(err, ErrDuplicateJob), "got %v", err)
	assert.Equal(t, StatusDone, waitFor(t, r, id).Status)
}

func TestRunnerWaitUnknownJob(t *testing.T) {
	r := NewRunner(NewMemoryStore(), t.TempDir(), writeArchiveTask("x"))
	defer r.Close()

	_, err := r.Wait(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// A failing asset must not fail the job.
func TestRunnerPipelinePartialFailureIsDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	input := filepath.Join(t.TempDir(), "orders.csv")
	f, err := os.Create(input)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll([][]string{
		{"Name", "Line: Properties", "Line: Title", "Line: Variant Title"},
		{"#ER1", "[{'name': 'Photo', 'value': 'not-a-url'}]", "Locket", "Gold"},
		{"#ER2", "[{'name': 'Back Message', 'value': 'Hi'}]", "Locket", "Gold"},
	}))
	require.NoError(t, f.Close())

	opts := pipeline.DefaultOptions()
	opts.MaxConcurrency = 4
	r := NewRunner(NewMemoryStore(), t.TempDir(), PipelineTask(opts))
	defer r.Close()

	id, err := r.Submit(input)
	require.NoError(t, err)

	s := waitFor(t, r, id)
	require.Equal(t, StatusDone, s.Status, s.Message)
	assert.FileExists(t, s.ArchivePath)

	data, err := r.Archive(id)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))
}
