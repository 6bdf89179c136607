package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(*testing.T) Store { return NewMemoryStore() },
	"sqlite": func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs", "jobs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
}

func TestStores(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, err := s.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			first := NewState("a", time.Unix(10, 0))
			second := NewState("b", time.Unix(20, 0))
			require.NoError(t, s.Put(ctx, second))
			require.NoError(t, s.Put(ctx, first))

			MarkDone(&first, "/out/a.zip", time.Unix(30, 0))
			require.NoError(t, s.Put(ctx, first))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, StatusDone, got.Status)
			assert.Equal(t, "/out/a.zip", got.ArchivePath)
			assert.Equal(t, 100.0, got.Progress)
			assert.True(t, got.CreatedAt.Equal(time.Unix(10, 0)))
			assert.True(t, got.UpdatedAt.Equal(time.Unix(30, 0)))

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "b", all[1].ID)

			require.NoError(t, s.Delete(ctx, "a"))
			_, err = s.Get(ctx, "a")
			assert.True(t, errors.Is(err, ErrNotFound))
			require.NoError(t, s.Delete(ctx, "a"))
		})
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	st := NewState("persist", time.Unix(1, 0))
	st.Message = "Parsing orders"
	require.NoError(t, s.Put(context.Background(), st))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), "persist")
	require.NoError(t, err)
	assert.Equal(t, "Parsing orders", got.Message)
	assert.Equal(t, StatusProcessing, got.Status)
}
