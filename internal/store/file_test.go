package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/nimbus/internal/weather"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "cache", "weather.json"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) weather.Store { return newTestFileStore(t) })
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "weather.json")

	s1, err := NewFileStore(path, logrus.New())
	require.NoError(t, err)
	e := weather.NewCacheEntry(weather.CategoryDaily, "k", []byte("persisted"), time.Now())
	require.NoError(t, s1.Write(ctx, e))
	require.NoError(t, s1.Close())

	s2, err := NewFileStore(path, logrus.New())
	require.NoError(t, err)
	defer s2.Close()

	got, ok, err := s2.ReadLatest(ctx, weather.CategoryDaily, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e.ID, got.ID)
}

func TestFileStore_CorruptDocumentIsAnError(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("{broken"), 0o644))

	_, _, err := s.ReadLatest(context.Background(), weather.CategoryCurrent, "k")
	require.Error(t, err)
}

func TestFileStore_ConcurrentWritersAllLand(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	t0 := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := weather.NewCacheEntry(weather.CategoryCurrent, "k", []byte{byte(i)}, t0.Add(time.Duration(i)*time.Second))
			if err := s.Write(ctx, e); err != nil {
				t.Errorf("write %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, ok, err := s.ReadLatest(ctx, weather.CategoryCurrent, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{9}, got.Payload)

	n, err := s.PurgeExpired(ctx, weather.CategoryCurrent, "k", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestFileStore_ClosedStoreRejectsOperations(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "weather.json"), logrus.New())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Write(context.Background(), weather.NewCacheEntry(weather.CategoryCurrent, "k", nil, time.Now()))
	require.ErrorIs(t, err, ErrClosed)
}
