package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/nimbus/internal/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	mr := miniredis.RunT(t)

	cases := []struct {
		name string
		cfg  config.StoreConfig
		want any
	}{
		{"memory", config.StoreConfig{Driver: config.DriverMemory, MaxHistory: 3}, &MemoryStore{}},
		{"file", config.StoreConfig{Driver: config.DriverFile, FilePath: filepath.Join(t.TempDir(), "c.json")}, &FileStore{}},
		{"redis", config.StoreConfig{Driver: config.DriverRedis, RedisAddr: mr.Addr(), RedisPrefix: "t"}, &RedisStore{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, closer, err := Open(ctx, tc.cfg, logger)
			require.NoError(t, err)
			require.IsType(t, tc.want, s)
			require.NoError(t, closer.Close())
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), config.StoreConfig{Driver: "cassandra"}, logrus.New())
	require.Error(t, err)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverRedis, RedisAddr: addr}, logrus.New())
	require.Error(t, err)
}
