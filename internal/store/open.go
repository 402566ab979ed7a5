package store

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/nimbus/internal/config"
	"github.com/i474232898/nimbus/internal/weather"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store selected by cfg.Driver. The returned closer releases
// the underlying connection and must be called on shutdown.
func Open(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (weather.Store, io.Closer, error) {
	log := logger.WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory, "":
		log.WithField("maxHistory", cfg.MaxHistory).Info("store: using in-memory cache")
		return NewMemoryStore(cfg.MaxHistory), nopCloser{}, nil

	case config.DriverFile:
		s, err := NewFileStore(cfg.FilePath, logger)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.FilePath).Info("store: using file cache")
		return s, s, nil

	case config.DriverRedis:
		client, err := ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("store: connected to Redis")
		return NewRedisStore(client, cfg.RedisPrefix), client, nil

	case config.DriverPostgres:
		db, err := OpenPostgres(ctx, cfg.DatabaseDSN, PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := MigratePostgres(db); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("store: migrations applied")
		}
		s := NewPostgresStore(db, logger)
		return s, s, nil

	case config.DriverDynamoDB:
		client, err := ConnectDynamoDB(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("table", cfg.DynamoTable).Info("store: connected to DynamoDB")
		return NewDynamoStore(client, cfg.DynamoTable), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
