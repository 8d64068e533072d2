package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"postguard/internal/biz"
	"postguard/internal/conf"
	"postguard/internal/pkg/moderator"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisCache,
	NewPostRepo,
	NewBadImageRepo,
	NewDeviceRepo,
	NewPostCache,
	NewMediaStore,
	NewQueueClient,
	NewPostNotifier,
	NewClassifier,
	NewBloomFilter,
	NewBadImageIndex,
	NewVerdictCache,
	NewImageModerator,
	NewVideoModerator,
	wire.Bind(new(moderator.ImageModerator), new(*moderator.LocalImageModerator)),
	wire.Bind(new(moderator.VideoModerator), new(*moderator.LocalVideoModerator)),
	wire.Bind(new(biz.MediaStore), new(*MediaStore)),
)

// Data struct for db client
type Data struct {
	Pool *pgxpool.Pool // queries
	DB   *sql.DB       // database/sql for migrations
}

// NewData new a data instance
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgxConfig, err := newPgxPoolConfig(c)
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	// Also open database/sql for migrations
	db, err := sql.Open(c.Database.Driver, c.Database.Source)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	if c.Database.AutoMigrate {
		if err := RunMigrate(c, db); err != nil {
			pool.Close()
			db.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		helper.Info("database migrations applied")
	}

	cleanup := func() {
		helper.Info("closing db connections")
		pool.Close()
		db.Close()
	}

	return &Data{
		Pool: pool,
		DB:   db,
	}, cleanup, nil
}

// newPgxPoolConfig creates a pgxpool.Config from conf.Data
func newPgxPoolConfig(c *conf.Data) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.Database.Source)
	if err != nil {
		return nil, err
	}
	pool := c.Database.Pool
	if pool.MaxOpenConns > 0 {
		cfg.MaxConns = pool.MaxOpenConns
	}
	if pool.MinIdleConns > 0 {
		cfg.MinConns = pool.MinIdleConns
	}
	if pool.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = time.Duration(pool.MaxConnLifetime) * time.Minute
	}
	if pool.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = time.Duration(pool.MaxConnIdleTime) * time.Minute
	}

	return cfg, nil
}

// Ping checks the database connection.
func (d *Data) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}
