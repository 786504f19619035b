package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/model"
	"github.com/okian/aireview/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB is the shared database handle of the stores.
type DB struct {
	gorm *gorm.DB
	pool *pgxpool.Pool
	sql  *sql.DB
}

// SQLitePrefix selects the embedded sqlite driver, e.g.
// "sqlite:file:aireview.db?_pragma=busy_timeout(5000)".
const SQLitePrefix = "sqlite:"

// Open connects to Postgres through a pgx pool and hands the pool to gorm.
// A DSN starting with SQLitePrefix opens a local sqlite database instead.
func Open(ctx context.Context, cfg config.Database, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("repository")
	}
	if path, ok := strings.CutPrefix(cfg.DSN, SQLitePrefix); ok {
		return openSQLite(ctx, path, o)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %v", ErrOpenDatabase, err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %v", ErrOpenDatabase, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrOpenDatabase, err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: newGormLogger(o.log, o.slowThreshold),
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("%w: gorm: %v", ErrOpenDatabase, err)
	}

	o.log.Info(ctx, "database connected",
		logger.String("host", pcfg.ConnConfig.Host),
		logger.String("database", pcfg.ConnConfig.Database),
		logger.Int("max_conns", int(pcfg.MaxConns)))
	return &DB{gorm: gdb, pool: pool, sql: sqlDB}, nil
}

func openSQLite(ctx context.Context, path string, o options) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrOpenDatabase)
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(o.log, o.slowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: %v", ErrOpenDatabase, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: %v", ErrOpenDatabase, err)
	}
	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrOpenDatabase, err)
	}

	o.log.Info(ctx, "database connected", logger.String("driver", "sqlite"))
	return &DB{gorm: gdb, sql: sqlDB}, nil
}

// NewWithGorm wraps an already opened gorm handle.
func NewWithGorm(gdb *gorm.DB) *DB {
	sqlDB, _ := gdb.DB()
	return &DB{gorm: gdb, sql: sqlDB}
}

// Migrate creates the fit_reviews table. The documents table is owned
// upstream and is only created when withDocuments is set.
func (d *DB) Migrate(ctx context.Context, withDocuments bool) error {
	tables := []any{&model.FitReview{}}
	if withDocuments {
		tables = append(tables, &documentRow{})
	}
	if err := d.gorm.WithContext(ctx).AutoMigrate(tables...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	if d.sql != nil {
		return d.sql.PingContext(ctx)
	}
	return nil
}

// Close releases the connections.
func (d *DB) Close() {
	if d.sql != nil {
		_ = d.sql.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
