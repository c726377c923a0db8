package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/andresuchdata/stockledger/internal/repository"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

var _ repository.Store = (*DB)(nil)

var (
	dbInstance *DB
	once       sync.Once
)

// NewDB creates the server's shared connection pool on the lib/pq driver.
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	var err error
	once.Do(func() {
		var db *sqlx.DB
		db, err = sqlx.Connect("postgres", cfg.DSN())
		if err != nil {
			return
		}

		maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		if maxIdle <= 0 {
			maxIdle = 5
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(5 * time.Minute)

		dbInstance = wrap(db, cfg.MaxInFlight)
	})

	return dbInstance, err
}

// Open connects with an explicit driver name ("postgres" or "pgx") and is
// used by the CLI and integration tests, which need their own pool.
func Open(driver, dsn string) (*DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return wrap(db, 0), nil
}

func wrap(db *sqlx.DB, inFlight int64) *DB {
	if inFlight <= 0 {
		inFlight = 10
	}
	return &DB{DB: db, sem: semaphore.NewWeighted(inFlight)}
}

// WithTx executes fn within a read-write transaction. Item and lot reads made
// through the tx take row locks held until commit.
func (db *DB) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&pgTx{tx: tx, lock: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// View runs fn inside a read-only repeatable-read transaction so every query
// sees the same snapshot.
func (db *DB) View(ctx context.Context, fn func(q repository.Queries) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("could not begin read transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.Warn().Err(rbErr).Msg("could not close read transaction")
		}
	}()

	return fn(&pgTx{tx: tx})
}
