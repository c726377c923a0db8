package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/andresuchdata/stockledger/internal/repository/postgres"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/andresuchdata/stockledger/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

type dbKey struct{}

// ledger bundles the services a command works with.
type ledger struct {
	catalog    *service.CatalogService
	inventory  *service.InventoryService
	production *service.ProductionService
	reorder    *service.ReorderService
}

func newLedger(store repository.Store, cfg *config.Config) *ledger {
	c, err := cache.NewInventoryCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("redis unavailable, cached read models may be stale")
		c = cache.NewNoopInventoryCache()
	}
	return &ledger{
		catalog:    service.NewCatalogService(store, c),
		inventory:  service.NewInventoryService(store, c, decimal.NewFromFloat(cfg.Ledger.LowStockThreshold), time.Now),
		production: service.NewProductionService(store, c, time.Now),
		reorder: service.NewReorderService(store, c, service.MeanForecaster{}, service.ReorderOptions{
			HistoryWindow: time.Duration(cfg.Ledger.HistoryWindowDays) * 24 * time.Hour,
			Concurrency:   cfg.Ledger.AdvisorConcurrency,
		}, time.Now),
	}
}

func newDBURLFlag(cfg *config.Config) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string",
		Value:   cfg.Database.DSN(),
		EnvVars: []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	db, err := postgres.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.Context = context.WithValue(c.Context, dbKey{}, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey{}).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) (*postgres.DB, error) {
	db, ok := c.Context.Value(dbKey{}).(*postgres.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return db, nil
}

func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.LogLevel)

	app := &cli.App{
		Name:  "ledgerctl",
		Usage: "Operate the stock ledger from the command line",
		Flags: []cli.Flag{
			newDBURLFlag(cfg),
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create or update the ledger schema",
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					db, err := dbFrom(c)
					if err != nil {
						return err
					}
					if err := db.Migrate(c.Context); err != nil {
						return err
					}
					logger.Log.Info().Msg("schema is up to date")
					return nil
				},
			},
			{
				Name:   "seed",
				Usage:  "Load a small bakery catalog with opening stock",
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					db, err := dbFrom(c)
					if err != nil {
						return err
					}
					return seedBakery(c.Context, newLedger(db, cfg))
				},
			},
			{
				Name:  "import",
				Usage: "Bulk-load records from files",
				Subcommands: []*cli.Command{
					{
						Name:  "purchases",
						Usage: "Receive purchases from a CSV or XLSX file",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "file",
								Usage: "Local purchase file",
							},
							&cli.StringFlag{
								Name:  "prefix",
								Usage: "Import every csv/xlsx object under this bucket prefix",
							},
							&cli.StringFlag{
								Name:  "object",
								Usage: "Single object key, relative to --prefix when both are given",
							},
						},
						Before: initDB,
						After:  closeDB,
						Action: func(c *cli.Context) error {
							db, err := dbFrom(c)
							if err != nil {
								return err
							}
							return importPurchases(c.Context, newLedger(db, cfg), cfg.Storage, c.String("file"), c.String("prefix"), c.String("object"))
						},
					},
				},
			},
			{
				Name:  "export",
				Usage: "Write the audit workbook locally or upload it to object storage",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "How many days of history to include",
						Value: 30,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write to this path instead of uploading",
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					db, err := dbFrom(c)
					if err != nil {
						return err
					}
					return exportAudit(c.Context, db, cfg.Storage, c.Int("days"), c.String("out"), time.Now())
				},
			},
			{
				Name:  "reorder",
				Usage: "Print reorder recommendations",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "Forecast horizon in days",
						Value: cfg.Ledger.ReorderDays,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum gap worth reporting",
						Value: cfg.Ledger.ReorderThreshold,
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					db, err := dbFrom(c)
					if err != nil {
						return err
					}
					return printRecommendations(c.Context, newLedger(db, cfg), c.Int("days"), decimal.NewFromFloat(c.Float64("threshold")), c.App.Writer)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("ledgerctl failed")
	}
}
