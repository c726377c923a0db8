package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/andresuchdata/stockledger/internal/costing"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/ledger"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/shopspring/decimal"
)

// openTestDB connects to TEST_DATABASE_URL with the pgx driver and resets
// the ledger tables. Tests skip when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := Open("pgx", url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE waste_entries, allocations, lots, purchases, compositions, items RESTART IDENTITY`); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

	var flourID, doughID int64
	var lotIDs []int64
	err := db.WithTx(ctx, func(tx repository.Tx) error {
		flour := domain.Item{Name: "Flour", Unit: "kg", Category: domain.CategoryRaw, Status: domain.ItemActive}
		dough := domain.Item{Name: "Dough", Unit: "kg", Category: domain.CategoryIntermediate, Status: domain.ItemActive}
		if err := tx.CreateItem(ctx, &flour); err != nil {
			return err
		}
		if err := tx.CreateItem(ctx, &dough); err != nil {
			return err
		}
		flourID, doughID = flour.ID, dough.ID

		edges := []domain.Composition{{InputItemID: flour.ID, QuantityRequired: decimal.NewFromInt(1)}}
		if err := tx.ReplaceCompositions(ctx, dough.ID, edges); err != nil {
			return err
		}

		// Inserted newest first to prove ordering comes from created_at.
		for i, qty := range []int64{5, 3} {
			lot := domain.Lot{
				ItemID:            flour.ID,
				QuantityRemaining: decimal.NewFromInt(qty),
				QuantityInitial:   decimal.NewFromInt(qty),
				UnitCost:          decimal.NewFromInt(2),
				Origin:            domain.OriginPurchase,
				CreatedAt:         base.Add(time.Duration(1-i) * time.Hour),
			}
			if err := tx.InsertLot(ctx, &lot); err != nil {
				return err
			}
			lotIDs = append(lotIDs, lot.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.View(ctx, func(q repository.Queries) error {
		lots, err := q.ListActiveLots(ctx, flourID)
		if err != nil {
			return err
		}
		if len(lots) != 2 || lots[0].ID != lotIDs[1] {
			t.Errorf("expected the older lot first, got %+v", lots)
		}

		total, err := q.SumActiveStock(ctx, flourID)
		if err != nil {
			return err
		}
		if !total.Equal(decimal.NewFromInt(8)) {
			t.Errorf("total stock = %s, want 8", total)
		}

		edges, err := q.ListCompositions(ctx, doughID)
		if err != nil {
			return err
		}
		if len(edges) != 1 || edges[0].InputItemID != flourID {
			t.Errorf("unexpected edges %+v", edges)
		}

		if _, err := q.GetItemByName(ctx, "FLOUR"); err != nil {
			t.Errorf("case-insensitive lookup failed: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStoreErrors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx repository.Tx) error {
		item := domain.Item{Name: "Salt", Category: domain.CategoryRaw, Status: domain.ItemActive}
		if err := tx.CreateItem(ctx, &item); err != nil {
			return err
		}
		dup := domain.Item{Name: "salt", Category: domain.CategoryRaw, Status: domain.ItemActive}
		return tx.CreateItem(ctx, &dup)
	})
	if !errors.Is(err, domain.ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}

	err = db.View(ctx, func(q repository.Queries) error {
		if _, err := q.GetItemByName(ctx, "Salt"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("rolled back item is visible: %v", err)
		}
		if _, err := q.GetLot(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetLot: expected ErrNotFound, got %v", err)
		}
		if _, err := q.GetAllocation(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetAllocation: expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error reported as unique violation")
	}
	if isUniqueViolation(nil) {
		t.Error("nil reported as unique violation")
	}
}

// receive folds qty@cost into the item's average and books the lot.
func receive(ctx context.Context, tx repository.Tx, itemID int64, qty, cost int64) (domain.Lot, error) {
	if _, err := costing.UpdateMovingAverage(ctx, tx, itemID, decimal.NewFromInt(qty), decimal.NewFromInt(cost)); err != nil {
		return domain.Lot{}, err
	}
	lot := domain.Lot{
		ItemID:            itemID,
		QuantityRemaining: decimal.NewFromInt(qty),
		QuantityInitial:   decimal.NewFromInt(qty),
		UnitCost:          decimal.NewFromInt(cost),
		Origin:            domain.OriginPurchase,
		CreatedAt:         time.Now(),
	}
	if err := tx.InsertLot(ctx, &lot); err != nil {
		return domain.Lot{}, err
	}
	return lot, nil
}

func seedFlour(t *testing.T, db *DB) (int64, domain.Lot) {
	t.Helper()
	ctx := context.Background()
	var itemID int64
	var lot domain.Lot
	err := db.WithTx(ctx, func(tx repository.Tx) error {
		item := domain.Item{Name: "Flour", Unit: "kg", Category: domain.CategoryRaw, Status: domain.ItemActive}
		if err := tx.CreateItem(ctx, &item); err != nil {
			return err
		}
		itemID = item.ID
		var err error
		lot, err = receive(ctx, tx, itemID, 10, 2)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return itemID, lot
}

func TestConcurrentArrivalsKeepMovingAverage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	flourID, _ := seedFlour(t, db)

	locked := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- db.WithTx(ctx, func(tx repository.Tx) error {
			if _, err := receive(ctx, tx, flourID, 10, 4); err != nil {
				return err
			}
			close(locked)
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}()

	select {
	case <-locked:
	case err := <-first:
		t.Fatalf("first transaction ended early: %v", err)
	}
	err := db.WithTx(ctx, func(tx repository.Tx) error {
		_, err := receive(ctx, tx, flourID, 20, 6)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-first; err != nil {
		t.Fatal(err)
	}

	// 10@2 then 10@4 gives 3; 20@6 on top of 20@3 gives 4.5
	err = db.View(ctx, func(q repository.Queries) error {
		item, err := q.GetItem(ctx, flourID)
		if err != nil {
			return err
		}
		if !item.AverageCost.Equal(decimal.RequireFromString("4.5")) {
			t.Errorf("average cost = %s, want 4.5", item.AverageCost)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLiveStockWaitsForConcurrentDepletion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	flourID, lot := seedFlour(t, db)

	locked := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- db.WithTx(ctx, func(tx repository.Tx) error {
			if _, err := ledger.LiveStock(ctx, tx, flourID); err != nil {
				return err
			}
			if _, err := ledger.Withdraw(ctx, tx, lot.ID, decimal.NewFromInt(8)); err != nil {
				return err
			}
			close(locked)
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}()

	select {
	case <-locked:
	case err := <-first:
		t.Fatalf("first transaction ended early: %v", err)
	}
	err := db.WithTx(ctx, func(tx repository.Tx) error {
		stock, err := ledger.LiveStock(ctx, tx, flourID)
		if err != nil {
			return err
		}
		if !stock.Equal(decimal.NewFromInt(2)) {
			t.Errorf("stock = %s, want 2 once the other withdrawal commits", stock)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-first; err != nil {
		t.Fatal(err)
	}
}
