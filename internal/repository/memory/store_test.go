package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/shopspring/decimal"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateItem(ctx, &domain.Item{Name: "Flour", Category: domain.CategoryRaw}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.View(ctx, func(q repository.Queries) error {
		items, err := q.ListItems(ctx, repository.ItemFilter{IncludeArchived: true})
		if err != nil {
			return err
		}
		if len(items) != 0 {
			t.Errorf("expected no items after rollback, got %d", len(items))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithTxCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateItem(ctx, &domain.Item{Name: "Flour", Category: domain.CategoryRaw}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	_ = store.View(context.Background(), func(q repository.Queries) error {
		if _, err := q.GetItemByName(context.Background(), "Flour"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected item to be discarded, got %v", err)
		}
		return nil
	})
}

func TestActiveLotsOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(fixedClock(base)))

	var flour domain.Item
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		flour = domain.Item{Name: "Flour", Unit: "kg", Category: domain.CategoryRaw}
		if err := tx.CreateItem(ctx, &flour); err != nil {
			return err
		}
		lots := []domain.Lot{
			{ItemID: flour.ID, QuantityRemaining: decimal.NewFromInt(2), QuantityInitial: decimal.NewFromInt(2), CreatedAt: base.Add(time.Hour)},
			{ItemID: flour.ID, QuantityRemaining: decimal.NewFromInt(3), QuantityInitial: decimal.NewFromInt(3), CreatedAt: base},
			{ItemID: flour.ID, QuantityRemaining: decimal.Zero, QuantityInitial: decimal.NewFromInt(1), CreatedAt: base},
			{ItemID: flour.ID, QuantityRemaining: decimal.NewFromInt(4), QuantityInitial: decimal.NewFromInt(4), CreatedAt: base},
		}
		for i := range lots {
			if err := tx.InsertLot(ctx, &lots[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = store.View(ctx, func(q repository.Queries) error {
		lots, err := q.ListActiveLots(ctx, flour.ID)
		if err != nil {
			t.Fatal(err)
		}
		var ids []int64
		for _, l := range lots {
			ids = append(ids, l.ID)
		}
		want := []int64{2, 4, 1}
		if len(ids) != len(want) {
			t.Fatalf("expected lots %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("expected lots %v, got %v", want, ids)
			}
		}

		total, err := q.SumActiveStock(ctx, flour.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !total.Equal(decimal.NewFromInt(9)) {
			t.Errorf("expected total 9, got %s", total)
		}
		return nil
	})
}

func TestDeleteItemCascadesOwnEdges(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var flour, dough domain.Item
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		flour = domain.Item{Name: "Flour", Category: domain.CategoryRaw}
		dough = domain.Item{Name: "Dough", Category: domain.CategoryIntermediate}
		if err := tx.CreateItem(ctx, &flour); err != nil {
			return err
		}
		if err := tx.CreateItem(ctx, &dough); err != nil {
			return err
		}
		return tx.ReplaceCompositions(ctx, dough.ID, []domain.Composition{
			{InputItemID: flour.ID, QuantityRequired: decimal.NewFromInt(1)},
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	err = store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.DeleteItem(ctx, dough.ID)
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = store.View(ctx, func(q repository.Queries) error {
		edges, _ := q.ListAllCompositions(ctx)
		if len(edges) != 0 {
			t.Errorf("expected edges to be cascaded, got %d", len(edges))
		}
		n, _ := q.CountCompositionsByInput(ctx, flour.ID)
		if n != 0 {
			t.Errorf("expected flour unused, got %d", n)
		}
		return nil
	})
}

func TestCreateItemDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateItem(ctx, &domain.Item{Name: "Flour", Category: domain.CategoryRaw}); err != nil {
			return err
		}
		return tx.CreateItem(ctx, &domain.Item{Name: "flour", Category: domain.CategoryRaw})
	})
	if !errors.Is(err, domain.ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_ = store.View(ctx, func(q repository.Queries) error {
		if _, err := q.GetItem(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("item: expected ErrNotFound, got %v", err)
		}
		if _, err := q.GetLot(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("lot: expected ErrNotFound, got %v", err)
		}
		if _, err := q.GetAllocation(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("allocation: expected ErrNotFound, got %v", err)
		}
		if _, err := q.GetPurchase(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("purchase: expected ErrNotFound, got %v", err)
		}
		return nil
	})
}
