package service

import (
	"context"
	"testing"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/andresuchdata/stockledger/internal/repository/memory"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testClock advances one second per call so lots created in sequence have
// distinct, increasing timestamps.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type env struct {
	ctx        context.Context
	store      *memory.Store
	clock      *testClock
	catalog    *CatalogService
	inventory  *InventoryService
	production *ProductionService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)}
	store := memory.NewStore(memory.WithClock(clock.now))
	return &env{
		ctx:        context.Background(),
		store:      store,
		clock:      clock,
		catalog:    NewCatalogService(store, nil),
		inventory:  NewInventoryService(store, nil, dec("5"), clock.now),
		production: NewProductionService(store, nil, clock.now),
	}
}

func (e *env) item(t *testing.T, name string, cat domain.Category) *domain.Item {
	t.Helper()
	item, err := e.catalog.CreateItem(e.ctx, domain.Item{Name: name, Unit: "kg", Category: cat})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return item
}

func (e *env) recipe(t *testing.T, output *domain.Item, lines ...domain.RecipeLine) {
	t.Helper()
	if _, err := e.catalog.SetRecipe(e.ctx, output.ID, lines); err != nil {
		t.Fatalf("recipe for %s: %v", output.Name, err)
	}
}

func line(in *domain.Item, qty string) domain.RecipeLine {
	return domain.RecipeLine{InputItemID: in.ID, QuantityRequired: dec(qty)}
}

// buy receives one lot per quantity, each in its own purchase.
func (e *env) buy(t *testing.T, item *domain.Item, cost string, qtys ...string) []domain.Lot {
	t.Helper()
	var lots []domain.Lot
	for _, q := range qtys {
		p, err := e.inventory.ReceivePurchase(e.ctx, domain.NewPurchase{
			SupplierName: "Acme",
			Lines:        []domain.PurchaseLine{{ItemID: item.ID, Quantity: dec(q), UnitCost: dec(cost)}},
		})
		if err != nil {
			t.Fatalf("buy %s of %s: %v", q, item.Name, err)
		}
		lots = append(lots, p.Lots...)
	}
	return lots
}

func (e *env) lot(t *testing.T, id int64) domain.Lot {
	t.Helper()
	lot, err := e.inventory.GetLot(e.ctx, id)
	if err != nil {
		t.Fatalf("lot %d: %v", id, err)
	}
	return *lot
}

func (e *env) allocationCount(t *testing.T) int {
	t.Helper()
	var n int
	err := e.store.View(e.ctx, func(q repository.Queries) error {
		views, err := q.ListAllocationViews(e.ctx, time.Time{}, 0)
		n = len(views)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}
