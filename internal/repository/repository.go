// Package repository declares the persistence contract of the ledger. Every
// read returns plain values; every mutation happens inside a Tx obtained from
// Store.WithTx and is committed or rolled back as one unit.
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/shopspring/decimal"
)

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Category        domain.Category
	IncludeArchived bool
}

// LotFilter narrows ListLots. Zero values mean "any".
type LotFilter struct {
	ItemID        int64
	ActiveOnly    bool
	ExpiresBefore *time.Time
	PurchaseID    int64
}

// Queries are the read operations available both inside and outside a transaction.
type Queries interface {
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	GetItemByName(ctx context.Context, name string) (*domain.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]domain.Item, error)
	ListItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error)

	ListCompositions(ctx context.Context, outputItemID int64) ([]domain.Composition, error)
	ListAllCompositions(ctx context.Context) ([]domain.Composition, error)
	CountCompositionsByInput(ctx context.Context, inputItemID int64) (int, error)

	GetLot(ctx context.Context, id int64) (*domain.Lot, error)
	// ListActiveLots returns lots of an item with remaining > 0 ordered by
	// created_at, then id, both ascending.
	ListActiveLots(ctx context.Context, itemID int64) ([]domain.Lot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]domain.Lot, error)
	SumActiveStock(ctx context.Context, itemID int64) (decimal.Decimal, error)
	CountLotsByItem(ctx context.Context, itemID int64) (int, error)
	StockSummary(ctx context.Context) ([]domain.StockSummary, error)

	GetAllocation(ctx context.Context, id int64) (*domain.Allocation, error)
	ListAllocationsByOutput(ctx context.Context, outputLotID int64) ([]domain.Allocation, error)
	CountAllocationsBySource(ctx context.Context, sourceLotIDs []int64) (int, error)
	ListAllocationViews(ctx context.Context, since time.Time, limit int) ([]domain.AllocationView, error)
	DailyConsumption(ctx context.Context, itemID int64, since time.Time) ([]domain.UsagePoint, error)
	ConsumedItemIDs(ctx context.Context, since time.Time) ([]int64, error)

	ListWaste(ctx context.Context, lotID int64, since time.Time) ([]domain.WasteEntry, error)

	GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error)
	ListPurchases(ctx context.Context) ([]domain.Purchase, error)
}

// Tx is a unit of work. Lot reads through a Tx lock the rows they return
// where the backend supports it.
type Tx interface {
	Queries

	CreateItem(ctx context.Context, item *domain.Item) error
	UpdateItem(ctx context.Context, item *domain.Item) error
	SetItemAverageCost(ctx context.Context, itemID int64, cost decimal.Decimal) error
	SetItemStatus(ctx context.Context, itemID int64, status domain.ItemStatus) error
	// DeleteItem removes the item and, explicitly, the composition edges it
	// owns as output. Callers verify no lot or other recipe references it.
	DeleteItem(ctx context.Context, itemID int64) error

	ReplaceCompositions(ctx context.Context, outputItemID int64, edges []domain.Composition) error

	InsertLot(ctx context.Context, lot *domain.Lot) error
	SetLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error

	InsertAllocation(ctx context.Context, alloc *domain.Allocation) error
	DeleteAllocationsByOutput(ctx context.Context, outputLotID int64) error

	InsertWaste(ctx context.Context, entry *domain.WasteEntry) error

	InsertPurchase(ctx context.Context, p *domain.Purchase) error
	MarkPurchaseVoided(ctx context.Context, id int64, at time.Time) error
}

// Store hands out transactions. WithTx commits when fn returns nil and rolls
// back on error or panic. View runs fn against a consistent read snapshot.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(q Queries) error) error
}
