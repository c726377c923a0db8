package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/shopspring/decimal"
)

func (t *memTx) stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return t.now()
	}
	return ts
}

func (t *memTx) CreateItem(ctx context.Context, item *domain.Item) error {
	for _, existing := range t.st.items {
		if strings.EqualFold(existing.Name, item.Name) {
			return fmt.Errorf("item %q: %w", item.Name, domain.ErrDuplicateItem)
		}
	}
	t.st.seq.item++
	item.ID = t.st.seq.item
	item.CreatedAt = t.stamp(item.CreatedAt)
	item.UpdatedAt = item.CreatedAt
	if item.Status == "" {
		item.Status = domain.ItemActive
	}
	t.st.items[item.ID] = *item
	return nil
}

func (t *memTx) UpdateItem(ctx context.Context, item *domain.Item) error {
	current, ok := t.st.items[item.ID]
	if !ok {
		return fmt.Errorf("item %d: %w", item.ID, domain.ErrNotFound)
	}
	for id, existing := range t.st.items {
		if id != item.ID && strings.EqualFold(existing.Name, item.Name) {
			return fmt.Errorf("item %q: %w", item.Name, domain.ErrDuplicateItem)
		}
	}
	current.Name = item.Name
	current.Unit = item.Unit
	current.ShelfLifeDays = item.ShelfLifeDays
	current.UpdatedAt = t.now()
	t.st.items[item.ID] = current
	*item = current
	return nil
}

func (t *memTx) SetItemAverageCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	item, ok := t.st.items[itemID]
	if !ok {
		return fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}
	item.AverageCost = cost
	item.UpdatedAt = t.now()
	t.st.items[itemID] = item
	return nil
}

func (t *memTx) SetItemStatus(ctx context.Context, itemID int64, status domain.ItemStatus) error {
	item, ok := t.st.items[itemID]
	if !ok {
		return fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}
	item.Status = status
	item.UpdatedAt = t.now()
	t.st.items[itemID] = item
	return nil
}

func (t *memTx) DeleteItem(ctx context.Context, itemID int64) error {
	if _, ok := t.st.items[itemID]; !ok {
		return fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}
	for id, c := range t.st.compositions {
		if c.OutputItemID == itemID {
			delete(t.st.compositions, id)
		}
	}
	delete(t.st.items, itemID)
	return nil
}

func (t *memTx) ReplaceCompositions(ctx context.Context, outputItemID int64, edges []domain.Composition) error {
	for id, c := range t.st.compositions {
		if c.OutputItemID == outputItemID {
			delete(t.st.compositions, id)
		}
	}
	for i := range edges {
		t.st.seq.composition++
		edges[i].ID = t.st.seq.composition
		edges[i].OutputItemID = outputItemID
		t.st.compositions[edges[i].ID] = edges[i]
	}
	return nil
}

func (t *memTx) InsertLot(ctx context.Context, lot *domain.Lot) error {
	if _, ok := t.st.items[lot.ItemID]; !ok {
		return fmt.Errorf("item %d: %w", lot.ItemID, domain.ErrNotFound)
	}
	t.st.seq.lot++
	lot.ID = t.st.seq.lot
	lot.CreatedAt = t.stamp(lot.CreatedAt)
	t.st.lots[lot.ID] = *lot
	return nil
}

func (t *memTx) SetLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	lot, ok := t.st.lots[lotID]
	if !ok {
		return fmt.Errorf("lot %d: %w", lotID, domain.ErrNotFound)
	}
	lot.QuantityRemaining = remaining
	t.st.lots[lotID] = lot
	return nil
}

func (t *memTx) InsertAllocation(ctx context.Context, alloc *domain.Allocation) error {
	if _, ok := t.st.lots[alloc.SourceLotID]; !ok {
		return fmt.Errorf("source lot %d: %w", alloc.SourceLotID, domain.ErrNotFound)
	}
	if _, ok := t.st.lots[alloc.OutputLotID]; !ok {
		return fmt.Errorf("output lot %d: %w", alloc.OutputLotID, domain.ErrNotFound)
	}
	t.st.seq.allocation++
	alloc.ID = t.st.seq.allocation
	alloc.CreatedAt = t.stamp(alloc.CreatedAt)
	t.st.allocations[alloc.ID] = *alloc
	return nil
}

func (t *memTx) DeleteAllocationsByOutput(ctx context.Context, outputLotID int64) error {
	for id, a := range t.st.allocations {
		if a.OutputLotID == outputLotID {
			delete(t.st.allocations, id)
		}
	}
	return nil
}

func (t *memTx) InsertWaste(ctx context.Context, entry *domain.WasteEntry) error {
	if _, ok := t.st.lots[entry.LotID]; !ok {
		return fmt.Errorf("lot %d: %w", entry.LotID, domain.ErrNotFound)
	}
	t.st.seq.waste++
	entry.ID = t.st.seq.waste
	entry.CreatedAt = t.stamp(entry.CreatedAt)
	t.st.waste[entry.ID] = *entry
	return nil
}

func (t *memTx) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	t.st.seq.purchase++
	p.ID = t.st.seq.purchase
	p.CreatedAt = t.stamp(p.CreatedAt)
	stored := *p
	stored.Lots = nil
	t.st.purchases[p.ID] = stored
	return nil
}

func (t *memTx) MarkPurchaseVoided(ctx context.Context, id int64, at time.Time) error {
	p, ok := t.st.purchases[id]
	if !ok {
		return fmt.Errorf("purchase %d: %w", id, domain.ErrNotFound)
	}
	p.VoidedAt = &at
	t.st.purchases[id] = p
	return nil
}
