package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/shopspring/decimal"
)

type memTx struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*memTx)(nil)

func (t *memTx) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	item, ok := t.st.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return &item, nil
}

func (t *memTx) GetItemByName(ctx context.Context, name string) (*domain.Item, error) {
	for _, item := range t.st.items {
		if strings.EqualFold(item.Name, name) {
			found := item
			return &found, nil
		}
	}
	return nil, fmt.Errorf("item %q: %w", name, domain.ErrNotFound)
}

func (t *memTx) ListItems(ctx context.Context, filter repository.ItemFilter) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(t.st.items))
	for _, item := range t.st.items {
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if !filter.IncludeArchived && item.Archived() {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (t *memTx) ListItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if item, ok := t.st.items[id]; ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *memTx) ListCompositions(ctx context.Context, outputItemID int64) ([]domain.Composition, error) {
	var edges []domain.Composition
	for _, c := range t.st.compositions {
		if c.OutputItemID == outputItemID {
			edges = append(edges, c)
		}
	}
	sortCompositions(edges)
	return edges, nil
}

func (t *memTx) ListAllCompositions(ctx context.Context) ([]domain.Composition, error) {
	edges := make([]domain.Composition, 0, len(t.st.compositions))
	for _, c := range t.st.compositions {
		edges = append(edges, c)
	}
	sortCompositions(edges)
	return edges, nil
}

func (t *memTx) CountCompositionsByInput(ctx context.Context, inputItemID int64) (int, error) {
	n := 0
	for _, c := range t.st.compositions {
		if c.InputItemID == inputItemID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetLot(ctx context.Context, id int64) (*domain.Lot, error) {
	lot, ok := t.st.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %d: %w", id, domain.ErrNotFound)
	}
	return &lot, nil
}

func (t *memTx) ListActiveLots(ctx context.Context, itemID int64) ([]domain.Lot, error) {
	return t.ListLots(ctx, repository.LotFilter{ItemID: itemID, ActiveOnly: true})
}

func (t *memTx) ListLots(ctx context.Context, filter repository.LotFilter) ([]domain.Lot, error) {
	var lots []domain.Lot
	for _, lot := range t.st.lots {
		if filter.ItemID != 0 && lot.ItemID != filter.ItemID {
			continue
		}
		if filter.PurchaseID != 0 && (lot.PurchaseID == nil || *lot.PurchaseID != filter.PurchaseID) {
			continue
		}
		if filter.ActiveOnly && lot.Exhausted() {
			continue
		}
		if filter.ExpiresBefore != nil && (lot.ExpiresAt == nil || !lot.ExpiresAt.Before(*filter.ExpiresBefore)) {
			continue
		}
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

func (t *memTx) SumActiveStock(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, lot := range t.st.lots {
		if lot.ItemID == itemID && !lot.Exhausted() {
			total = total.Add(lot.QuantityRemaining)
		}
	}
	return total, nil
}

func (t *memTx) CountLotsByItem(ctx context.Context, itemID int64) (int, error) {
	n := 0
	for _, lot := range t.st.lots {
		if lot.ItemID == itemID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) StockSummary(ctx context.Context) ([]domain.StockSummary, error) {
	totals := make(map[int64]decimal.Decimal)
	for _, lot := range t.st.lots {
		if lot.Exhausted() {
			continue
		}
		totals[lot.ItemID] = totals[lot.ItemID].Add(lot.QuantityRemaining)
	}

	var summary []domain.StockSummary
	for id, total := range totals {
		item, ok := t.st.items[id]
		if !ok || item.Archived() {
			continue
		}
		summary = append(summary, domain.StockSummary{
			ItemID:     id,
			ItemName:   item.Name,
			Unit:       item.Unit,
			Category:   item.Category,
			TotalStock: total,
		})
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].ItemName < summary[j].ItemName })
	return summary, nil
}

func (t *memTx) GetAllocation(ctx context.Context, id int64) (*domain.Allocation, error) {
	a, ok := t.st.allocations[id]
	if !ok {
		return nil, fmt.Errorf("allocation %d: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (t *memTx) ListAllocationsByOutput(ctx context.Context, outputLotID int64) ([]domain.Allocation, error) {
	var out []domain.Allocation
	for _, a := range t.st.allocations {
		if a.OutputLotID == outputLotID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CountAllocationsBySource(ctx context.Context, sourceLotIDs []int64) (int, error) {
	if len(sourceLotIDs) == 0 {
		return 0, nil
	}
	want := make(map[int64]bool, len(sourceLotIDs))
	for _, id := range sourceLotIDs {
		want[id] = true
	}
	n := 0
	for _, a := range t.st.allocations {
		if want[a.SourceLotID] {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListAllocationViews(ctx context.Context, since time.Time, limit int) ([]domain.AllocationView, error) {
	var views []domain.AllocationView
	for _, a := range t.st.allocations {
		if !since.IsZero() && a.CreatedAt.Before(since) {
			continue
		}
		src := t.st.lots[a.SourceLotID]
		out := t.st.lots[a.OutputLotID]
		views = append(views, domain.AllocationView{
			Allocation:     a,
			SourceItemID:   src.ItemID,
			SourceItemName: t.st.items[src.ItemID].Name,
			OutputItemID:   out.ItemID,
			OutputItemName: t.st.items[out.ItemID].Name,
			SourceUnitCost: src.UnitCost,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

func (t *memTx) DailyConsumption(ctx context.Context, itemID int64, since time.Time) ([]domain.UsagePoint, error) {
	byDay := make(map[time.Time]decimal.Decimal)
	for _, a := range t.st.allocations {
		if t.st.lots[a.SourceLotID].ItemID != itemID {
			continue
		}
		if !since.IsZero() && a.CreatedAt.Before(since) {
			continue
		}
		day := a.CreatedAt.UTC().Truncate(24 * time.Hour)
		byDay[day] = byDay[day].Add(a.Quantity)
	}

	points := make([]domain.UsagePoint, 0, len(byDay))
	for day, qty := range byDay {
		points = append(points, domain.UsagePoint{Day: day, Quantity: qty})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })
	return points, nil
}

func (t *memTx) ConsumedItemIDs(ctx context.Context, since time.Time) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range t.st.allocations {
		if !since.IsZero() && a.CreatedAt.Before(since) {
			continue
		}
		id := t.st.lots[a.SourceLotID].ItemID
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memTx) ListWaste(ctx context.Context, lotID int64, since time.Time) ([]domain.WasteEntry, error) {
	var entries []domain.WasteEntry
	for _, w := range t.st.waste {
		if lotID != 0 && w.LotID != lotID {
			continue
		}
		if !since.IsZero() && w.CreatedAt.Before(since) {
			continue
		}
		entries = append(entries, w)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (t *memTx) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	p, ok := t.st.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %d: %w", id, domain.ErrNotFound)
	}
	lots, err := t.ListLots(ctx, repository.LotFilter{PurchaseID: id})
	if err != nil {
		return nil, err
	}
	p.Lots = lots
	return &p, nil
}

func (t *memTx) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	out := make([]domain.Purchase, 0, len(t.st.purchases))
	for _, p := range t.st.purchases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func sortCompositions(edges []domain.Composition) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].OutputItemID != edges[j].OutputItemID {
			return edges[i].OutputItemID < edges[j].OutputItemID
		}
		return edges[i].InputItemID < edges[j].InputItemID
	})
}
