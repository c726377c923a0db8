package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	itemColumns = `id, name, unit, shelf_life_days, category, status, average_cost, created_at, updated_at`
	lotColumns  = `id, item_id, quantity_remaining, quantity_initial, unit_cost, expires_at, origin, purchase_id, created_at`
)

// pgTx serves both read snapshots and write transactions. lock is set for
// write transactions so item and lot reads take FOR UPDATE row locks.
type pgTx struct {
	tx   *sqlx.Tx
	lock bool
}

var _ repository.Tx = (*pgTx)(nil)

func (t *pgTx) forUpdate(query string) string {
	if t.lock {
		return query + " FOR UPDATE"
	}
	return query
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return fmt.Errorf("failed to load "+format+": %w", append(args, err)...)
}

func (t *pgTx) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	query := t.forUpdate(`SELECT ` + itemColumns + ` FROM items WHERE id = $1`)
	if err := t.tx.GetContext(ctx, &item, query, id); err != nil {
		return nil, notFound(err, "item %d", id)
	}
	return &item, nil
}

func (t *pgTx) GetItemByName(ctx context.Context, name string) (*domain.Item, error) {
	var item domain.Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE LOWER(name) = LOWER($1)`
	if err := t.tx.GetContext(ctx, &item, query, name); err != nil {
		return nil, notFound(err, "item %q", name)
	}
	return &item, nil
}

func (t *pgTx) ListItems(ctx context.Context, filter repository.ItemFilter) ([]domain.Item, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		conds = append(conds, "status = 'active'")
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	items := []domain.Item{}
	if err := t.tx.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (t *pgTx) ListItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error) {
	items := []domain.Item{}
	if len(ids) == 0 {
		return items, nil
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ANY($1) ORDER BY id`
	if err := t.tx.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list items by id: %w", err)
	}
	return items, nil
}

func (t *pgTx) ListCompositions(ctx context.Context, outputItemID int64) ([]domain.Composition, error) {
	var edges []domain.Composition
	query := `
		SELECT id, output_item_id, input_item_id, quantity_required
		FROM compositions
		WHERE output_item_id = $1
		ORDER BY input_item_id
	`
	if err := t.tx.SelectContext(ctx, &edges, query, outputItemID); err != nil {
		return nil, fmt.Errorf("failed to list compositions: %w", err)
	}
	return edges, nil
}

func (t *pgTx) ListAllCompositions(ctx context.Context) ([]domain.Composition, error) {
	var edges []domain.Composition
	query := `
		SELECT id, output_item_id, input_item_id, quantity_required
		FROM compositions
		ORDER BY output_item_id, input_item_id
	`
	if err := t.tx.SelectContext(ctx, &edges, query); err != nil {
		return nil, fmt.Errorf("failed to list compositions: %w", err)
	}
	return edges, nil
}

func (t *pgTx) CountCompositionsByInput(ctx context.Context, inputItemID int64) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM compositions WHERE input_item_id = $1`, inputItemID)
	if err != nil {
		return 0, fmt.Errorf("failed to count compositions: %w", err)
	}
	return n, nil
}

func (t *pgTx) GetLot(ctx context.Context, id int64) (*domain.Lot, error) {
	var lot domain.Lot
	query := t.forUpdate(`SELECT ` + lotColumns + ` FROM lots WHERE id = $1`)
	if err := t.tx.GetContext(ctx, &lot, query, id); err != nil {
		return nil, notFound(err, "lot %d", id)
	}
	return &lot, nil
}

func (t *pgTx) ListActiveLots(ctx context.Context, itemID int64) ([]domain.Lot, error) {
	var lots []domain.Lot
	query := t.forUpdate(`
		SELECT ` + lotColumns + `
		FROM lots
		WHERE item_id = $1 AND quantity_remaining > 0
		ORDER BY created_at, id`)
	if err := t.tx.SelectContext(ctx, &lots, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to list active lots of item %d: %w", itemID, err)
	}
	return lots, nil
}

func (t *pgTx) ListLots(ctx context.Context, filter repository.LotFilter) ([]domain.Lot, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ItemID != 0 {
		args = append(args, filter.ItemID)
		conds = append(conds, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if filter.PurchaseID != 0 {
		args = append(args, filter.PurchaseID)
		conds = append(conds, fmt.Sprintf("purchase_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "quantity_remaining > 0")
	}
	if filter.ExpiresBefore != nil {
		args = append(args, *filter.ExpiresBefore)
		conds = append(conds, fmt.Sprintf("expires_at IS NOT NULL AND expires_at < $%d", len(args)))
	}

	query := `SELECT ` + lotColumns + ` FROM lots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	lots := []domain.Lot{}
	if err := t.tx.SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return lots, nil
}

func (t *pgTx) SumActiveStock(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(quantity_remaining), 0) FROM lots WHERE item_id = $1 AND quantity_remaining > 0`
	if err := t.tx.GetContext(ctx, &total, query, itemID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum stock of item %d: %w", itemID, err)
	}
	return total, nil
}

func (t *pgTx) CountLotsByItem(ctx context.Context, itemID int64) (int, error) {
	var n int
	if err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM lots WHERE item_id = $1`, itemID); err != nil {
		return 0, fmt.Errorf("failed to count lots: %w", err)
	}
	return n, nil
}

func (t *pgTx) StockSummary(ctx context.Context) ([]domain.StockSummary, error) {
	summary := []domain.StockSummary{}
	query := `
		SELECT
			i.id AS item_id,
			i.name AS item_name,
			i.unit,
			i.category,
			SUM(l.quantity_remaining) AS total_stock
		FROM lots l
		JOIN items i ON i.id = l.item_id
		WHERE l.quantity_remaining > 0 AND i.status = 'active'
		GROUP BY i.id, i.name, i.unit, i.category
		ORDER BY i.name
	`
	if err := t.tx.SelectContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("failed to build stock summary: %w", err)
	}
	return summary, nil
}

func (t *pgTx) GetAllocation(ctx context.Context, id int64) (*domain.Allocation, error) {
	var a domain.Allocation
	query := `SELECT id, source_lot_id, output_lot_id, quantity, created_at FROM allocations WHERE id = $1`
	if err := t.tx.GetContext(ctx, &a, query, id); err != nil {
		return nil, notFound(err, "allocation %d", id)
	}
	return &a, nil
}

func (t *pgTx) ListAllocationsByOutput(ctx context.Context, outputLotID int64) ([]domain.Allocation, error) {
	var out []domain.Allocation
	query := `
		SELECT id, source_lot_id, output_lot_id, quantity, created_at
		FROM allocations
		WHERE output_lot_id = $1
		ORDER BY id
	`
	if err := t.tx.SelectContext(ctx, &out, query, outputLotID); err != nil {
		return nil, fmt.Errorf("failed to list allocations of lot %d: %w", outputLotID, err)
	}
	return out, nil
}

func (t *pgTx) CountAllocationsBySource(ctx context.Context, sourceLotIDs []int64) (int, error) {
	if len(sourceLotIDs) == 0 {
		return 0, nil
	}
	var n int
	query := `SELECT COUNT(*) FROM allocations WHERE source_lot_id = ANY($1)`
	if err := t.tx.GetContext(ctx, &n, query, pq.Array(sourceLotIDs)); err != nil {
		return 0, fmt.Errorf("failed to count allocations: %w", err)
	}
	return n, nil
}

func (t *pgTx) ListAllocationViews(ctx context.Context, since time.Time, limit int) ([]domain.AllocationView, error) {
	var args []any
	query := `
		SELECT
			a.id, a.source_lot_id, a.output_lot_id, a.quantity, a.created_at,
			src.item_id AS source_item_id,
			si.name AS source_item_name,
			dst.item_id AS output_item_id,
			oi.name AS output_item_name,
			src.unit_cost AS source_unit_cost
		FROM allocations a
		JOIN lots src ON src.id = a.source_lot_id
		JOIN lots dst ON dst.id = a.output_lot_id
		JOIN items si ON si.id = src.item_id
		JOIN items oi ON oi.id = dst.item_id
	`
	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(" WHERE a.created_at >= $%d", len(args))
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	views := []domain.AllocationView{}
	if err := t.tx.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list allocation views: %w", err)
	}
	return views, nil
}

func (t *pgTx) DailyConsumption(ctx context.Context, itemID int64, since time.Time) ([]domain.UsagePoint, error) {
	points := []domain.UsagePoint{}
	query := `
		SELECT
			date_trunc('day', a.created_at AT TIME ZONE 'UTC') AS day,
			SUM(a.quantity) AS quantity
		FROM allocations a
		JOIN lots l ON l.id = a.source_lot_id
		WHERE l.item_id = $1 AND a.created_at >= $2
		GROUP BY 1
		ORDER BY 1
	`
	if err := t.tx.SelectContext(ctx, &points, query, itemID, since); err != nil {
		return nil, fmt.Errorf("failed to load consumption of item %d: %w", itemID, err)
	}
	for i := range points {
		d := points[i].Day
		points[i].Day = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return points, nil
}

func (t *pgTx) ConsumedItemIDs(ctx context.Context, since time.Time) ([]int64, error) {
	var ids []int64
	query := `
		SELECT DISTINCT l.item_id
		FROM allocations a
		JOIN lots l ON l.id = a.source_lot_id
		WHERE a.created_at >= $1
		ORDER BY l.item_id
	`
	if err := t.tx.SelectContext(ctx, &ids, query, since); err != nil {
		return nil, fmt.Errorf("failed to list consumed items: %w", err)
	}
	return ids, nil
}

func (t *pgTx) ListWaste(ctx context.Context, lotID int64, since time.Time) ([]domain.WasteEntry, error) {
	var (
		conds []string
		args  []any
	)
	if lotID != 0 {
		args = append(args, lotID)
		conds = append(conds, fmt.Sprintf("lot_id = $%d", len(args)))
	}
	if !since.IsZero() {
		args = append(args, since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT id, lot_id, quantity, reason, cost_loss, created_at FROM waste_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	entries := []domain.WasteEntry{}
	if err := t.tx.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list waste: %w", err)
	}
	return entries, nil
}

func (t *pgTx) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	var p domain.Purchase
	query := `SELECT id, supplier_name, total_cost, invoice_date, voided_at, created_at FROM purchases WHERE id = $1`
	if err := t.tx.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "purchase %d", id)
	}

	lots, err := t.ListLots(ctx, repository.LotFilter{PurchaseID: id})
	if err != nil {
		return nil, err
	}
	p.Lots = lots
	return &p, nil
}

func (t *pgTx) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	out := []domain.Purchase{}
	query := `
		SELECT id, supplier_name, total_cost, invoice_date, voided_at, created_at
		FROM purchases
		ORDER BY id DESC
	`
	if err := t.tx.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return out, nil
}
