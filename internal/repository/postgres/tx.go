package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// isUniqueViolation understands errors from both the lib/pq and pgx drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// createdAt lets the database default to NOW() when no timestamp was given.
func createdAt(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	return &ts
}

func (t *pgTx) exec(ctx context.Context, what string, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreateItem(ctx context.Context, item *domain.Item) error {
	query := `
		INSERT INTO items (name, unit, shelf_life_days, category, status, average_cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		item.Name, item.Unit, item.ShelfLifeDays, item.Category, item.Status, item.AverageCost,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %q: %w", item.Name, domain.ErrDuplicateItem)
	}
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateItem(ctx context.Context, item *domain.Item) error {
	query := `
		UPDATE items
		SET name = $2, unit = $3, shelf_life_days = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := t.tx.QueryRowxContext(ctx, query, item.ID, item.Name, item.Unit, item.ShelfLifeDays).Scan(&item.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %q: %w", item.Name, domain.ErrDuplicateItem)
	}
	if err != nil {
		return notFound(err, "item %d", item.ID)
	}
	return nil
}

func (t *pgTx) SetItemAverageCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	return t.exec(ctx, fmt.Sprintf("item %d", itemID),
		`UPDATE items SET average_cost = $2, updated_at = NOW() WHERE id = $1`, itemID, cost)
}

func (t *pgTx) SetItemStatus(ctx context.Context, itemID int64, status domain.ItemStatus) error {
	return t.exec(ctx, fmt.Sprintf("item %d", itemID),
		`UPDATE items SET status = $2, updated_at = NOW() WHERE id = $1`, itemID, status)
}

func (t *pgTx) DeleteItem(ctx context.Context, itemID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM compositions WHERE output_item_id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to delete recipe of item %d: %w", itemID, err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ReplaceCompositions(ctx context.Context, outputItemID int64, edges []domain.Composition) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM compositions WHERE output_item_id = $1`, outputItemID); err != nil {
		return fmt.Errorf("failed to clear recipe of item %d: %w", outputItemID, err)
	}

	stmt, err := t.tx.PreparexContext(ctx, `
		INSERT INTO compositions (output_item_id, input_item_id, quantity_required)
		VALUES ($1, $2, $3)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range edges {
		edges[i].OutputItemID = outputItemID
		if err := stmt.QueryRowxContext(ctx, outputItemID, edges[i].InputItemID, edges[i].QuantityRequired).Scan(&edges[i].ID); err != nil {
			return fmt.Errorf("failed to insert composition: %w", err)
		}
	}
	return nil
}

func (t *pgTx) InsertLot(ctx context.Context, lot *domain.Lot) error {
	query := `
		INSERT INTO lots (
			item_id, quantity_remaining, quantity_initial, unit_cost,
			expires_at, origin, purchase_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		RETURNING id, created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		lot.ItemID, lot.QuantityRemaining, lot.QuantityInitial, lot.UnitCost,
		lot.ExpiresAt, lot.Origin, lot.PurchaseID, createdAt(lot.CreatedAt),
	).Scan(&lot.ID, &lot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	return nil
}

func (t *pgTx) SetLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	return t.exec(ctx, fmt.Sprintf("lot %d", lotID),
		`UPDATE lots SET quantity_remaining = $2 WHERE id = $1`, lotID, remaining)
}

func (t *pgTx) InsertAllocation(ctx context.Context, alloc *domain.Allocation) error {
	query := `
		INSERT INTO allocations (source_lot_id, output_lot_id, quantity, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		RETURNING id, created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		alloc.SourceLotID, alloc.OutputLotID, alloc.Quantity, createdAt(alloc.CreatedAt),
	).Scan(&alloc.ID, &alloc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteAllocationsByOutput(ctx context.Context, outputLotID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM allocations WHERE output_lot_id = $1`, outputLotID); err != nil {
		return fmt.Errorf("failed to delete allocations of lot %d: %w", outputLotID, err)
	}
	return nil
}

func (t *pgTx) InsertWaste(ctx context.Context, entry *domain.WasteEntry) error {
	query := `
		INSERT INTO waste_entries (lot_id, quantity, reason, cost_loss, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING id, created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		entry.LotID, entry.Quantity, entry.Reason, entry.CostLoss, createdAt(entry.CreatedAt),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert waste entry: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	query := `
		INSERT INTO purchases (supplier_name, total_cost, invoice_date, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		RETURNING id, created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		p.SupplierName, p.TotalCost, p.InvoiceDate, createdAt(p.CreatedAt),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func (t *pgTx) MarkPurchaseVoided(ctx context.Context, id int64, at time.Time) error {
	return t.exec(ctx, fmt.Sprintf("purchase %d", id),
		`UPDATE purchases SET voided_at = $2 WHERE id = $1`, id, at)
}
