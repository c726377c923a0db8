package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a purchasable or producible good.
type Item struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Unit          string          `json:"unit" db:"unit"`
	ShelfLifeDays int             `json:"shelf_life_days" db:"shelf_life_days"`
	Category      Category        `json:"category" db:"category"`
	Status        ItemStatus      `json:"status" db:"status"`
	AverageCost   decimal.Decimal `json:"average_cost" db:"average_cost"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Archived reports whether the item has been soft-deleted.
func (i *Item) Archived() bool {
	return i.Status == ItemArchived
}

// ExpiryFrom returns the expiry timestamp for a lot of this item created at t,
// or nil when the item does not expire.
func (i *Item) ExpiryFrom(t time.Time) *time.Time {
	if i.ShelfLifeDays <= 0 {
		return nil
	}
	exp := t.AddDate(0, 0, i.ShelfLifeDays)
	return &exp
}

// ItemUpdate carries the descriptive fields an edit may change. Nil fields
// are left alone; category is immutable.
type ItemUpdate struct {
	Name          *string `json:"name,omitempty"`
	Unit          *string `json:"unit,omitempty"`
	ShelfLifeDays *int    `json:"shelf_life_days,omitempty"`
}

// Composition is one BOM row: producing one unit of OutputItemID consumes
// QuantityRequired units of InputItemID.
type Composition struct {
	ID               int64           `json:"id" db:"id"`
	OutputItemID     int64           `json:"output_item_id" db:"output_item_id"`
	InputItemID      int64           `json:"input_item_id" db:"input_item_id"`
	QuantityRequired decimal.Decimal `json:"quantity_required" db:"quantity_required"`
}

// RecipeLine is a caller-supplied recipe edge for SetRecipe.
type RecipeLine struct {
	InputItemID      int64           `json:"input_item_id"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
}

// RecipeIngredient is a composition edge joined with its input item.
type RecipeIngredient struct {
	CompositionID    int64           `json:"composition_id" db:"composition_id"`
	InputItemID      int64           `json:"input_item_id" db:"input_item_id"`
	InputItemName    string          `json:"input_item_name" db:"input_item_name"`
	InputCategory    Category        `json:"input_category" db:"input_category"`
	QuantityRequired decimal.Decimal `json:"quantity_required" db:"quantity_required"`
}

// Recipe is the full edge set of one output item.
type Recipe struct {
	OutputItemID   int64              `json:"output_item_id"`
	OutputItemName string             `json:"output_item_name"`
	Ingredients    []RecipeIngredient `json:"ingredients"`
}

// LotOrigin says how a lot came into existence.
type LotOrigin string

const (
	OriginPurchase   LotOrigin = "purchase"
	OriginProduction LotOrigin = "production"
	OriginOpening    LotOrigin = "opening"
)

// Lot is a physically distinct quantity of one item acquired at one time and cost.
type Lot struct {
	ID                int64           `json:"id" db:"id"`
	ItemID            int64           `json:"item_id" db:"item_id"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining" db:"quantity_remaining"`
	QuantityInitial   decimal.Decimal `json:"quantity_initial" db:"quantity_initial"`
	UnitCost          decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	Origin            LotOrigin       `json:"origin" db:"origin"`
	PurchaseID        *int64          `json:"purchase_id,omitempty" db:"purchase_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Exhausted reports whether nothing remains in the lot.
func (l *Lot) Exhausted() bool {
	return !l.QuantityRemaining.IsPositive()
}

// Allocation records units consumed from SourceLotID to produce OutputLotID.
type Allocation struct {
	ID          int64           `json:"id" db:"id"`
	SourceLotID int64           `json:"source_lot_id" db:"source_lot_id"`
	OutputLotID int64           `json:"output_lot_id" db:"output_lot_id"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AllocationView is an allocation joined with the items on both sides.
type AllocationView struct {
	Allocation
	SourceItemID   int64           `json:"source_item_id" db:"source_item_id"`
	SourceItemName string          `json:"source_item_name" db:"source_item_name"`
	OutputItemID   int64           `json:"output_item_id" db:"output_item_id"`
	OutputItemName string          `json:"output_item_name" db:"output_item_name"`
	SourceUnitCost decimal.Decimal `json:"source_unit_cost" db:"source_unit_cost"`
}

// WasteReason classifies non-production removals.
type WasteReason string

const (
	WasteSpoiled WasteReason = "spoiled"
	WasteDropped WasteReason = "dropped"
	WasteBurned  WasteReason = "burned"
	WasteTheft   WasteReason = "theft"
)

// ParseWasteReason normalizes a reason label.
func ParseWasteReason(s string) (WasteReason, bool) {
	switch WasteReason(normalizeLabel(s)) {
	case WasteSpoiled:
		return WasteSpoiled, true
	case WasteDropped:
		return WasteDropped, true
	case WasteBurned:
		return WasteBurned, true
	case WasteTheft:
		return WasteTheft, true
	}
	return "", false
}

// WasteEntry records stock removed from a lot for non-production reasons.
type WasteEntry struct {
	ID        int64           `json:"id" db:"id"`
	LotID     int64           `json:"lot_id" db:"lot_id"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	Reason    WasteReason     `json:"reason" db:"reason"`
	CostLoss  decimal.Decimal `json:"cost_loss" db:"cost_loss"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Purchase is a supplier invoice whose lines became lots.
type Purchase struct {
	ID           int64           `json:"id" db:"id"`
	SupplierName string          `json:"supplier_name" db:"supplier_name"`
	TotalCost    decimal.Decimal `json:"total_cost" db:"total_cost"`
	InvoiceDate  *time.Time      `json:"invoice_date,omitempty" db:"invoice_date"`
	VoidedAt     *time.Time      `json:"voided_at,omitempty" db:"voided_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	Lots         []Lot           `json:"lots,omitempty" db:"-"`
}

// PurchaseLine is one invoice line to receive.
type PurchaseLine struct {
	ItemID   int64           `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// NewPurchase is the input for receiving a supplier invoice.
type NewPurchase struct {
	SupplierName string          `json:"supplier_name"`
	InvoiceDate  *time.Time      `json:"invoice_date,omitempty"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Lines        []PurchaseLine  `json:"lines"`
}
