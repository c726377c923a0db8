package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductionRequest asks for Quantity units of OutputItemID. PinnedLots maps
// an input item id to the lot that must supply all of that input.
type ProductionRequest struct {
	OutputItemID int64           `json:"output_item_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	PinnedLots   map[int64]int64 `json:"pinned_lots,omitempty"`
}

// ProductionResult describes a committed production run.
type ProductionResult struct {
	OutputLotID      int64           `json:"output_lot_id"`
	OutputItemID     int64           `json:"output_item_id"`
	QuantityProduced decimal.Decimal `json:"quantity_produced"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Allocations      []Allocation    `json:"allocations"`
}

// Requirement is the quantity of one input needed for a production request.
type Requirement struct {
	InputItemID int64
	PerUnit     decimal.Decimal
	Quantity    decimal.Decimal
	PinnedLotID *int64
}

// MissingInput explains why an input cannot cover a requested quantity.
type MissingInput struct {
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Needed    decimal.Decimal `json:"needed"`
	Available decimal.Decimal `json:"available"`
}

// Availability is the answer to "can I make N of this item right now".
type Availability struct {
	OutputItemID  int64           `json:"output_item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Available     bool            `json:"available"`
	MaxProducible int64           `json:"max_producible"`
	Missing       []MissingInput  `json:"missing"`
}

// StockSummary is the total remaining stock for one item.
type StockSummary struct {
	ItemID     int64           `json:"item_id" db:"item_id"`
	ItemName   string          `json:"item_name" db:"item_name"`
	Unit       string          `json:"unit" db:"unit"`
	Category   Category        `json:"category" db:"category"`
	TotalStock decimal.Decimal `json:"total_stock" db:"total_stock"`
}

// DashboardStats aggregates headline numbers for the kitchen dashboard.
type DashboardStats struct {
	LowStockItems       int             `json:"low_stock_items"`
	TodayProductionCost decimal.Decimal `json:"today_production_cost"`
	WasteValueWeek      decimal.Decimal `json:"waste_value_week"`
	PurchaseCount       int             `json:"purchase_count"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

// UsagePoint is one day of consumption for an item.
type UsagePoint struct {
	Day      time.Time       `json:"day" db:"day"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"`
}

// ReorderRecommendation suggests buying Gap more units of an item.
type ReorderRecommendation struct {
	ItemID          int64           `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Unit            string          `json:"unit"`
	Category        Category        `json:"category"`
	CurrentStock    decimal.Decimal `json:"current_stock"`
	PredictedDemand decimal.Decimal `json:"predicted_demand"`
	Gap             decimal.Decimal `json:"gap"`
	Message         string          `json:"message"`
}

// Reversal describes an undone production run.
type Reversal struct {
	OutputLotID  int64        `json:"output_lot_id"`
	OutputItemID int64        `json:"output_item_id"`
	Restored     []Allocation `json:"restored"`
}
