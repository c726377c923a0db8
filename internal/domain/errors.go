package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownItem               = errors.New("unknown item")
	ErrNoRecipe                  = errors.New("no recipe")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrUnknownPinnedLot          = errors.New("unknown pinned lot")
	ErrPinnedLotInsufficient     = errors.New("pinned lot insufficient")
	ErrAlreadyConsumedDownstream = errors.New("already consumed downstream")
	ErrExceedsRemaining          = errors.New("exceeds remaining quantity")
	ErrInvalidQuantity           = errors.New("invalid quantity")
	ErrNotFound                  = errors.New("not found")

	ErrDuplicateItem   = errors.New("duplicate item")
	ErrItemArchived    = errors.New("item archived")
	ErrItemInUse       = errors.New("item in use")
	ErrInvalidItem     = errors.New("invalid item")
	ErrInvalidRecipe   = errors.New("invalid recipe")
	ErrRecipeCycle     = errors.New("recipe cycle")
	ErrPurchaseVoided  = errors.New("purchase voided")
	ErrInvalidPurchase = errors.New("invalid purchase")
	ErrInvalidReason   = errors.New("invalid waste reason")
)

// ShortageError is returned when an input cannot cover a production request.
// It unwraps to ErrPinnedLotInsufficient when a pinned lot was the limit and
// to ErrInsufficientStock otherwise.
type ShortageError struct {
	ItemID        int64
	ItemName      string
	LotID         *int64
	Needed        decimal.Decimal
	Available     decimal.Decimal
	MaxProducible int64
}

func (e *ShortageError) Error() string {
	if e.LotID != nil {
		return fmt.Sprintf("lot %d of %q has %s, need %s: max producible %d",
			*e.LotID, e.ItemName, e.Available, e.Needed, e.MaxProducible)
	}
	return fmt.Sprintf("insufficient stock for %q: need %s, have %s: max producible %d",
		e.ItemName, e.Needed, e.Available, e.MaxProducible)
}

func (e *ShortageError) Unwrap() error {
	if e.LotID != nil {
		return ErrPinnedLotInsufficient
	}
	return ErrInsufficientStock
}

// RecipeError lists why a proposed recipe was refused.
type RecipeError struct {
	OutputItemID int64
	Problems     []string
	Cycle        []int64
}

func (e *RecipeError) Error() string {
	if len(e.Cycle) > 0 {
		parts := make([]string, len(e.Cycle))
		for i, id := range e.Cycle {
			parts[i] = fmt.Sprintf("%d", id)
		}
		return fmt.Sprintf("recipe for item %d creates a cycle: %s", e.OutputItemID, strings.Join(parts, " -> "))
	}
	return fmt.Sprintf("invalid recipe for item %d: %s", e.OutputItemID, strings.Join(e.Problems, "; "))
}

func (e *RecipeError) Unwrap() error {
	if len(e.Cycle) > 0 {
		return ErrRecipeCycle
	}
	return ErrInvalidRecipe
}

// Kind returns a stable snake_case label for the taxonomy error wrapped by err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, ErrNoRecipe):
		return "no_recipe"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrUnknownPinnedLot):
		return "unknown_pinned_lot"
	case errors.Is(err, ErrPinnedLotInsufficient):
		return "pinned_lot_insufficient"
	case errors.Is(err, ErrAlreadyConsumedDownstream):
		return "already_consumed_downstream"
	case errors.Is(err, ErrExceedsRemaining):
		return "exceeds_remaining"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateItem):
		return "duplicate_item"
	case errors.Is(err, ErrItemArchived):
		return "item_archived"
	case errors.Is(err, ErrItemInUse):
		return "item_in_use"
	case errors.Is(err, ErrInvalidItem):
		return "invalid_item"
	case errors.Is(err, ErrRecipeCycle):
		return "recipe_cycle"
	case errors.Is(err, ErrInvalidRecipe):
		return "invalid_recipe"
	case errors.Is(err, ErrPurchaseVoided):
		return "purchase_voided"
	case errors.Is(err, ErrInvalidPurchase):
		return "invalid_purchase"
	case errors.Is(err, ErrInvalidReason):
		return "invalid_waste_reason"
	}
	return "internal"
}

// MaxProducible returns floor(available / perUnit), or 0 when perUnit is not positive.
func MaxProducible(available, perUnit decimal.Decimal) int64 {
	if !perUnit.IsPositive() || !available.IsPositive() {
		return 0
	}
	return available.Div(perUnit).Floor().IntPart()
}
