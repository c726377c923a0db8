// Package costing computes item unit costs: the moving average maintained as
// stock arrives and the recursive bill-of-materials rollup for composed items.
package costing

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/ledger"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept on stored average costs.
const Precision = 6

// MovingAverage blends incoming stock into the current average:
// (stock*avg + qty*cost) / (stock + qty), or cost when the denominator is zero.
func MovingAverage(stock, avg, incomingQty, incomingCost decimal.Decimal) decimal.Decimal {
	denom := stock.Add(incomingQty)
	if denom.IsZero() {
		return incomingCost
	}
	num := stock.Mul(avg).Add(incomingQty.Mul(incomingCost))
	return num.DivRound(denom, Precision)
}

// UpdateMovingAverage recomputes and stores the item's average cost for an
// arrival of incomingQty at incomingCost. It must run before the arriving lot
// is inserted so the stock term covers pre-existing lots only. The item row
// and its lots are read through tx, which locks them in a write transaction.
func UpdateMovingAverage(ctx context.Context, tx repository.Tx, itemID int64, incomingQty, incomingCost decimal.Decimal) (decimal.Decimal, error) {
	if !incomingQty.IsPositive() || incomingCost.IsNegative() {
		return decimal.Zero, fmt.Errorf("incoming %s @ %s: %w", incomingQty, incomingCost, domain.ErrInvalidQuantity)
	}

	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("item %d: %w", itemID, domain.ErrUnknownItem)
		}
		return decimal.Zero, err
	}

	stock, err := ledger.LiveStock(ctx, tx, itemID)
	if err != nil {
		return decimal.Zero, err
	}

	avg := MovingAverage(stock, item.AverageCost, incomingQty, incomingCost)
	if err := tx.SetItemAverageCost(ctx, itemID, avg); err != nil {
		return decimal.Zero, fmt.Errorf("failed to store average cost for item %d: %w", itemID, err)
	}

	log.Debug().
		Int64("item_id", itemID).
		Str("stock", stock.String()).
		Str("previous", item.AverageCost.String()).
		Str("average", avg.String()).
		Msg("moving average updated")

	return avg, nil
}
