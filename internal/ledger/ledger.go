// Package ledger holds the lot-level stock operations: totals, FIFO ordering,
// depletion and administrative corrections. Every function works on the
// repository handle it is given and keeps no state of its own.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrShortWalk means a FIFO walk ran out of lots before covering the request.
// Callers check sufficiency first, so seeing it is a bug.
var ErrShortWalk = errors.New("ledger: lots exhausted during depletion")

// TotalStock is the sum of remaining quantity over the item's live lots.
func TotalStock(ctx context.Context, q repository.Queries, itemID int64) (decimal.Decimal, error) {
	total, err := q.SumActiveStock(ctx, itemID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum stock for item %d: %w", itemID, err)
	}
	return total, nil
}

// LiveStock sums the item's live lots row by row. Inside a write transaction
// those rows stay locked, so the total cannot drift before the tx commits.
func LiveStock(ctx context.Context, q repository.Queries, itemID int64) (decimal.Decimal, error) {
	lots, err := OrderedLots(ctx, q, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.QuantityRemaining)
	}
	return total, nil
}

// OrderedLots returns the item's live lots oldest first, ties by lot id.
func OrderedLots(ctx context.Context, q repository.Queries, itemID int64) ([]domain.Lot, error) {
	lots, err := q.ListActiveLots(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots for item %d: %w", itemID, err)
	}
	return lots, nil
}

// DepleteFIFO consumes quantity of itemID oldest lot first and records one
// allocation per lot touched against outputLotID.
func DepleteFIFO(ctx context.Context, tx repository.Tx, itemID int64, quantity decimal.Decimal, outputLotID int64) ([]domain.Allocation, error) {
	lots, err := OrderedLots(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	need := quantity
	allocations := make([]domain.Allocation, 0, 1)
	for _, lot := range lots {
		if !need.IsPositive() {
			break
		}
		take := decimal.Min(lot.QuantityRemaining, need)
		alloc, err := consume(ctx, tx, lot, take, outputLotID)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, alloc)
		need = need.Sub(take)
	}

	if need.IsPositive() {
		return nil, fmt.Errorf("item %d short by %s: %w", itemID, need, ErrShortWalk)
	}
	return allocations, nil
}

// DepletePinned consumes the whole quantity from one lot.
func DepletePinned(ctx context.Context, tx repository.Tx, itemID int64, quantity decimal.Decimal, lotID, outputLotID int64) (domain.Allocation, error) {
	lot, err := tx.GetLot(ctx, lotID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Allocation{}, fmt.Errorf("lot %d: %w", lotID, domain.ErrUnknownPinnedLot)
		}
		return domain.Allocation{}, fmt.Errorf("failed to load lot %d: %w", lotID, err)
	}
	if lot.ItemID != itemID {
		return domain.Allocation{}, fmt.Errorf("lot %d belongs to item %d, not %d: %w", lotID, lot.ItemID, itemID, domain.ErrUnknownPinnedLot)
	}
	if lot.QuantityRemaining.LessThan(quantity) {
		return domain.Allocation{}, &domain.ShortageError{
			ItemID:    itemID,
			LotID:     &lot.ID,
			Needed:    quantity,
			Available: lot.QuantityRemaining,
		}
	}
	return consume(ctx, tx, *lot, quantity, outputLotID)
}

func consume(ctx context.Context, tx repository.Tx, lot domain.Lot, quantity decimal.Decimal, outputLotID int64) (domain.Allocation, error) {
	if err := tx.SetLotRemaining(ctx, lot.ID, lot.QuantityRemaining.Sub(quantity)); err != nil {
		return domain.Allocation{}, fmt.Errorf("failed to deplete lot %d: %w", lot.ID, err)
	}
	alloc := domain.Allocation{
		SourceLotID: lot.ID,
		OutputLotID: outputLotID,
		Quantity:    quantity,
	}
	if err := tx.InsertAllocation(ctx, &alloc); err != nil {
		return domain.Allocation{}, fmt.Errorf("failed to record allocation from lot %d: %w", lot.ID, err)
	}
	return alloc, nil
}

// Withdraw removes quantity from a lot outside of production, for waste.
func Withdraw(ctx context.Context, tx repository.Tx, lotID int64, quantity decimal.Decimal) (*domain.Lot, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("withdraw %s: %w", quantity, domain.ErrInvalidQuantity)
	}
	lot, err := tx.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if quantity.GreaterThan(lot.QuantityRemaining) {
		return nil, fmt.Errorf("lot %d has %s, asked for %s: %w", lotID, lot.QuantityRemaining, quantity, domain.ErrExceedsRemaining)
	}
	lot.QuantityRemaining = lot.QuantityRemaining.Sub(quantity)
	if err := tx.SetLotRemaining(ctx, lotID, lot.QuantityRemaining); err != nil {
		return nil, fmt.Errorf("failed to update lot %d: %w", lotID, err)
	}
	return lot, nil
}

// Restore adds quantity back to a lot, clamped to its initial quantity.
func Restore(ctx context.Context, tx repository.Tx, lotID int64, quantity decimal.Decimal) error {
	lot, err := tx.GetLot(ctx, lotID)
	if err != nil {
		return fmt.Errorf("failed to load source lot %d: %w", lotID, err)
	}
	restored := lot.QuantityRemaining.Add(quantity)
	if restored.GreaterThan(lot.QuantityInitial) {
		log.Warn().
			Int64("lot_id", lotID).
			Str("restored", restored.String()).
			Str("initial", lot.QuantityInitial.String()).
			Msg("restore exceeds initial quantity, clamping")
		restored = lot.QuantityInitial
	}
	if err := tx.SetLotRemaining(ctx, lotID, restored); err != nil {
		return fmt.Errorf("failed to restore lot %d: %w", lotID, err)
	}
	return nil
}

// Correct overwrites a lot's remaining quantity after a stock take. The new
// value must stay within [0, initial].
func Correct(ctx context.Context, tx repository.Tx, lotID int64, newQuantity decimal.Decimal) (*domain.Lot, error) {
	if newQuantity.IsNegative() {
		return nil, fmt.Errorf("correct lot %d to %s: %w", lotID, newQuantity, domain.ErrInvalidQuantity)
	}
	lot, err := tx.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if newQuantity.GreaterThan(lot.QuantityInitial) {
		return nil, fmt.Errorf("lot %d initial quantity is %s: %w", lotID, lot.QuantityInitial, domain.ErrInvalidQuantity)
	}
	if err := tx.SetLotRemaining(ctx, lotID, newQuantity); err != nil {
		return nil, fmt.Errorf("failed to correct lot %d: %w", lotID, err)
	}

	log.Info().
		Int64("lot_id", lotID).
		Str("from", lot.QuantityRemaining.String()).
		Str("to", newQuantity.String()).
		Msg("lot corrected")

	lot.QuantityRemaining = newQuantity
	return lot, nil
}
