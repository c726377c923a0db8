package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/costing"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/ledger"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProductionService turns input lots into output lots and back.
type ProductionService struct {
	store repository.Store
	cache cache.InventoryCache
	now   Clock
}

func NewProductionService(store repository.Store, c cache.InventoryCache, now Clock) *ProductionService {
	return &ProductionService{store: store, cache: orNoop(c), now: orNow(now)}
}

// Produce makes req.Quantity units of req.OutputItemID. Every input is
// checked before anything is written; the output lot, the depletions and the
// allocation entries then commit together or not at all.
func (s *ProductionService) Produce(ctx context.Context, req domain.ProductionRequest) (*domain.ProductionResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("produce %s: %w", req.Quantity, domain.ErrInvalidQuantity)
	}

	var result *domain.ProductionResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		output, err := lookupItem(ctx, tx, req.OutputItemID)
		if err != nil {
			return err
		}
		if output.Archived() {
			return fmt.Errorf("item %d: %w", output.ID, domain.ErrItemArchived)
		}

		reqs, err := s.requirements(ctx, tx, output.ID, req.Quantity, req.PinnedLots)
		if err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, tx, reqs); err != nil {
			return err
		}

		graph, err := costing.LoadGraph(ctx, tx)
		if err != nil {
			return err
		}
		unitCost := graph.Rollup(output.ID).Round(costing.Precision)

		now := s.now()
		lot := domain.Lot{
			ItemID:            output.ID,
			QuantityRemaining: req.Quantity,
			QuantityInitial:   req.Quantity,
			UnitCost:          unitCost,
			ExpiresAt:         output.ExpiryFrom(now),
			Origin:            domain.OriginProduction,
			CreatedAt:         now,
		}
		if err := tx.InsertLot(ctx, &lot); err != nil {
			return fmt.Errorf("failed to insert output lot: %w", err)
		}

		allocations := make([]domain.Allocation, 0, len(reqs))
		for _, r := range reqs {
			if r.PinnedLotID != nil {
				alloc, err := ledger.DepletePinned(ctx, tx, r.InputItemID, r.Quantity, *r.PinnedLotID, lot.ID)
				if err != nil {
					return err
				}
				allocations = append(allocations, alloc)
				continue
			}
			allocs, err := ledger.DepleteFIFO(ctx, tx, r.InputItemID, r.Quantity, lot.ID)
			if err != nil {
				return err
			}
			allocations = append(allocations, allocs...)
		}

		if err := tx.SetItemAverageCost(ctx, output.ID, unitCost); err != nil {
			return fmt.Errorf("failed to stamp cost on item %d: %w", output.ID, err)
		}

		result = &domain.ProductionResult{
			OutputLotID:      lot.ID,
			OutputItemID:     output.ID,
			QuantityProduced: req.Quantity,
			UnitCost:         unitCost,
			Allocations:      allocations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "produce")
	log.Info().
		Int64("item_id", result.OutputItemID).
		Int64("lot_id", result.OutputLotID).
		Str("quantity", result.QuantityProduced.String()).
		Str("unit_cost", result.UnitCost.String()).
		Int("allocations", len(result.Allocations)).
		Msg("production committed")
	return result, nil
}

// requirements resolves the recipe of outputID into per-input quantities in
// recipe order. Pins for items outside the recipe are rejected.
func (s *ProductionService) requirements(ctx context.Context, q repository.Queries, outputID int64, quantity decimal.Decimal, pins map[int64]int64) ([]domain.Requirement, error) {
	edges, err := q.ListCompositions(ctx, outputID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe of item %d: %w", outputID, err)
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("item %d: %w", outputID, domain.ErrNoRecipe)
	}

	inRecipe := make(map[int64]bool, len(edges))
	reqs := make([]domain.Requirement, 0, len(edges))
	for _, e := range edges {
		inRecipe[e.InputItemID] = true
		r := domain.Requirement{
			InputItemID: e.InputItemID,
			PerUnit:     e.QuantityRequired,
			Quantity:    e.QuantityRequired.Mul(quantity),
		}
		if lotID, ok := pins[e.InputItemID]; ok {
			r.PinnedLotID = &lotID
		}
		reqs = append(reqs, r)
	}

	for itemID, lotID := range pins {
		if !inRecipe[itemID] {
			return nil, fmt.Errorf("lot %d pinned for item %d which is not an input: %w", lotID, itemID, domain.ErrUnknownPinnedLot)
		}
	}
	return reqs, nil
}

// checkAvailability is read-only. Inside Produce it reads through the tx, so
// the lots it counts stay locked until depletion. The first short input is
// reported with the quantity that could be made from what it has.
func (s *ProductionService) checkAvailability(ctx context.Context, q repository.Queries, reqs []domain.Requirement) error {
	names, err := itemNames(ctx, q, reqs)
	if err != nil {
		return err
	}

	for _, r := range reqs {
		if r.PinnedLotID != nil {
			lot, err := q.GetLot(ctx, *r.PinnedLotID)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("lot %d: %w", *r.PinnedLotID, domain.ErrUnknownPinnedLot)
			}
			if err != nil {
				return fmt.Errorf("failed to load pinned lot %d: %w", *r.PinnedLotID, err)
			}
			if lot.ItemID != r.InputItemID {
				return fmt.Errorf("lot %d holds item %d, not %d: %w", lot.ID, lot.ItemID, r.InputItemID, domain.ErrUnknownPinnedLot)
			}
			if lot.QuantityRemaining.LessThan(r.Quantity) {
				return &domain.ShortageError{
					ItemID:        r.InputItemID,
					ItemName:      names[r.InputItemID],
					LotID:         &lot.ID,
					Needed:        r.Quantity,
					Available:     lot.QuantityRemaining,
					MaxProducible: domain.MaxProducible(lot.QuantityRemaining, r.PerUnit),
				}
			}
			continue
		}

		stock, err := ledger.LiveStock(ctx, q, r.InputItemID)
		if err != nil {
			return err
		}
		if stock.LessThan(r.Quantity) {
			return &domain.ShortageError{
				ItemID:        r.InputItemID,
				ItemName:      names[r.InputItemID],
				Needed:        r.Quantity,
				Available:     stock,
				MaxProducible: domain.MaxProducible(stock, r.PerUnit),
			}
		}
	}
	return nil
}

// CheckAvailability answers whether quantity units of outputID can be made
// now and how many could be at most. A zero quantity means one.
func (s *ProductionService) CheckAvailability(ctx context.Context, outputID int64, quantity decimal.Decimal) (*domain.Availability, error) {
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	if quantity.IsNegative() {
		return nil, fmt.Errorf("check %s: %w", quantity, domain.ErrInvalidQuantity)
	}

	var out *domain.Availability
	err := s.store.View(ctx, func(q repository.Queries) error {
		if _, err := lookupItem(ctx, q, outputID); err != nil {
			return err
		}
		reqs, err := s.requirements(ctx, q, outputID, quantity, nil)
		if err != nil {
			return err
		}
		names, err := itemNames(ctx, q, reqs)
		if err != nil {
			return err
		}

		out = &domain.Availability{
			OutputItemID: outputID,
			Quantity:     quantity,
			Missing:      []domain.MissingInput{},
		}
		for i, r := range reqs {
			stock, err := ledger.TotalStock(ctx, q, r.InputItemID)
			if err != nil {
				return err
			}
			most := domain.MaxProducible(stock, r.PerUnit)
			if i == 0 || most < out.MaxProducible {
				out.MaxProducible = most
			}
			if stock.LessThan(r.Quantity) {
				out.Missing = append(out.Missing, domain.MissingInput{
					ItemID:    r.InputItemID,
					ItemName:  names[r.InputItemID],
					Needed:    r.Quantity,
					Available: stock,
				})
			}
		}
		out.Available = len(out.Missing) == 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReverseByAllocation undoes the production run that allocation belongs to.
func (s *ProductionService) ReverseByAllocation(ctx context.Context, allocationID int64) (*domain.Reversal, error) {
	var rev *domain.Reversal
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		alloc, err := tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		rev, err = s.reverse(ctx, tx, alloc.OutputLotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.reversed(ctx, rev)
	return rev, nil
}

// ReverseByOutputLot undoes the production run that created lotID.
func (s *ProductionService) ReverseByOutputLot(ctx context.Context, lotID int64) (*domain.Reversal, error) {
	var rev *domain.Reversal
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		rev, err = s.reverse(ctx, tx, lotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.reversed(ctx, rev)
	return rev, nil
}

func (s *ProductionService) reverse(ctx context.Context, tx repository.Tx, outputLotID int64) (*domain.Reversal, error) {
	output, err := tx.GetLot(ctx, outputLotID)
	if err != nil {
		return nil, err
	}
	allocations, err := tx.ListAllocationsByOutput(ctx, outputLotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations of lot %d: %w", outputLotID, err)
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("no production run created lot %d: %w", outputLotID, domain.ErrNotFound)
	}

	downstream, err := tx.CountAllocationsBySource(ctx, []int64{outputLotID})
	if err != nil {
		return nil, fmt.Errorf("failed to check downstream use of lot %d: %w", outputLotID, err)
	}
	if downstream > 0 {
		return nil, fmt.Errorf("lot %d feeds %d later allocations: %w", outputLotID, downstream, domain.ErrAlreadyConsumedDownstream)
	}

	for _, a := range allocations {
		if err := ledger.Restore(ctx, tx, a.SourceLotID, a.Quantity); err != nil {
			return nil, err
		}
	}
	if err := tx.SetLotRemaining(ctx, outputLotID, decimal.Zero); err != nil {
		return nil, fmt.Errorf("failed to void lot %d: %w", outputLotID, err)
	}
	if err := tx.DeleteAllocationsByOutput(ctx, outputLotID); err != nil {
		return nil, fmt.Errorf("failed to delete allocations of lot %d: %w", outputLotID, err)
	}

	return &domain.Reversal{
		OutputLotID:  outputLotID,
		OutputItemID: output.ItemID,
		Restored:     allocations,
	}, nil
}

func (s *ProductionService) reversed(ctx context.Context, rev *domain.Reversal) {
	invalidate(ctx, s.cache, "reverse_production")
	log.Info().
		Int64("lot_id", rev.OutputLotID).
		Int64("item_id", rev.OutputItemID).
		Int("restored", len(rev.Restored)).
		Msg("production reversed")
}

// RecipeCost is the rollup unit cost of itemID on the committed graph.
func (s *ProductionService) RecipeCost(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := s.store.View(ctx, func(q repository.Queries) error {
		if _, err := lookupItem(ctx, q, itemID); err != nil {
			return err
		}
		graph, err := costing.LoadGraph(ctx, q)
		if err != nil {
			return err
		}
		cost = graph.Rollup(itemID).Round(costing.Precision)
		return nil
	})
	return cost, err
}

// UpdateMovingAverage folds an arrival into the item's average without
// creating a lot.
func (s *ProductionService) UpdateMovingAverage(ctx context.Context, itemID int64, quantity, unitCost decimal.Decimal) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		avg, err = costing.UpdateMovingAverage(ctx, tx, itemID, quantity, unitCost)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	invalidate(ctx, s.cache, "update_moving_average")
	return avg, nil
}

func itemNames(ctx context.Context, q repository.Queries, reqs []domain.Requirement) (map[int64]string, error) {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.InputItemID)
	}
	items, err := q.ListItemsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load input items: %w", err)
	}
	names := make(map[int64]string, len(items))
	for _, item := range items {
		names[item.ID] = item.Name
	}
	return names, nil
}
