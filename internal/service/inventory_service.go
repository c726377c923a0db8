package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/costing"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/ledger"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	wasteWindow              = 7 * 24 * time.Hour
	defaultRecentAllocations = 50
)

type InventoryService struct {
	store    repository.Store
	cache    cache.InventoryCache
	now      Clock
	lowStock decimal.Decimal
}

func NewInventoryService(store repository.Store, c cache.InventoryCache, lowStockThreshold decimal.Decimal, now Clock) *InventoryService {
	return &InventoryService{
		store:    store,
		cache:    orNoop(c),
		now:      orNow(now),
		lowStock: lowStockThreshold,
	}
}

// ReceivePurchase books a supplier invoice. Each line first folds into the
// item's moving average and then becomes a lot, all in one transaction.
func (s *InventoryService) ReceivePurchase(ctx context.Context, in domain.NewPurchase) (*domain.Purchase, error) {
	in.SupplierName = strings.TrimSpace(in.SupplierName)
	if in.SupplierName == "" {
		return nil, fmt.Errorf("supplier name is required: %w", domain.ErrInvalidPurchase)
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("purchase has no lines: %w", domain.ErrInvalidPurchase)
	}

	total := decimal.Zero
	for i, line := range in.Lines {
		if !line.Quantity.IsPositive() {
			return nil, fmt.Errorf("line %d quantity %s: %w", i+1, line.Quantity, domain.ErrInvalidQuantity)
		}
		if line.UnitCost.IsNegative() {
			return nil, fmt.Errorf("line %d unit cost %s: %w", i+1, line.UnitCost, domain.ErrInvalidPurchase)
		}
		total = total.Add(line.Quantity.Mul(line.UnitCost))
	}
	if in.TotalCost.IsZero() {
		in.TotalCost = total
	}

	now := s.now()
	purchase := domain.Purchase{
		SupplierName: in.SupplierName,
		TotalCost:    in.TotalCost,
		InvoiceDate:  in.InvoiceDate,
		CreatedAt:    now,
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertPurchase(ctx, &purchase); err != nil {
			return fmt.Errorf("failed to insert purchase: %w", err)
		}

		// lock in id order so invoices sharing items cannot deadlock
		for _, id := range lineItemIDs(in.Lines) {
			if _, err := lookupItem(ctx, tx, id); err != nil {
				return err
			}
		}

		purchase.Lots = make([]domain.Lot, 0, len(in.Lines))
		for _, line := range in.Lines {
			item, err := lookupItem(ctx, tx, line.ItemID)
			if err != nil {
				return err
			}
			if item.Archived() {
				return fmt.Errorf("item %d: %w", item.ID, domain.ErrItemArchived)
			}

			if _, err := costing.UpdateMovingAverage(ctx, tx, item.ID, line.Quantity, line.UnitCost); err != nil {
				return err
			}

			lot := domain.Lot{
				ItemID:            item.ID,
				QuantityRemaining: line.Quantity,
				QuantityInitial:   line.Quantity,
				UnitCost:          line.UnitCost,
				ExpiresAt:         item.ExpiryFrom(now),
				Origin:            domain.OriginPurchase,
				PurchaseID:        &purchase.ID,
				CreatedAt:         now,
			}
			if err := tx.InsertLot(ctx, &lot); err != nil {
				return fmt.Errorf("failed to insert lot for item %d: %w", item.ID, err)
			}
			purchase.Lots = append(purchase.Lots, lot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "receive_purchase")
	log.Info().
		Int64("purchase_id", purchase.ID).
		Str("supplier", purchase.SupplierName).
		Int("lots", len(purchase.Lots)).
		Msg("purchase received")
	return &purchase, nil
}

// VoidPurchase cancels an invoice whose lots were never used in production.
func (s *InventoryService) VoidPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	var voided *domain.Purchase
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPurchase(ctx, id)
		if err != nil {
			return err
		}
		if p.VoidedAt != nil {
			return fmt.Errorf("purchase %d: %w", id, domain.ErrPurchaseVoided)
		}

		lotIDs := make([]int64, 0, len(p.Lots))
		for _, lot := range p.Lots {
			lotIDs = append(lotIDs, lot.ID)
		}
		used, err := tx.CountAllocationsBySource(ctx, lotIDs)
		if err != nil {
			return fmt.Errorf("failed to check lot usage: %w", err)
		}
		if used > 0 {
			return fmt.Errorf("purchase %d lots feed %d allocations: %w", id, used, domain.ErrAlreadyConsumedDownstream)
		}

		for i := range p.Lots {
			if err := tx.SetLotRemaining(ctx, p.Lots[i].ID, decimal.Zero); err != nil {
				return fmt.Errorf("failed to void lot %d: %w", p.Lots[i].ID, err)
			}
			p.Lots[i].QuantityRemaining = decimal.Zero
		}

		at := s.now()
		if err := tx.MarkPurchaseVoided(ctx, id, at); err != nil {
			return fmt.Errorf("failed to void purchase %d: %w", id, err)
		}
		p.VoidedAt = &at
		voided = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "void_purchase")
	log.Info().Int64("purchase_id", id).Msg("purchase voided")
	return voided, nil
}

func (s *InventoryService) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	var p *domain.Purchase
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		p, err = q.GetPurchase(ctx, id)
		return err
	})
	return p, err
}

func (s *InventoryService) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		out, err = q.ListPurchases(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return out, nil
}

// RecordWaste removes quantity from a lot and books its cost at the lot's
// unit cost.
func (s *InventoryService) RecordWaste(ctx context.Context, lotID int64, quantity decimal.Decimal, reason string) (*domain.WasteEntry, error) {
	r, ok := domain.ParseWasteReason(reason)
	if !ok {
		return nil, fmt.Errorf("%q: %w", reason, domain.ErrInvalidReason)
	}

	var entry domain.WasteEntry
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		lot, err := ledger.Withdraw(ctx, tx, lotID, quantity)
		if err != nil {
			return err
		}
		entry = domain.WasteEntry{
			LotID:     lotID,
			Quantity:  quantity,
			Reason:    r,
			CostLoss:  quantity.Mul(lot.UnitCost),
			CreatedAt: s.now(),
		}
		if err := tx.InsertWaste(ctx, &entry); err != nil {
			return fmt.Errorf("failed to record waste: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "record_waste")
	log.Info().
		Int64("lot_id", lotID).
		Str("quantity", quantity.String()).
		Str("reason", string(r)).
		Str("cost_loss", entry.CostLoss.String()).
		Msg("waste recorded")
	return &entry, nil
}

// CorrectLot overwrites a lot's remaining quantity after a stock take.
func (s *InventoryService) CorrectLot(ctx context.Context, lotID int64, quantity decimal.Decimal) (*domain.Lot, error) {
	var lot *domain.Lot
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		lot, err = ledger.Correct(ctx, tx, lotID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "correct_lot")
	return lot, nil
}

// ListLots returns the live lots, of one item when itemID is set, in FIFO order.
func (s *InventoryService) ListLots(ctx context.Context, itemID int64) ([]domain.Lot, error) {
	var lots []domain.Lot
	err := s.store.View(ctx, func(q repository.Queries) error {
		if itemID != 0 {
			if _, err := lookupItem(ctx, q, itemID); err != nil {
				return err
			}
			var err error
			lots, err = ledger.OrderedLots(ctx, q, itemID)
			return err
		}
		var err error
		lots, err = q.ListLots(ctx, repository.LotFilter{ActiveOnly: true})
		return err
	})
	return lots, err
}

func (s *InventoryService) GetLot(ctx context.Context, id int64) (*domain.Lot, error) {
	var lot *domain.Lot
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		lot, err = q.GetLot(ctx, id)
		return err
	})
	return lot, err
}

// ListExpiringLots returns live lots that expire before now+within.
func (s *InventoryService) ListExpiringLots(ctx context.Context, within time.Duration) ([]domain.Lot, error) {
	cutoff := s.now().Add(within)
	var lots []domain.Lot
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		lots, err = q.ListLots(ctx, repository.LotFilter{ActiveOnly: true, ExpiresBefore: &cutoff})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring lots: %w", err)
	}
	return lots, nil
}

// InventorySummary is the total live stock per active item.
func (s *InventoryService) InventorySummary(ctx context.Context) ([]domain.StockSummary, error) {
	gen, cacheable := cacheGeneration(ctx, s.cache, "summary")
	if cacheable {
		if cached, ok, err := s.cache.GetSummary(ctx, gen); err != nil {
			log.Warn().Err(err).Msg("inventory summary cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	var summary []domain.StockSummary
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		summary, err = q.StockSummary(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory summary: %w", err)
	}

	if cacheable {
		if err := s.cache.SetSummary(ctx, gen, summary); err != nil {
			log.Warn().Err(err).Msg("inventory summary cache write failed")
		}
	}
	return summary, nil
}

// DashboardStats computes the headline numbers for today.
func (s *InventoryService) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	now := s.now()
	gen, cacheable := cacheGeneration(ctx, s.cache, "stats")
	if cacheable {
		if cached, ok, err := s.cache.GetStats(ctx, gen, now); err != nil {
			log.Warn().Err(err).Msg("dashboard stats cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats := &domain.DashboardStats{
		TodayProductionCost: decimal.Zero,
		WasteValueWeek:      decimal.Zero,
		GeneratedAt:         now,
	}

	err := s.store.View(ctx, func(q repository.Queries) error {
		items, err := q.ListItems(ctx, repository.ItemFilter{})
		if err != nil {
			return err
		}
		summary, err := q.StockSummary(ctx)
		if err != nil {
			return err
		}
		stock := make(map[int64]decimal.Decimal, len(summary))
		for _, row := range summary {
			stock[row.ItemID] = row.TotalStock
		}
		for _, item := range items {
			if stock[item.ID].LessThan(s.lowStock) {
				stats.LowStockItems++
			}
		}

		allocations, err := q.ListAllocationViews(ctx, midnight, 0)
		if err != nil {
			return err
		}
		for _, a := range allocations {
			stats.TodayProductionCost = stats.TodayProductionCost.Add(a.Quantity.Mul(a.SourceUnitCost))
		}

		waste, err := q.ListWaste(ctx, 0, now.Add(-wasteWindow))
		if err != nil {
			return err
		}
		for _, w := range waste {
			stats.WasteValueWeek = stats.WasteValueWeek.Add(w.CostLoss)
		}

		purchases, err := q.ListPurchases(ctx)
		if err != nil {
			return err
		}
		for _, p := range purchases {
			if p.VoidedAt == nil {
				stats.PurchaseCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}

	if cacheable {
		if err := s.cache.SetStats(ctx, gen, now, stats); err != nil {
			log.Warn().Err(err).Msg("dashboard stats cache write failed")
		}
	}
	return stats, nil
}

// RecentAllocations returns the newest allocation entries first.
func (s *InventoryService) RecentAllocations(ctx context.Context, limit int) ([]domain.AllocationView, error) {
	if limit <= 0 {
		limit = defaultRecentAllocations
	}
	var views []domain.AllocationView
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		views, err = q.ListAllocationViews(ctx, time.Time{}, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	return views, nil
}

// ListWaste returns waste entries, of one lot when lotID is set.
func (s *InventoryService) ListWaste(ctx context.Context, lotID int64) ([]domain.WasteEntry, error) {
	var entries []domain.WasteEntry
	err := s.store.View(ctx, func(q repository.Queries) error {
		if lotID != 0 {
			if _, err := q.GetLot(ctx, lotID); err != nil {
				return err
			}
		}
		var err error
		entries, err = q.ListWaste(ctx, lotID, time.Time{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func lineItemIDs(lines []domain.PurchaseLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
