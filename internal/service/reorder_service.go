package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Forecaster predicts daily demand for the next days from a usage history
// ordered by day.
type Forecaster interface {
	Forecast(ctx context.Context, history []domain.UsagePoint, days int) ([]decimal.Decimal, error)
}

// MeanForecaster predicts every future day as the mean of the observed days.
type MeanForecaster struct{}

func (MeanForecaster) Forecast(ctx context.Context, history []domain.UsagePoint, days int) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, days)
	if len(history) == 0 {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out, nil
	}

	sum := decimal.Zero
	for _, p := range history {
		sum = sum.Add(p.Quantity)
	}
	mean := sum.DivRound(decimal.NewFromInt(int64(len(history))), 6)
	for i := range out {
		out[i] = mean
	}
	return out, nil
}

// minModelHistory is the shortest series handed to a non-default forecaster.
const minModelHistory = 3

type ReorderOptions struct {
	HistoryWindow time.Duration
	Concurrency   int
}

type ReorderService struct {
	store      repository.Store
	cache      cache.InventoryCache
	forecaster Forecaster
	opts       ReorderOptions
	now        Clock
}

func NewReorderService(store repository.Store, c cache.InventoryCache, f Forecaster, opts ReorderOptions, now Clock) *ReorderService {
	if f == nil {
		f = MeanForecaster{}
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 90 * 24 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &ReorderService{store: store, cache: orNoop(c), forecaster: f, opts: opts, now: orNow(now)}
}

type usageSnapshot struct {
	item    domain.Item
	stock   decimal.Decimal
	history []domain.UsagePoint
}

// Recommendations lists active items whose forecast demand over days exceeds
// current stock by more than threshold, largest gap first.
func (s *ReorderService) Recommendations(ctx context.Context, days int, threshold decimal.Decimal) ([]domain.ReorderRecommendation, error) {
	if days <= 0 {
		return nil, fmt.Errorf("forecast days %d: %w", days, domain.ErrInvalidQuantity)
	}
	gen, cacheable := cacheGeneration(ctx, s.cache, "reorder")
	if cacheable {
		if cached, ok, err := s.cache.GetRecommendations(ctx, gen, days, threshold); err != nil {
			log.Warn().Err(err).Msg("reorder cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	snapshots, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.ReorderRecommendation, len(snapshots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, snap := range snapshots {
		g.Go(func() error {
			rec, err := s.evaluate(gctx, snap, days, threshold)
			if err != nil {
				return fmt.Errorf("forecast for item %d: %w", snap.item.ID, err)
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recs := make([]domain.ReorderRecommendation, 0, len(results))
	for _, r := range results {
		if r != nil {
			recs = append(recs, *r)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Gap.GreaterThan(recs[j].Gap) })

	if cacheable {
		if err := s.cache.SetRecommendations(ctx, gen, days, threshold, recs); err != nil {
			log.Warn().Err(err).Msg("reorder cache write failed")
		}
	}
	return recs, nil
}

// snapshot reads everything the advisor needs in one consistent view.
func (s *ReorderService) snapshot(ctx context.Context) ([]usageSnapshot, error) {
	since := s.now().Add(-s.opts.HistoryWindow)
	var snaps []usageSnapshot

	err := s.store.View(ctx, func(q repository.Queries) error {
		ids, err := q.ConsumedItemIDs(ctx, since)
		if err != nil {
			return err
		}
		items, err := q.ListItemsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Archived() {
				continue
			}
			history, err := q.DailyConsumption(ctx, item.ID, since)
			if err != nil {
				return err
			}
			stock, err := q.SumActiveStock(ctx, item.ID)
			if err != nil {
				return err
			}
			snaps = append(snaps, usageSnapshot{item: item, stock: stock, history: history})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read consumption history: %w", err)
	}
	return snaps, nil
}

func (s *ReorderService) evaluate(ctx context.Context, snap usageSnapshot, days int, threshold decimal.Decimal) (*domain.ReorderRecommendation, error) {
	var f Forecaster = s.forecaster
	if len(snap.history) < minModelHistory {
		f = MeanForecaster{}
	}

	forecast, err := f.Forecast(ctx, snap.history, days)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Err(err).Int64("item_id", snap.item.ID).Msg("forecast failed, using history mean")
		if forecast, err = (MeanForecaster{}).Forecast(ctx, snap.history, days); err != nil {
			return nil, err
		}
	}
	// negative days would offset real demand
	demand := decimal.Zero
	for _, d := range forecast {
		demand = demand.Add(decimal.Max(d, decimal.Zero))
	}

	gap := demand.Sub(snap.stock)
	if !gap.GreaterThan(threshold) {
		return nil, nil
	}

	return &domain.ReorderRecommendation{
		ItemID:          snap.item.ID,
		ItemName:        snap.item.Name,
		Unit:            snap.item.Unit,
		Category:        snap.item.Category,
		CurrentStock:    snap.stock,
		PredictedDemand: demand,
		Gap:             gap,
		Message: fmt.Sprintf("Order at least %s %s of %s to cover the next %d days",
			gap.Ceil().String(), snap.item.Unit, snap.item.Name, days),
	}, nil
}
