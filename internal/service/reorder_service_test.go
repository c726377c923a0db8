package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/shopspring/decimal"
)

type stubForecaster struct {
	mu      sync.Mutex
	perDay  decimal.Decimal
	lengths []int
}

func (f *stubForecaster) Forecast(ctx context.Context, history []domain.UsagePoint, days int) ([]decimal.Decimal, error) {
	f.mu.Lock()
	f.lengths = append(f.lengths, len(history))
	f.mu.Unlock()

	out := make([]decimal.Decimal, days)
	for i := range out {
		out[i] = f.perDay
	}
	return out, nil
}

type failingForecaster struct{}

func (failingForecaster) Forecast(ctx context.Context, history []domain.UsagePoint, days int) ([]decimal.Decimal, error) {
	return nil, errors.New("model unavailable")
}

func (e *env) reorder(f Forecaster) *ReorderService {
	return NewReorderService(e.store, nil, f, ReorderOptions{Concurrency: 2}, e.clock.now)
}

func TestMeanForecaster(t *testing.T) {
	history := []domain.UsagePoint{{Quantity: dec("2")}, {Quantity: dec("4")}}
	got, err := MeanForecaster{}.Forecast(context.Background(), history, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, v := range got {
		if !v.Equal(dec("3")) {
			t.Errorf("forecast = %s, want 3", v)
		}
	}

	empty, _ := MeanForecaster{}.Forecast(context.Background(), nil, 2)
	if len(empty) != 2 || !empty[0].IsZero() {
		t.Errorf("empty history forecast = %v", empty)
	}
}

func TestRecommendations(t *testing.T) {
	e := newEnv(t)
	b := newBakery(t, e)
	if _, err := e.production.Produce(e.ctx, domain.ProductionRequest{OutputItemID: b.dough.ID, Quantity: dec("4")}); err != nil {
		t.Fatal(err)
	}

	recs, err := e.reorder(nil).Recommendations(e.ctx, 7, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected flour and sugar, got %+v", recs)
	}

	// flour: 4/day for 7 days against 4 in stock; sugar: 2/day against 3
	flour, sugar := recs[0], recs[1]
	if flour.ItemID != b.flour.ID || !flour.Gap.Equal(dec("24")) || !flour.CurrentStock.Equal(dec("4")) {
		t.Errorf("unexpected flour recommendation %+v", flour)
	}
	if sugar.ItemID != b.sugar.ID || !sugar.Gap.Equal(dec("11")) || !sugar.PredictedDemand.Equal(dec("14")) {
		t.Errorf("unexpected sugar recommendation %+v", sugar)
	}
	if flour.Message != "Order at least 24 kg of Flour to cover the next 7 days" {
		t.Errorf("message = %q", flour.Message)
	}

	recs, err = e.reorder(nil).Recommendations(e.ctx, 7, dec("20"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ItemID != b.flour.ID {
		t.Errorf("threshold 20 should leave only flour, got %+v", recs)
	}

	if _, err := e.catalog.ArchiveItem(e.ctx, b.flour.ID); err != nil {
		t.Fatal(err)
	}
	recs, err = e.reorder(nil).Recommendations(e.ctx, 7, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ItemID != b.sugar.ID {
		t.Errorf("archived flour should be skipped, got %+v", recs)
	}

	if _, err := e.reorder(nil).Recommendations(e.ctx, 0, decimal.Zero); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestRecommendationsUseModelWithEnoughHistory(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	salt := e.item(t, "Salt", domain.CategoryRaw)
	bread := e.item(t, "Bread", domain.CategoryFinished)
	pretzel := e.item(t, "Pretzel", domain.CategoryFinished)
	e.recipe(t, bread, line(flour, "1"))
	e.recipe(t, pretzel, line(salt, "1"))
	e.buy(t, flour, "1", "30")
	e.buy(t, salt, "1", "30")

	for day := 0; day < 3; day++ {
		if _, err := e.production.Produce(e.ctx, domain.ProductionRequest{OutputItemID: bread.ID, Quantity: dec("2")}); err != nil {
			t.Fatal(err)
		}
		e.clock.t = e.clock.t.Add(24 * time.Hour)
	}
	if _, err := e.production.Produce(e.ctx, domain.ProductionRequest{OutputItemID: pretzel.ID, Quantity: dec("1")}); err != nil {
		t.Fatal(err)
	}

	f := &stubForecaster{perDay: dec("10")}
	recs, err := e.reorder(f).Recommendations(e.ctx, 5, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.lengths) != 1 || f.lengths[0] != 3 {
		t.Errorf("model should only see the 3-day flour series, saw %v", f.lengths)
	}
	// flour: 50 forecast against 24 left; salt: mean 1 x 5 against 29 left
	if len(recs) != 1 || recs[0].ItemID != flour.ID || !recs[0].Gap.Equal(dec("26")) {
		t.Errorf("unexpected recommendations %+v", recs)
	}
}

func TestRecommendationsForecastError(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	bread := e.item(t, "Bread", domain.CategoryFinished)
	e.recipe(t, bread, line(flour, "1"))
	e.buy(t, flour, "1", "30")
	for day := 0; day < 3; day++ {
		if _, err := e.production.Produce(e.ctx, domain.ProductionRequest{OutputItemID: bread.ID, Quantity: dec("1")}); err != nil {
			t.Fatal(err)
		}
		e.clock.t = e.clock.t.Add(24 * time.Hour)
	}

	// mean of three 1 kg days over 7 days against 27 left
	recs, err := e.reorder(failingForecaster{}).Recommendations(e.ctx, 7, dec("-1000"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || !recs[0].PredictedDemand.Equal(dec("7")) || !recs[0].Gap.Equal(dec("-20")) {
		t.Errorf("expected a mean-based recommendation, got %+v", recs)
	}
}

type seriesForecaster []decimal.Decimal

func (f seriesForecaster) Forecast(ctx context.Context, history []domain.UsagePoint, days int) ([]decimal.Decimal, error) {
	return f, nil
}

func TestRecommendationsClampNegativeForecast(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	bread := e.item(t, "Bread", domain.CategoryFinished)
	e.recipe(t, bread, line(flour, "1"))
	e.buy(t, flour, "1", "30")
	for day := 0; day < 3; day++ {
		if _, err := e.production.Produce(e.ctx, domain.ProductionRequest{OutputItemID: bread.ID, Quantity: dec("1")}); err != nil {
			t.Fatal(err)
		}
		e.clock.t = e.clock.t.Add(24 * time.Hour)
	}

	f := seriesForecaster{dec("-100")}
	for i := 0; i < 6; i++ {
		f = append(f, dec("10"))
	}
	recs, err := e.reorder(f).Recommendations(e.ctx, 7, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	// 60 forecast against 27 left
	if len(recs) != 1 || !recs[0].PredictedDemand.Equal(dec("60")) || !recs[0].Gap.Equal(dec("33")) {
		t.Errorf("unexpected recommendations %+v", recs)
	}
}
