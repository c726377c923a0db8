package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/pkg/logger"
	"github.com/shopspring/decimal"
)

type seedItem struct {
	name      string
	unit      string
	shelfLife int
	category  domain.Category
}

type seedLine struct {
	input string
	qty   string
}

var bakeryItems = []seedItem{
	{"Flour", "kg", 180, domain.CategoryRaw},
	{"Sugar", "kg", 365, domain.CategoryRaw},
	{"Butter", "kg", 30, domain.CategoryRaw},
	{"Eggs", "pcs", 21, domain.CategoryRaw},
	{"Milk", "l", 7, domain.CategoryRaw},
	{"Dough", "kg", 2, domain.CategoryIntermediate},
	{"Croissant", "pcs", 2, domain.CategoryFinished},
	{"Sponge Cake", "pcs", 3, domain.CategoryFinished},
}

var bakeryRecipes = map[string][]seedLine{
	"Dough":       {{"Flour", "0.6"}, {"Sugar", "0.1"}, {"Butter", "0.2"}, {"Eggs", "2"}},
	"Croissant":   {{"Dough", "0.08"}, {"Butter", "0.02"}},
	"Sponge Cake": {{"Flour", "0.5"}, {"Sugar", "0.3"}, {"Butter", "0.2"}, {"Eggs", "4"}, {"Milk", "0.25"}},
}

var bakeryPurchases = []struct {
	supplier string
	lines    [][3]string
}{
	{"Mill Co", [][3]string{{"Flour", "25", "1.20"}, {"Sugar", "10", "1.50"}}},
	{"Dairy Farm", [][3]string{{"Butter", "5", "8.00"}, {"Eggs", "60", "0.25"}, {"Milk", "10", "1.10"}}},
}

// seedBakery loads the sample catalog. Items and recipes are upserted by
// name; opening purchases and the first dough batch only run on an empty
// catalog.
func seedBakery(ctx context.Context, l *ledger) error {
	ids := make(map[string]int64, len(bakeryItems))
	fresh := false
	for _, si := range bakeryItems {
		item, err := l.catalog.FindItemByName(ctx, si.name)
		if errors.Is(err, domain.ErrUnknownItem) {
			item, err = l.catalog.CreateItem(ctx, domain.Item{
				Name:          si.name,
				Unit:          si.unit,
				ShelfLifeDays: si.shelfLife,
				Category:      si.category,
			})
			fresh = true
		}
		if err != nil {
			return fmt.Errorf("seed item %s: %w", si.name, err)
		}
		ids[si.name] = item.ID
	}

	for _, si := range bakeryItems {
		lines, ok := bakeryRecipes[si.name]
		if !ok {
			continue
		}
		recipe := make([]domain.RecipeLine, 0, len(lines))
		for _, ln := range lines {
			recipe = append(recipe, domain.RecipeLine{
				InputItemID:      ids[ln.input],
				QuantityRequired: decimal.RequireFromString(ln.qty),
			})
		}
		if _, err := l.catalog.SetRecipe(ctx, ids[si.name], recipe); err != nil {
			return fmt.Errorf("seed recipe %s: %w", si.name, err)
		}
	}

	if !fresh {
		logger.Log.Info().Msg("catalog already present, skipping opening stock")
		return nil
	}

	for _, p := range bakeryPurchases {
		in := domain.NewPurchase{SupplierName: p.supplier}
		for _, ln := range p.lines {
			in.Lines = append(in.Lines, domain.PurchaseLine{
				ItemID:   ids[ln[0]],
				Quantity: decimal.RequireFromString(ln[1]),
				UnitCost: decimal.RequireFromString(ln[2]),
			})
		}
		if _, err := l.inventory.ReceivePurchase(ctx, in); err != nil {
			return fmt.Errorf("seed purchase from %s: %w", p.supplier, err)
		}
	}

	result, err := l.production.Produce(ctx, domain.ProductionRequest{
		OutputItemID: ids["Dough"],
		Quantity:     decimal.NewFromInt(2),
	})
	if err != nil {
		return fmt.Errorf("seed dough batch: %w", err)
	}

	logger.Log.Info().
		Int("items", len(bakeryItems)).
		Int("purchases", len(bakeryPurchases)).
		Str("dough_unit_cost", result.UnitCost.String()).
		Msg("bakery seeded")
	return nil
}
