package service

import (
	"errors"
	"testing"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
)

func TestCreateItem(t *testing.T) {
	e := newEnv(t)

	item, err := e.catalog.CreateItem(e.ctx, domain.Item{Name: "  Butter ", Unit: "kg", Category: "RAW", ShelfLifeDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	if item.ID == 0 || item.Name != "Butter" || item.Category != domain.CategoryRaw {
		t.Errorf("unexpected item %+v", item)
	}
	if item.Status != domain.ItemActive || !item.AverageCost.IsZero() {
		t.Errorf("new item should be active at zero cost, got %s / %s", item.Status, item.AverageCost)
	}

	if _, err := e.catalog.CreateItem(e.ctx, domain.Item{Name: "butter", Unit: "kg", Category: domain.CategoryRaw}); !errors.Is(err, domain.ErrDuplicateItem) {
		t.Errorf("expected ErrDuplicateItem, got %v", err)
	}
	if _, err := e.catalog.CreateItem(e.ctx, domain.Item{Name: "Salt", Unit: "kg", Category: "spice"}); !errors.Is(err, domain.ErrInvalidItem) {
		t.Errorf("expected ErrInvalidItem, got %v", err)
	}

	found, err := e.catalog.FindItemByName(e.ctx, "BUTTER")
	if err != nil || found.ID != item.ID {
		t.Errorf("FindItemByName = %+v, %v", found, err)
	}
	if _, err := e.catalog.FindItemByName(e.ctx, "Margarine"); !errors.Is(err, domain.ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestUpdateItem(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	e.item(t, "Sugar", domain.CategoryRaw)

	name, unit, shelf := "Bread Flour", "g", 180
	got, err := e.catalog.UpdateItem(e.ctx, flour.ID, domain.ItemUpdate{Name: &name, Unit: &unit, ShelfLifeDays: &shelf})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != name || got.Unit != unit || got.ShelfLifeDays != shelf || got.Category != domain.CategoryRaw {
		t.Errorf("unexpected update result %+v", got)
	}

	clash := "sugar"
	if _, err := e.catalog.UpdateItem(e.ctx, flour.ID, domain.ItemUpdate{Name: &clash}); !errors.Is(err, domain.ErrDuplicateItem) {
		t.Errorf("expected ErrDuplicateItem, got %v", err)
	}
	if _, err := e.catalog.UpdateItem(e.ctx, 999, domain.ItemUpdate{Name: &name}); !errors.Is(err, domain.ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestArchiveAndRetire(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	dough := e.item(t, "Dough", domain.CategoryIntermediate)
	spare := e.item(t, "Spare", domain.CategoryRaw)
	e.recipe(t, dough, line(flour, "1"))
	e.buy(t, flour, "1", "2")

	if err := e.catalog.RetireItem(e.ctx, flour.ID); !errors.Is(err, domain.ErrItemInUse) {
		t.Errorf("item with lots: expected ErrItemInUse, got %v", err)
	}

	onlyInRecipe := e.item(t, "Yeast", domain.CategoryRaw)
	e.recipe(t, dough, line(flour, "1"), line(onlyInRecipe, "0.1"))
	if err := e.catalog.RetireItem(e.ctx, onlyInRecipe.ID); !errors.Is(err, domain.ErrItemInUse) {
		t.Errorf("recipe input: expected ErrItemInUse, got %v", err)
	}

	if err := e.catalog.RetireItem(e.ctx, spare.ID); err != nil {
		t.Fatalf("retire unused item: %v", err)
	}
	if _, err := e.catalog.GetItem(e.ctx, spare.ID); !errors.Is(err, domain.ErrUnknownItem) {
		t.Errorf("retired item still resolvable: %v", err)
	}

	archived, err := e.catalog.ArchiveItem(e.ctx, flour.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !archived.Archived() {
		t.Errorf("status = %s", archived.Status)
	}
	if _, err := e.catalog.ArchiveItem(e.ctx, flour.ID); err != nil {
		t.Errorf("second archive should be a no-op, got %v", err)
	}

	active, err := e.catalog.ListItems(e.ctx, repository.ItemFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range active {
		if it.ID == flour.ID {
			t.Error("archived item listed without IncludeArchived")
		}
	}
	all, err := e.catalog.ListItems(e.ctx, repository.ItemFilter{IncludeArchived: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(active)+1 {
		t.Errorf("expected archived item in full listing, got %d vs %d", len(all), len(active))
	}

	_, err = e.inventory.ReceivePurchase(e.ctx, domain.NewPurchase{
		SupplierName: "Acme",
		Lines:        []domain.PurchaseLine{{ItemID: flour.ID, Quantity: dec("1"), UnitCost: dec("1")}},
	})
	if !errors.Is(err, domain.ErrItemArchived) {
		t.Errorf("purchase of archived item: expected ErrItemArchived, got %v", err)
	}
}

func TestSetRecipe(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	dough := e.item(t, "Dough", domain.CategoryIntermediate)
	sauce := e.item(t, "Sauce", domain.CategoryIntermediate)
	pizza := e.item(t, "Pizza", domain.CategoryFinished)

	recipe, err := e.catalog.SetRecipe(e.ctx, pizza.ID, []domain.RecipeLine{line(dough, "1"), line(sauce, "0.25")})
	if err != nil {
		t.Fatal(err)
	}
	if recipe.OutputItemName != "Pizza" || len(recipe.Ingredients) != 2 {
		t.Errorf("unexpected recipe %+v", recipe)
	}

	tests := []struct {
		name   string
		output *domain.Item
		lines  []domain.RecipeLine
		want   error
	}{
		{"raw output", flour, []domain.RecipeLine{line(dough, "1")}, domain.ErrInvalidRecipe},
		{"intermediate from intermediate", dough, []domain.RecipeLine{line(sauce, "1")}, domain.ErrInvalidRecipe},
		{"self reference", pizza, []domain.RecipeLine{line(pizza, "1")}, domain.ErrInvalidRecipe},
		{"zero quantity", dough, []domain.RecipeLine{line(flour, "0")}, domain.ErrInvalidRecipe},
		{"unknown input", dough, []domain.RecipeLine{{InputItemID: 999, QuantityRequired: dec("1")}}, domain.ErrInvalidRecipe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.catalog.SetRecipe(e.ctx, tt.output.ID, tt.lines)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var re *domain.RecipeError
			if !errors.As(err, &re) || len(re.Problems) == 0 {
				t.Errorf("expected RecipeError with problems, got %v", err)
			}
		})
	}

	if _, err := e.catalog.SetRecipe(e.ctx, 999, []domain.RecipeLine{line(flour, "1")}); !errors.Is(err, domain.ErrUnknownItem) {
		t.Errorf("unknown output: expected ErrUnknownItem, got %v", err)
	}

	got, err := e.catalog.GetRecipe(e.ctx, pizza.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Ingredients) != 2 {
		t.Errorf("rejected writes changed the recipe: %+v", got)
	}

	empty, err := e.catalog.GetRecipe(e.ctx, flour.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.Ingredients) != 0 {
		t.Errorf("raw item should have no ingredients, got %d", len(empty.Ingredients))
	}

	recipe, err = e.catalog.SetRecipe(e.ctx, pizza.ID, []domain.RecipeLine{line(dough, "2")})
	if err != nil {
		t.Fatal(err)
	}
	if len(recipe.Ingredients) != 1 || !recipe.Ingredients[0].QuantityRequired.Equal(dec("2")) {
		t.Errorf("replacement recipe = %+v", recipe.Ingredients)
	}
}

func TestSetRecipeArchivedOutput(t *testing.T) {
	e := newEnv(t)
	flour := e.item(t, "Flour", domain.CategoryRaw)
	dough := e.item(t, "Dough", domain.CategoryIntermediate)
	if _, err := e.catalog.ArchiveItem(e.ctx, dough.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.catalog.SetRecipe(e.ctx, dough.ID, []domain.RecipeLine{line(flour, "1")}); !errors.Is(err, domain.ErrItemArchived) {
		t.Errorf("expected ErrItemArchived, got %v", err)
	}
}
