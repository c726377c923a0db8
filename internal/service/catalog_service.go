package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/stockledger/internal/cache"
	"github.com/andresuchdata/stockledger/internal/catalog"
	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type CatalogService struct {
	store repository.Store
	cache cache.InventoryCache
}

func NewCatalogService(store repository.Store, c cache.InventoryCache) *CatalogService {
	return &CatalogService{store: store, cache: orNoop(c)}
}

// CreateItem registers a new item with a zero average cost.
func (s *CatalogService) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if err := catalog.NormalizeItem(&item); err != nil {
		return nil, err
	}
	item.ID = 0
	item.Status = domain.ItemActive
	item.AverageCost = decimal.Zero

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetItemByName(ctx, item.Name); err == nil {
			return fmt.Errorf("item %q: %w", item.Name, domain.ErrDuplicateItem)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.CreateItem(ctx, &item)
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "create_item")
	log.Info().Int64("item_id", item.ID).Str("name", item.Name).Str("category", string(item.Category)).Msg("item created")
	return &item, nil
}

// UpdateItem changes the descriptive fields of an item.
func (s *CatalogService) UpdateItem(ctx context.Context, id int64, update domain.ItemUpdate) (*domain.Item, error) {
	var updated *domain.Item
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		item, err := lookupItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if update.Name != nil {
			item.Name = *update.Name
		}
		if update.Unit != nil {
			item.Unit = *update.Unit
		}
		if update.ShelfLifeDays != nil {
			item.ShelfLifeDays = *update.ShelfLifeDays
		}
		if err := catalog.NormalizeItem(item); err != nil {
			return err
		}

		if other, err := tx.GetItemByName(ctx, item.Name); err == nil && other.ID != id {
			return fmt.Errorf("item %q: %w", item.Name, domain.ErrDuplicateItem)
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("failed to update item %d: %w", id, err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "update_item")
	return updated, nil
}

// ArchiveItem soft-deletes an item. Archiving twice is a no-op.
func (s *CatalogService) ArchiveItem(ctx context.Context, id int64) (*domain.Item, error) {
	var archived *domain.Item
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		item, err := lookupItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if !item.Archived() {
			if err := tx.SetItemStatus(ctx, id, domain.ItemArchived); err != nil {
				return fmt.Errorf("failed to archive item %d: %w", id, err)
			}
			item.Status = domain.ItemArchived
		}
		archived = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "archive_item")
	log.Info().Int64("item_id", id).Msg("item archived")
	return archived, nil
}

// RetireItem permanently deletes an item that no lot and no other recipe
// references, along with its own recipe edges.
func (s *CatalogService) RetireItem(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := lookupItem(ctx, tx, id); err != nil {
			return err
		}

		lots, err := tx.CountLotsByItem(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count lots: %w", err)
		}
		if lots > 0 {
			return fmt.Errorf("item %d has %d lots, archive it instead: %w", id, lots, domain.ErrItemInUse)
		}

		uses, err := tx.CountCompositionsByInput(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count recipe uses: %w", err)
		}
		if uses > 0 {
			return fmt.Errorf("item %d is an input of %d recipes: %w", id, uses, domain.ErrItemInUse)
		}

		return tx.DeleteItem(ctx, id)
	})
	if err != nil {
		return err
	}

	invalidate(ctx, s.cache, "retire_item")
	log.Info().Int64("item_id", id).Msg("item retired")
	return nil
}

func (s *CatalogService) ListItems(ctx context.Context, filter repository.ItemFilter) ([]domain.Item, error) {
	var items []domain.Item
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		items, err = q.ListItems(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *CatalogService) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var item *domain.Item
	err := s.store.View(ctx, func(q repository.Queries) error {
		var err error
		item, err = lookupItem(ctx, q, id)
		return err
	})
	return item, err
}

// FindItemByName resolves an item by case-insensitive name.
func (s *CatalogService) FindItemByName(ctx context.Context, name string) (*domain.Item, error) {
	var item *domain.Item
	err := s.store.View(ctx, func(q repository.Queries) error {
		found, err := q.GetItemByName(ctx, strings.TrimSpace(name))
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("item %q: %w", name, domain.ErrUnknownItem)
		}
		item = found
		return err
	})
	return item, err
}

// SetRecipe replaces the whole edge set of outputID.
func (s *CatalogService) SetRecipe(ctx context.Context, outputID int64, lines []domain.RecipeLine) (*domain.Recipe, error) {
	var recipe *domain.Recipe
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		output, err := lookupItem(ctx, tx, outputID)
		if err != nil {
			return err
		}
		if output.Archived() {
			return fmt.Errorf("item %d: %w", outputID, domain.ErrItemArchived)
		}

		ids := make([]int64, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.InputItemID)
		}
		inputs, err := tx.ListItemsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load recipe inputs: %w", err)
		}
		byID := make(map[int64]domain.Item, len(inputs))
		for _, in := range inputs {
			byID[in.ID] = in
		}

		if err := catalog.ValidateRecipe(*output, byID, lines); err != nil {
			return err
		}

		existing, err := tx.ListAllCompositions(ctx)
		if err != nil {
			return fmt.Errorf("failed to load recipe graph: %w", err)
		}
		if cycle := catalog.FindCycle(existing, outputID, lines); cycle != nil {
			return &domain.RecipeError{OutputItemID: outputID, Cycle: cycle}
		}

		edges := make([]domain.Composition, 0, len(lines))
		for _, line := range lines {
			edges = append(edges, domain.Composition{
				OutputItemID:     outputID,
				InputItemID:      line.InputItemID,
				QuantityRequired: line.QuantityRequired,
			})
		}
		if err := tx.ReplaceCompositions(ctx, outputID, edges); err != nil {
			return fmt.Errorf("failed to replace recipe: %w", err)
		}

		recipe = buildRecipe(*output, edges, byID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, "set_recipe")
	log.Info().Int64("item_id", outputID).Int("inputs", len(lines)).Msg("recipe replaced")
	return recipe, nil
}

// GetRecipe returns the edges of outputID joined with input names. An item
// without a recipe yields an empty ingredient list.
func (s *CatalogService) GetRecipe(ctx context.Context, outputID int64) (*domain.Recipe, error) {
	var recipe *domain.Recipe
	err := s.store.View(ctx, func(q repository.Queries) error {
		output, err := lookupItem(ctx, q, outputID)
		if err != nil {
			return err
		}
		edges, err := q.ListCompositions(ctx, outputID)
		if err != nil {
			return fmt.Errorf("failed to load recipe: %w", err)
		}
		ids := make([]int64, 0, len(edges))
		for _, e := range edges {
			ids = append(ids, e.InputItemID)
		}
		inputs, err := q.ListItemsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load recipe inputs: %w", err)
		}
		byID := make(map[int64]domain.Item, len(inputs))
		for _, in := range inputs {
			byID[in.ID] = in
		}
		recipe = buildRecipe(*output, edges, byID)
		return nil
	})
	return recipe, err
}

func buildRecipe(output domain.Item, edges []domain.Composition, inputs map[int64]domain.Item) *domain.Recipe {
	recipe := &domain.Recipe{
		OutputItemID:   output.ID,
		OutputItemName: output.Name,
		Ingredients:    make([]domain.RecipeIngredient, 0, len(edges)),
	}
	for _, e := range edges {
		in := inputs[e.InputItemID]
		recipe.Ingredients = append(recipe.Ingredients, domain.RecipeIngredient{
			CompositionID:    e.ID,
			InputItemID:      e.InputItemID,
			InputItemName:    in.Name,
			InputCategory:    in.Category,
			QuantityRequired: e.QuantityRequired,
		})
	}
	return recipe
}
