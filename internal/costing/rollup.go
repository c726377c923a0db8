package costing

import (
	"context"
	"fmt"
	"maps"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/shopspring/decimal"
)

// Graph is an in-memory snapshot of the recipe graph and item averages.
type Graph struct {
	edges map[int64][]domain.Composition
	costs map[int64]decimal.Decimal
}

// NewGraph builds a graph from items and composition edges.
func NewGraph(items []domain.Item, edges []domain.Composition) *Graph {
	g := &Graph{
		edges: make(map[int64][]domain.Composition),
		costs: make(map[int64]decimal.Decimal, len(items)),
	}
	for _, item := range items {
		g.costs[item.ID] = item.AverageCost
	}
	for _, e := range edges {
		g.edges[e.OutputItemID] = append(g.edges[e.OutputItemID], e)
	}
	return g
}

// LoadGraph snapshots every item and edge visible to q.
func LoadGraph(ctx context.Context, q repository.Queries) (*Graph, error) {
	items, err := q.ListItems(ctx, repository.ItemFilter{IncludeArchived: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	edges, err := q.ListAllCompositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load compositions: %w", err)
	}
	return NewGraph(items, edges), nil
}

// HasRecipe reports whether itemID has composition edges.
func (g *Graph) HasRecipe(itemID int64) bool {
	return len(g.edges[itemID]) > 0
}

// Inputs returns the direct edges of itemID.
func (g *Graph) Inputs(itemID int64) []domain.Composition {
	return g.edges[itemID]
}

// Rollup returns the unit cost of itemID: its average cost when it has no
// recipe, otherwise the sum of each input's rollup times the quantity required.
func (g *Graph) Rollup(itemID int64) decimal.Decimal {
	return g.rollup(itemID, map[int64]struct{}{})
}

// rollup owns visited for its call path only; siblings each get a copy, so a
// shared sub-recipe reached twice is costed twice while a back edge costs 0.
func (g *Graph) rollup(itemID int64, visited map[int64]struct{}) decimal.Decimal {
	if _, seen := visited[itemID]; seen {
		return decimal.Zero
	}
	visited[itemID] = struct{}{}

	edges := g.edges[itemID]
	if len(edges) == 0 {
		return g.costs[itemID]
	}

	total := decimal.Zero
	for _, e := range edges {
		sub := g.rollup(e.InputItemID, maps.Clone(visited))
		total = total.Add(sub.Mul(e.QuantityRequired))
	}
	return total
}
