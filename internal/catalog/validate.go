// Package catalog holds the write-time rules for items and recipes.
package catalog

import (
	"fmt"
	"strings"

	"github.com/andresuchdata/stockledger/internal/domain"
)

// NormalizeItem trims descriptive fields and checks the item is storable.
func NormalizeItem(item *domain.Item) error {
	item.Name = strings.TrimSpace(item.Name)
	item.Unit = strings.TrimSpace(item.Unit)

	var problems []string
	if item.Name == "" {
		problems = append(problems, "name is required")
	}
	if item.ShelfLifeDays < 0 {
		problems = append(problems, "shelf life must not be negative")
	}
	if cat, ok := domain.ParseCategory(string(item.Category)); ok {
		item.Category = cat
	} else {
		problems = append(problems, fmt.Sprintf("unknown category %q", item.Category))
	}
	if item.AverageCost.IsNegative() {
		problems = append(problems, "average cost must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), domain.ErrInvalidItem)
	}
	return nil
}

// ValidateRecipe checks a proposed edge set for output against the category
// rules. inputs must hold every referenced input item that exists.
func ValidateRecipe(output domain.Item, inputs map[int64]domain.Item, lines []domain.RecipeLine) error {
	var problems []string

	if !output.Category.Composable() && len(lines) > 0 {
		problems = append(problems, fmt.Sprintf("%s item %q cannot have a recipe", output.Category, output.Name))
	}

	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.InputItemID == output.ID {
			problems = append(problems, fmt.Sprintf("%q cannot be an input of itself", output.Name))
			continue
		}
		if seen[line.InputItemID] {
			problems = append(problems, fmt.Sprintf("input %d listed more than once", line.InputItemID))
			continue
		}
		seen[line.InputItemID] = true

		if !line.QuantityRequired.IsPositive() {
			problems = append(problems, fmt.Sprintf("input %d needs a positive quantity", line.InputItemID))
		}

		in, ok := inputs[line.InputItemID]
		if !ok {
			problems = append(problems, fmt.Sprintf("input %d does not exist", line.InputItemID))
			continue
		}
		if in.Archived() {
			problems = append(problems, fmt.Sprintf("input %q is archived", in.Name))
		}
		if output.Category.Composable() && !output.Category.Accepts(in.Category) {
			problems = append(problems, fmt.Sprintf("%s item %q cannot use %s input %q",
				output.Category, output.Name, in.Category, in.Name))
		}
	}

	if len(problems) > 0 {
		return &domain.RecipeError{OutputItemID: output.ID, Problems: problems}
	}
	return nil
}

// FindCycle reports the first cycle reachable from output once its edges are
// replaced by proposed, as a path that starts and ends at the same item.
// It returns nil when the graph stays acyclic.
func FindCycle(existing []domain.Composition, output int64, proposed []domain.RecipeLine) []int64 {
	adjacency := make(map[int64][]int64)
	for _, e := range existing {
		if e.OutputItemID == output {
			continue
		}
		adjacency[e.OutputItemID] = append(adjacency[e.OutputItemID], e.InputItemID)
	}
	for _, line := range proposed {
		adjacency[output] = append(adjacency[output], line.InputItemID)
	}

	visited := make(map[int64]bool)
	onStack := make(map[int64]bool)
	var path []int64
	var cycle []int64

	var visit func(node int64) bool
	visit = func(node int64) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range adjacency[node] {
			if onStack[next] {
				for i, p := range path {
					if p == next {
						cycle = append(append([]int64{}, path[i:]...), next)
						return true
					}
				}
			}
			if !visited[next] && visit(next) {
				return true
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
		return false
	}

	if visit(output) {
		return cycle
	}
	return nil
}
