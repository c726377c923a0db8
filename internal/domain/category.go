package domain

import "strings"

// Category places an item in the BOM hierarchy.
type Category string

const (
	CategoryRaw          Category = "raw"
	CategoryIntermediate Category = "intermediate"
	CategoryFinished     Category = "finished"
)

var categoryAliases = map[string]Category{
	"raw":          CategoryRaw,
	"intermediate": CategoryIntermediate,
	"prepped":      CategoryIntermediate,
	"finished":     CategoryFinished,
	"dish":         CategoryFinished,
}

// ParseCategory returns the category for a label (case-insensitive).
func ParseCategory(label string) (Category, bool) {
	c, ok := categoryAliases[normalizeLabel(label)]
	return c, ok
}

// Composable reports whether items of this category may have a recipe.
func (c Category) Composable() bool {
	return c == CategoryIntermediate || c == CategoryFinished
}

// Accepts reports whether an item of category c may consume an input of
// category in.
func (c Category) Accepts(in Category) bool {
	switch c {
	case CategoryIntermediate:
		return in == CategoryRaw
	case CategoryFinished:
		return in == CategoryRaw || in == CategoryIntermediate
	}
	return false
}

// ItemStatus is the lifecycle state of an item.
type ItemStatus string

const (
	ItemActive   ItemStatus = "active"
	ItemArchived ItemStatus = "archived"
)

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
