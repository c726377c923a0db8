package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ItemHandler struct {
	catalog    *service.CatalogService
	production *service.ProductionService
}

func NewItemHandler(catalog *service.CatalogService, production *service.ProductionService) *ItemHandler {
	return &ItemHandler{catalog: catalog, production: production}
}

type createItemRequest struct {
	Name          string `json:"name"`
	Unit          string `json:"unit"`
	ShelfLifeDays int    `json:"shelf_life_days"`
	Category      string `json:"category"`
}

type recipeRequest struct {
	Ingredients []domain.RecipeLine `json:"ingredients"`
}

type movingAverageRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// ListItems returns items, optionally of one category.
func (h *ItemHandler) ListItems(c *gin.Context) {
	filter := repository.ItemFilter{}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		cat, ok := domain.ParseCategory(raw)
		if !ok {
			badRequest(c, "invalid category", nil)
			return
		}
		filter.Category = cat
	}
	if raw := c.Query("include_archived"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid include_archived", err)
			return
		}
		filter.IncludeArchived = include
	}

	items, err := h.catalog.ListItems(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "failed to list items")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *ItemHandler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	item, err := h.catalog.CreateItem(c.Request.Context(), domain.Item{
		Name:          req.Name,
		Unit:          req.Unit,
		ShelfLifeDays: req.ShelfLifeDays,
		Category:      domain.Category(req.Category),
	})
	if err != nil {
		respondError(c, err, "failed to create item")
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.catalog.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to get item")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) UpdateItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var update domain.ItemUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	item, err := h.catalog.UpdateItem(c.Request.Context(), id, update)
	if err != nil {
		respondError(c, err, "failed to update item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// ArchiveItem soft-deletes an item.
func (h *ItemHandler) ArchiveItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.catalog.ArchiveItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to archive item")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) RetireItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.RetireItem(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to retire item")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ItemHandler) GetRecipe(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	recipe, err := h.catalog.GetRecipe(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to get recipe")
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// SetRecipe replaces the whole ingredient list of an item.
func (h *ItemHandler) SetRecipe(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req recipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	recipe, err := h.catalog.SetRecipe(c.Request.Context(), id, req.Ingredients)
	if err != nil {
		respondError(c, err, "failed to set recipe")
		return
	}
	c.JSON(http.StatusOK, recipe)
}

func (h *ItemHandler) GetCost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cost, err := h.production.RecipeCost(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to compute cost")
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": id, "unit_cost": cost})
}

// UpdateMovingAverage folds a purchase into the item's average cost without
// creating a lot.
func (h *ItemHandler) UpdateMovingAverage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req movingAverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	avg, err := h.production.UpdateMovingAverage(c.Request.Context(), id, req.Quantity, req.UnitCost)
	if err != nil {
		respondError(c, err, "failed to update average cost")
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": id, "average_cost": avg})
}

func (h *ItemHandler) CheckAvailability(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	qty, err := decimal.NewFromString(c.DefaultQuery("quantity", "1"))
	if err != nil {
		badRequest(c, "invalid quantity", err)
		return
	}
	availability, err := h.production.CheckAvailability(c.Request.Context(), id, qty)
	if err != nil {
		respondError(c, err, "failed to check availability")
		return
	}
	c.JSON(http.StatusOK, availability)
}
