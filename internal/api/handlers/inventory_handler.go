package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type InventoryHandler struct {
	inventory *service.InventoryService
}

func NewInventoryHandler(inventory *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

type purchaseRequest struct {
	SupplierName string                `json:"supplier_name"`
	InvoiceDate  string                `json:"invoice_date"`
	TotalCost    decimal.Decimal       `json:"total_cost"`
	Lines        []domain.PurchaseLine `json:"lines"`
}

type correctLotRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type wasteRequest struct {
	LotID    int64           `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReceivePurchase turns an invoice into lots.
func (h *InventoryHandler) ReceivePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	date, err := parseDate(req.InvoiceDate)
	if err != nil {
		badRequest(c, "invalid invoice_date", err)
		return
	}

	purchase, err := h.inventory.ReceivePurchase(c.Request.Context(), domain.NewPurchase{
		SupplierName: req.SupplierName,
		InvoiceDate:  date,
		TotalCost:    req.TotalCost,
		Lines:        req.Lines,
	})
	if err != nil {
		respondError(c, err, "failed to receive purchase")
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

func (h *InventoryHandler) ListPurchases(c *gin.Context) {
	purchases, err := h.inventory.ListPurchases(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list purchases")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": purchases})
}

func (h *InventoryHandler) VoidPurchase(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	purchase, err := h.inventory.VoidPurchase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to void purchase")
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *InventoryHandler) GetSummary(c *gin.Context) {
	summary, err := h.inventory.InventorySummary(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to fetch inventory summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// ListLots returns live lots in consumption order.
func (h *InventoryHandler) ListLots(c *gin.Context) {
	itemID, ok := intQuery(c, "item_id", 0)
	if !ok {
		return
	}
	lots, err := h.inventory.ListLots(c.Request.Context(), int64(itemID))
	if err != nil {
		respondError(c, err, "failed to list lots")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lots})
}

func (h *InventoryHandler) ListExpiringLots(c *gin.Context) {
	days, ok := intQuery(c, "days", 3)
	if !ok {
		return
	}
	if days < 0 {
		badRequest(c, "days must not be negative", nil)
		return
	}
	lots, err := h.inventory.ListExpiringLots(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		respondError(c, err, "failed to list expiring lots")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lots, "days": days})
}

func (h *InventoryHandler) GetLot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	lot, err := h.inventory.GetLot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to get lot")
		return
	}
	c.JSON(http.StatusOK, lot)
}

// CorrectLot sets a lot's remaining quantity after a stock take.
func (h *InventoryHandler) CorrectLot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req correctLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	lot, err := h.inventory.CorrectLot(c.Request.Context(), id, req.Quantity)
	if err != nil {
		respondError(c, err, "failed to correct lot")
		return
	}
	c.JSON(http.StatusOK, lot)
}

func (h *InventoryHandler) RecordWaste(c *gin.Context) {
	var req wasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	entry, err := h.inventory.RecordWaste(c.Request.Context(), req.LotID, req.Quantity, req.Reason)
	if err != nil {
		respondError(c, err, "failed to record waste")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *InventoryHandler) ListWaste(c *gin.Context) {
	lotID, ok := intQuery(c, "lot_id", 0)
	if !ok {
		return
	}
	entries, err := h.inventory.ListWaste(c.Request.Context(), int64(lotID))
	if err != nil {
		respondError(c, err, "failed to list waste")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (h *InventoryHandler) RecentAllocations(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	views, err := h.inventory.RecentAllocations(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "failed to list recent production")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (h *InventoryHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.inventory.DashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to fetch dashboard stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
