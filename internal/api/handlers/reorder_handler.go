package handlers

import (
	"net/http"

	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ReorderHandler struct {
	reorder          *service.ReorderService
	defaultDays      int
	defaultThreshold decimal.Decimal
}

func NewReorderHandler(reorder *service.ReorderService, defaultDays int, defaultThreshold decimal.Decimal) *ReorderHandler {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &ReorderHandler{reorder: reorder, defaultDays: defaultDays, defaultThreshold: defaultThreshold}
}

func (h *ReorderHandler) GetRecommendations(c *gin.Context) {
	days, ok := intQuery(c, "days", h.defaultDays)
	if !ok {
		return
	}
	threshold := h.defaultThreshold
	if raw := c.Query("threshold"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(c, "invalid threshold", err)
			return
		}
		threshold = v
	}

	recs, err := h.reorder.Recommendations(c.Request.Context(), days, threshold)
	if err != nil {
		respondError(c, err, "failed to build reorder recommendations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs, "days": days, "threshold": threshold})
}
