package handlers

import (
	"net/http"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/gin-gonic/gin"
)

type ProductionHandler struct {
	production *service.ProductionService
}

func NewProductionHandler(production *service.ProductionService) *ProductionHandler {
	return &ProductionHandler{production: production}
}

// Produce consumes inputs FIFO and creates the output lot. pinned_lots is
// keyed by input item id.
func (h *ProductionHandler) Produce(c *gin.Context) {
	var req domain.ProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	result, err := h.production.Produce(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "production failed")
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *ProductionHandler) RevertAllocation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rev, err := h.production.ReverseByAllocation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to revert production")
		return
	}
	c.JSON(http.StatusOK, rev)
}

func (h *ProductionHandler) RevertLot(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rev, err := h.production.ReverseByOutputLot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to revert production")
		return
	}
	c.JSON(http.StatusOK, rev)
}
