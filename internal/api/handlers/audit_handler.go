package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/andresuchdata/stockledger/internal/export"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	store repository.Store
	now   func() time.Time
}

func NewAuditHandler(store repository.Store, now func() time.Time) *AuditHandler {
	if now == nil {
		now = time.Now
	}
	return &AuditHandler{store: store, now: now}
}

// Export returns the audit workbook for the last ?days= days (default 30).
func (h *AuditHandler) Export(c *gin.Context) {
	days, ok := intQuery(c, "days", 30)
	if !ok {
		return
	}
	if days <= 0 {
		badRequest(c, "days must be positive", nil)
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if err := export.WriteAuditWorkbook(c.Request.Context(), h.store, now.AddDate(0, 0, -days), &buf); err != nil {
		respondError(c, err, "failed to build audit workbook")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.AuditFileName(now)))
	c.Data(http.StatusOK, export.XLSXContentType, buf.Bytes())
}
