// Package export writes the ledger's audit workbook and reads bulk purchase
// files.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/xuri/excelize/v2"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetLots        = "Lots"
	sheetAllocations = "Allocations"
	sheetWaste       = "Waste"
)

var (
	lotHeader        = []any{"Lot", "Item", "Origin", "Purchase", "Initial", "Remaining", "Unit Cost", "Expires At", "Created At"}
	allocationHeader = []any{"Allocation", "Created At", "Source Lot", "Source Item", "Output Lot", "Output Item", "Quantity", "Unit Cost", "Value"}
	wasteHeader      = []any{"Entry", "Created At", "Lot", "Item", "Reason", "Quantity", "Cost Loss"}
)

type auditData struct {
	items       map[int64]domain.Item
	lotItem     map[int64]int64
	lots        []domain.Lot
	allocations []domain.AllocationView
	waste       []domain.WasteEntry
}

// AuditFileName names the workbook generated at t.
func AuditFileName(t time.Time) string {
	return fmt.Sprintf("audit-%s.xlsx", t.UTC().Format("20060102-150405"))
}

// BuildAuditWorkbook snapshots lots, allocations and waste into a workbook.
// Allocations and waste are limited to entries at or after since; lots are
// included when created since then or still holding stock.
func BuildAuditWorkbook(ctx context.Context, store repository.Store, since time.Time) (*excelize.File, error) {
	data, err := loadAudit(ctx, store, since)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetLots); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to prepare workbook: %w", err)
	}
	for _, name := range []string{sheetAllocations, sheetWaste} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSheet(f, sheetLots, header, lotHeader, lotRows(data)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheet(f, sheetAllocations, header, allocationHeader, allocationRows(data)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheet(f, sheetWaste, header, wasteHeader, wasteRows(data)); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteAuditWorkbook builds the workbook and streams it to w.
func WriteAuditWorkbook(ctx context.Context, store repository.Store, since time.Time, w io.Writer) error {
	f, err := BuildAuditWorkbook(ctx, store, since)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func loadAudit(ctx context.Context, store repository.Store, since time.Time) (*auditData, error) {
	data := &auditData{items: make(map[int64]domain.Item), lotItem: make(map[int64]int64)}
	err := store.View(ctx, func(q repository.Queries) error {
		items, err := q.ListItems(ctx, repository.ItemFilter{IncludeArchived: true})
		if err != nil {
			return err
		}
		for _, item := range items {
			data.items[item.ID] = item
		}

		lots, err := q.ListLots(ctx, repository.LotFilter{})
		if err != nil {
			return err
		}
		for _, lot := range lots {
			data.lotItem[lot.ID] = lot.ItemID
			if !lot.CreatedAt.Before(since) || !lot.Exhausted() {
				data.lots = append(data.lots, lot)
			}
		}

		if data.allocations, err = q.ListAllocationViews(ctx, since, 0); err != nil {
			return err
		}
		data.waste, err = q.ListWaste(ctx, 0, since)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit data: %w", err)
	}
	return data, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func lotRows(data *auditData) [][]any {
	rows := make([][]any, 0, len(data.lots))
	for _, lot := range data.lots {
		purchase := ""
		if lot.PurchaseID != nil {
			purchase = fmt.Sprint(*lot.PurchaseID)
		}
		expires := ""
		if lot.ExpiresAt != nil {
			expires = lot.ExpiresAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []any{
			lot.ID,
			data.items[lot.ItemID].Name,
			string(lot.Origin),
			purchase,
			lot.QuantityInitial.InexactFloat64(),
			lot.QuantityRemaining.InexactFloat64(),
			lot.UnitCost.InexactFloat64(),
			expires,
			lot.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func allocationRows(data *auditData) [][]any {
	rows := make([][]any, 0, len(data.allocations))
	for _, a := range data.allocations {
		rows = append(rows, []any{
			a.ID,
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.SourceLotID,
			a.SourceItemName,
			a.OutputLotID,
			a.OutputItemName,
			a.Quantity.InexactFloat64(),
			a.SourceUnitCost.InexactFloat64(),
			a.Quantity.Mul(a.SourceUnitCost).InexactFloat64(),
		})
	}
	return rows
}

func wasteRows(data *auditData) [][]any {
	rows := make([][]any, 0, len(data.waste))
	for _, w := range data.waste {
		rows = append(rows, []any{
			w.ID,
			w.CreatedAt.UTC().Format(time.RFC3339),
			w.LotID,
			data.items[data.lotItem[w.LotID]].Name,
			string(w.Reason),
			w.Quantity.InexactFloat64(),
			w.CostLoss.InexactFloat64(),
		})
	}
	return rows
}
