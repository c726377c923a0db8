package export

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/andresuchdata/stockledger/internal/repository/memory"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func seedLedger(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	catalog := service.NewCatalogService(store, nil)
	inventory := service.NewInventoryService(store, nil, decimal.NewFromInt(5), nil)
	production := service.NewProductionService(store, nil, nil)

	flour, err := catalog.CreateItem(ctx, domain.Item{Name: "Flour", Unit: "kg", Category: domain.CategoryRaw})
	if err != nil {
		t.Fatal(err)
	}
	bread, err := catalog.CreateItem(ctx, domain.Item{Name: "Bread", Unit: "loaf", Category: domain.CategoryFinished})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := catalog.SetRecipe(ctx, bread.ID, []domain.RecipeLine{{InputItemID: flour.ID, QuantityRequired: decimal.RequireFromString("0.5")}}); err != nil {
		t.Fatal(err)
	}
	p, err := inventory.ReceivePurchase(ctx, domain.NewPurchase{
		SupplierName: "Mill",
		Lines:        []domain.PurchaseLine{{ItemID: flour.ID, Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := production.Produce(ctx, domain.ProductionRequest{OutputItemID: bread.ID, Quantity: decimal.NewFromInt(4)}); err != nil {
		t.Fatal(err)
	}
	if _, err := inventory.RecordWaste(ctx, p.Lots[0].ID, decimal.NewFromInt(1), "spoiled"); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestBuildAuditWorkbook(t *testing.T) {
	store := seedLedger(t)

	f, err := BuildAuditWorkbook(context.Background(), store, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !slices.Equal(got, []string{"Lots", "Allocations", "Waste"}) {
		t.Fatalf("sheets = %v", got)
	}

	tests := []struct {
		sheet    string
		rows     int
		col      int
		wantName string
	}{
		{"Lots", 3, 1, "Flour"},
		{"Allocations", 2, 3, "Flour"},
		{"Waste", 2, 3, "Flour"},
	}
	for _, tt := range tests {
		rows, err := f.GetRows(tt.sheet)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != tt.rows {
			t.Errorf("%s has %d rows, want %d", tt.sheet, len(rows), tt.rows)
			continue
		}
		if rows[1][tt.col] != tt.wantName {
			t.Errorf("%s row 2 col %d = %q, want %q", tt.sheet, tt.col, rows[1][tt.col], tt.wantName)
		}
	}

	allocs, _ := f.GetRows("Allocations")
	if allocs[1][5] != "Bread" || allocs[1][6] != "2" || allocs[1][8] != "4" {
		t.Errorf("unexpected allocation row %v", allocs[1])
	}
}

func TestWriteAuditWorkbookWindow(t *testing.T) {
	store := seedLedger(t)

	var buf bytes.Buffer
	if err := WriteAuditWorkbook(context.Background(), store, time.Now().Add(time.Hour), &buf); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	allocs, _ := f.GetRows("Allocations")
	if len(allocs) != 1 {
		t.Errorf("future window should hold only the header, got %d rows", len(allocs))
	}
	lots, _ := f.GetRows("Lots")
	if len(lots) != 3 {
		t.Errorf("lots with stock are always listed, got %d rows", len(lots))
	}
}

func TestAuditFileName(t *testing.T) {
	got := AuditFileName(time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC))
	if got != "audit-20240701-083000.xlsx" {
		t.Errorf("AuditFileName = %q", got)
	}
}
