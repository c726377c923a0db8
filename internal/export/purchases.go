package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrBadImport marks a purchase file that cannot be read.
var ErrBadImport = errors.New("bad import file")

var purchaseColumns = []string{"supplier", "invoice_date", "item", "quantity", "unit_cost"}

// PurchaseRow is one line of a bulk purchase file.
type PurchaseRow struct {
	Line        int
	Supplier    string
	InvoiceDate *time.Time
	Item        string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
}

// ReadPurchaseFile picks a reader from the file extension.
func ReadPurchaseFile(name string, r io.Reader) ([]PurchaseRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadPurchaseCSV(r)
	case ".xlsx":
		return ReadPurchaseXLSX(r)
	}
	return nil, fmt.Errorf("unsupported file type %q: %w", filepath.Ext(name), ErrBadImport)
}

func ReadPurchaseCSV(r io.Reader) ([]PurchaseRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %v: %w", err, ErrBadImport)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return parsePurchaseRecords(records, lines)
}

// ReadPurchaseXLSX reads the first sheet of a workbook.
func ReadPurchaseXLSX(r io.Reader) ([]PurchaseRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %v: %w", err, ErrBadImport)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets: %w", ErrBadImport)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %v: %w", sheets[0], err, ErrBadImport)
	}
	return parsePurchaseRecords(records, nil)
}

// parsePurchaseRecords maps rows by header name. lines holds the file line of
// each record; nil means records are consecutive from line 1.
func parsePurchaseRecords(records [][]string, lines []int) ([]PurchaseRow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty: %w", ErrBadImport)
	}

	index := make(map[string]int)
	for i, name := range records[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range purchaseColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q: %w", col, ErrBadImport)
		}
	}

	cell := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]PurchaseRow, 0, len(records)-1)
	for n, record := range records[1:] {
		line := n + 2
		if lines != nil {
			line = lines[n+1]
		}
		if isBlank(record) {
			continue
		}

		row := PurchaseRow{
			Line:     line,
			Supplier: cell(record, "supplier"),
			Item:     cell(record, "item"),
		}
		if row.Supplier == "" || row.Item == "" {
			return nil, fmt.Errorf("line %d: supplier and item are required: %w", line, ErrBadImport)
		}

		var err error
		if row.Quantity, err = decimal.NewFromString(cell(record, "quantity")); err != nil {
			return nil, fmt.Errorf("line %d: bad quantity %q: %w", line, cell(record, "quantity"), ErrBadImport)
		}
		if row.UnitCost, err = decimal.NewFromString(cell(record, "unit_cost")); err != nil {
			return nil, fmt.Errorf("line %d: bad unit cost %q: %w", line, cell(record, "unit_cost"), ErrBadImport)
		}
		if raw := cell(record, "invoice_date"); raw != "" {
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad invoice date %q: %w", line, raw, ErrBadImport)
			}
			row.InvoiceDate = &d
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

type PurchaseReceiver interface {
	ReceivePurchase(ctx context.Context, in domain.NewPurchase) (*domain.Purchase, error)
}

type ItemFinder interface {
	FindItemByName(ctx context.Context, name string) (*domain.Item, error)
}

// ImportPurchases groups rows by supplier and invoice date, in order of first
// appearance, and receives each group as one purchase. It stops at the first
// failure and returns the purchases received so far.
func ImportPurchases(ctx context.Context, receiver PurchaseReceiver, items ItemFinder, rows []PurchaseRow) ([]domain.Purchase, error) {
	type group struct {
		supplier string
		date     *time.Time
		lines    []domain.PurchaseLine
	}
	var (
		order  []string
		groups = make(map[string]*group)
		ids    = make(map[string]int64)
	)

	for _, row := range rows {
		key := strings.ToLower(row.Item)
		id, ok := ids[key]
		if !ok {
			item, err := items.FindItemByName(ctx, row.Item)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", row.Line, err)
			}
			id = item.ID
			ids[key] = id
		}

		gk := row.Supplier + "|"
		if row.InvoiceDate != nil {
			gk += row.InvoiceDate.Format("2006-01-02")
		}
		g, ok := groups[gk]
		if !ok {
			g = &group{supplier: row.Supplier, date: row.InvoiceDate}
			groups[gk] = g
			order = append(order, gk)
		}
		g.lines = append(g.lines, domain.PurchaseLine{ItemID: id, Quantity: row.Quantity, UnitCost: row.UnitCost})
	}

	received := make([]domain.Purchase, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		p, err := receiver.ReceivePurchase(ctx, domain.NewPurchase{
			SupplierName: g.supplier,
			InvoiceDate:  g.date,
			Lines:        g.lines,
		})
		if err != nil {
			return received, fmt.Errorf("purchase from %s: %w", g.supplier, err)
		}
		received = append(received, *p)
	}

	log.Info().Int("rows", len(rows)).Int("purchases", len(received)).Msg("purchase import finished")
	return received, nil
}
