// Package workbook handles bulk spreadsheet export and import of a user's
// transaction history.
package workbook

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dkachan/finsight/internal/domain"
)

const (
	incomeSheet  = "Income"
	expenseSheet = "Expenses"
	dateFormat   = "2006-01-02"
)

var headerRow = []string{"Date", "Label", "Amount", "Icon"}

// Build renders a user's transactions into a two-sheet workbook, one sheet
// per kind, rows in the order given.
func Build(txs []domain.Transaction) (*excelize.File, error) {
	f := excelize.NewFile()

	// The default sheet becomes the income sheet; expenses get their own.
	if err := f.SetSheetName(f.GetSheetName(0), incomeSheet); err != nil {
		return nil, fmt.Errorf("Build: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(expenseSheet); err != nil {
		return nil, fmt.Errorf("Build: create expense sheet: %w", err)
	}

	rows := map[string]int{incomeSheet: 1, expenseSheet: 1}
	for _, sheet := range []string{incomeSheet, expenseSheet} {
		if err := writeRow(f, sheet, 1, headerRow...); err != nil {
			return nil, err
		}
	}

	for _, t := range txs {
		sheet := expenseSheet
		if t.Kind == domain.KindIncome {
			sheet = incomeSheet
		}
		rows[sheet]++
		err := writeRow(f, sheet, rows[sheet],
			t.Date.Format(dateFormat), t.Category(), fmt.Sprintf("%.2f", t.Amount), t.Icon)
		if err != nil {
			return nil, err
		}
	}

	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("writeRow: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("writeRow: set cell %s: %w", cell, err)
		}
	}
	return nil
}

// Parse reads a workbook in the Build layout and returns transactions owned
// by userID. Rows with a blank date and amount are skipped; malformed rows
// fail the whole import so a partial batch is never inserted.
func Parse(r io.Reader, userID string) ([]*domain.Transaction, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("Parse: open workbook: %w", err)
	}
	defer f.Close()

	var txs []*domain.Transaction
	for _, sheet := range f.GetSheetList() {
		kind, ok := kindForSheet(sheet)
		if !ok {
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("Parse: read sheet %s: %w", sheet, err)
		}

		for i, row := range rows {
			if i == 0 || isBlankRow(row) {
				continue
			}
			t, err := parseRow(row, userID, kind)
			if err != nil {
				return nil, fmt.Errorf("Parse: sheet %s row %d: %w", sheet, i+1, err)
			}
			txs = append(txs, t)
		}
	}

	return txs, nil
}

func kindForSheet(sheet string) (domain.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(sheet)) {
	case strings.ToLower(incomeSheet):
		return domain.KindIncome, true
	case strings.ToLower(expenseSheet):
		return domain.KindExpense, true
	default:
		return "", false
	}
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, userID string, kind domain.Kind) (*domain.Transaction, error) {
	date, err := time.Parse(dateFormat, strings.TrimSpace(cellAt(row, 0)))
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", cellAt(row, 0), err)
	}

	// Spreadsheet amounts arrive as text; parse exactly before converting to
	// the float the rest of the system uses, so "0.10" never picks up binary
	// noise on the way in.
	amount, err := decimal.NewFromString(strings.TrimSpace(cellAt(row, 2)))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", cellAt(row, 2), err)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}

	return &domain.Transaction{
		UserID: userID,
		Kind:   kind,
		Label:  strings.TrimSpace(cellAt(row, 1)),
		Amount: amount.InexactFloat64(),
		Date:   date,
		Icon:   strings.TrimSpace(cellAt(row, 3)),
	}, nil
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
