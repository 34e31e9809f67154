package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/insights"
)

var scanNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

type mockVisionModel struct {
	response string
	err      error
	mimeType string
}

func (m *mockVisionModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return m.response, m.err
}

func (m *mockVisionModel) GenerateFromImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error) {
	m.mimeType = mimeType
	return m.response, m.err
}

func newTestScanner(model insights.ModelClient) *Scanner {
	return NewScanner(model, zerolog.Nop()).WithClock(func() time.Time { return scanNow })
}

func TestScanReceipt(t *testing.T) {
	model := &mockVisionModel{
		response: "```json\n{\"merchant\":\"Lidl\",\"total_amount\":23.45," +
			"\"category\":\"Groceries\",\"date\":\"2025-06-10\",\"icon\":\"🛒\"}\n```",
	}
	s := newTestScanner(model)

	details, err := s.ScanReceipt(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("ScanReceipt: %v", err)
	}

	if details.Merchant != "Lidl" || details.Amount != 23.45 || details.Category != "Groceries" {
		t.Errorf("details = %+v", details)
	}
	if details.Date.Format("2006-01-02") != "2025-06-10" {
		t.Errorf("date = %v, want the receipt date", details.Date)
	}
	if model.mimeType != "image/jpeg" {
		t.Errorf("mime type = %q", model.mimeType)
	}
}

func TestScanReceipt_Defaults(t *testing.T) {
	// No category, no date, amount delivered as a string.
	model := &mockVisionModel{response: `{"merchant":"","total_amount":"12.00","date":null}`}
	s := newTestScanner(model)

	details, err := s.ScanReceipt(context.Background(), []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("ScanReceipt: %v", err)
	}
	if details.Amount != 12 {
		t.Errorf("amount = %v, want coerced 12", details.Amount)
	}
	if details.Category != domain.DefaultCategory {
		t.Errorf("category = %q, want default bucket", details.Category)
	}
	if !details.Date.Equal(scanNow) {
		t.Errorf("date = %v, want scan time fallback", details.Date)
	}
}

func TestScanReceipt_RejectsZeroAmount(t *testing.T) {
	model := &mockVisionModel{response: `{"merchant":"Lidl","total_amount":0}`}
	s := newTestScanner(model)

	_, err := s.ScanReceipt(context.Background(), []byte("img"), "image/png")
	var parseErr *insights.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *insights.ParseError", err)
	}
}

func TestBillDetails_Transaction(t *testing.T) {
	d := &BillDetails{Merchant: "Lidl", Amount: 10, Category: "Groceries", Date: scanNow, Icon: "🛒"}
	tx := d.Transaction("u1")
	if tx.Kind != domain.KindExpense || tx.Label != "Lidl" || tx.UserID != "u1" {
		t.Errorf("transaction = %+v", tx)
	}

	// Without a merchant the category becomes the label.
	d.Merchant = ""
	if got := d.Transaction("u1").Label; got != "Groceries" {
		t.Errorf("label = %q, want Groceries", got)
	}
}
