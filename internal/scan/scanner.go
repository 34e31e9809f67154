// Package scan turns a photographed bill or receipt into a ready-to-insert
// expense record using the vision model. Callers consume a billScans quota
// unit before invoking the scanner.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/insights"
)

// BillDetails is the normalized result of one receipt scan.
type BillDetails struct {
	Merchant string    `json:"merchant"`
	Amount   float64   `json:"amount"`
	Category string    `json:"category"`
	Date     time.Time `json:"date"`
	Icon     string    `json:"icon"`
}

// Scanner extracts bill details from receipt images.
type Scanner struct {
	model insights.ModelClient
	log   zerolog.Logger
	now   func() time.Time
}

// NewScanner creates a scanner over the shared model client.
func NewScanner(model insights.ModelClient, log zerolog.Logger) *Scanner {
	return &Scanner{model: model, log: log, now: time.Now}
}

// WithClock overrides the wall clock for tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

const scanPrompt = "You are a receipt parser for photographed shop receipts and bills.\n\n" +
	"Task:\n" +
	"- Read the attached image and extract the overall purchase.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n" +
	"The response object must have these fields:\n" +
	"- \"merchant\": string, shop or issuer name, or null\n" +
	"- \"total_amount\": number, the final amount paid\n" +
	"- \"category\": string, a short spending category such as \"Groceries\" or \"Dining\"\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\", or null when unreadable\n" +
	"- \"icon\": string, a single emoji matching the category\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// ScanReceipt sends the image to the model and normalizes its response. A
// zero or negative extracted amount fails the scan; everything else gets
// defaults.
func (s *Scanner) ScanReceipt(ctx context.Context, image []byte, mimeType string) (*BillDetails, error) {
	rawText, err := s.model.GenerateFromImage(ctx, scanPrompt, mimeType, image)
	if err != nil {
		return nil, err
	}

	obj, err := insights.ParseObject(rawText)
	if err != nil {
		s.log.Error().Err(err).Str("raw_response", rawText).Msg("Failed to parse scan response")
		return nil, err
	}

	details := &BillDetails{
		Merchant: insights.StringField(obj, "merchant"),
		Amount:   insights.NumberField(obj, "total_amount"),
		Category: insights.StringField(obj, "category"),
		Icon:     insights.StringField(obj, "icon"),
	}
	if details.Amount <= 0 {
		return nil, &insights.ParseError{Raw: rawText, Err: fmt.Errorf("scan produced amount %v", details.Amount)}
	}
	if details.Category == "" {
		details.Category = domain.DefaultCategory
	}

	details.Date = s.now()
	if dateStr := insights.StringField(obj, "date"); dateStr != "" {
		if parsed, err := time.Parse("2006-01-02", dateStr); err == nil {
			details.Date = parsed
		}
	}

	return details, nil
}

// Transaction converts the scan result into an expense owned by the user.
func (d *BillDetails) Transaction(userID string) *domain.Transaction {
	label := d.Category
	if d.Merchant != "" {
		label = d.Merchant
	}
	return &domain.Transaction{
		UserID: userID,
		Kind:   domain.KindExpense,
		Label:  label,
		Amount: d.Amount,
		Date:   d.Date,
		Icon:   d.Icon,
	}
}
