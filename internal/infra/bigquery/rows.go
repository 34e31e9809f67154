package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dkachan/finsight/internal/domain"
)

// TransactionRow is the finance.transactions table shape. Amounts are NUMERIC
// in the schema, carried as *big.Rat on the wire.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID string `bigquery:"user_id"` // REQUIRED
	Kind   string `bigquery:"kind"`    // REQUIRED: "income" | "expense"

	Label string `bigquery:"label"` // NULLABLE in schema, "" for uncategorized

	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED DATE

	Icon bigquery.NullString `bigquery:"icon"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// UserUsageRow is the finance.user_usage table shape: one row per user
// carrying both daily counters and the cached full-analysis payload.
type UserUsageRow struct {
	UserID string `bigquery:"user_id"` // REQUIRED

	InsightsCount     int64             `bigquery:"insights_count"`
	InsightsLastReset bigquery.NullDate `bigquery:"insights_last_reset"`

	BillScansCount     int64             `bigquery:"bill_scans_count"`
	BillScansLastReset bigquery.NullDate `bigquery:"bill_scans_last_reset"`

	CachedInsight   bigquery.NullString    `bigquery:"cached_insight"`    // NULLABLE JSON text
	CachedInsightTS bigquery.NullTimestamp `bigquery:"cached_insight_ts"` // NULLABLE
}

func rowFromTransaction(t *domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   t.ID,
		UserID:          t.UserID,
		Kind:            string(t.Kind),
		Label:           t.Label,
		Amount:          new(big.Rat).SetFloat64(t.Amount),
		TransactionDate: civil.DateOf(t.Date),
		CreatedTS:       t.CreatedAt,
	}
	if t.Icon != "" {
		row.Icon = bigquery.NullString{StringVal: t.Icon, Valid: true}
	}
	return row
}

func (r *TransactionRow) toDomain() (domain.Transaction, error) {
	if r.Amount == nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: NULL amount", r.TransactionID)
	}
	amount, _ := r.Amount.Float64()

	t := domain.Transaction{
		ID:        r.TransactionID,
		UserID:    r.UserID,
		Kind:      domain.Kind(r.Kind),
		Label:     r.Label,
		Amount:    amount,
		Date:      r.TransactionDate.In(time.UTC),
		CreatedAt: r.CreatedTS,
	}
	if r.Icon.Valid {
		t.Icon = r.Icon.StringVal
	}
	return t, nil
}
