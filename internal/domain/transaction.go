package domain

import (
	"time"
)

// Kind distinguishes the two transaction entities. Income and expense records
// share one shape; only the meaning of Label differs (income source vs
// spending category).
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// DefaultCategory is the bucket used when an expense has no label.
const DefaultCategory = "Uncategorized"

// Transaction is one income or expense record owned by exactly one user.
// Transactions are immutable after creation; they are removed only by an
// explicit delete.
type Transaction struct {
	ID     string
	UserID string
	Kind   Kind

	// Label is the income source or the expense category.
	Label string

	// Amount is a non-negative currency value.
	Amount float64

	// Date is the calendar day the transaction is attributed to.
	Date time.Time

	// Icon is an optional display token (emoji or URL); ignored by all
	// aggregation logic.
	Icon string

	CreatedAt time.Time
}

// Category returns the aggregation bucket for the transaction, falling back
// to DefaultCategory for blank labels.
func (t *Transaction) Category() string {
	if t.Label == "" {
		return DefaultCategory
	}
	return t.Label
}
