package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dkachan/finsight/internal/domain"
)

const transactionsTable = "transactions"

// InsertTransaction writes one transaction via the streaming inserter.
func (r *Repository) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	return r.InsertTransactions(ctx, []*domain.Transaction{t})
}

// InsertTransactions writes a batch of transactions. A no-op for an empty
// batch.
func (r *Repository) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, rowFromTransaction(t))
	}

	inserter := r.client.Dataset(r.dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// ListTransactions returns the user's full history for one kind, oldest
// first. The aggregation layer does all windowing in memory.
func (r *Repository) ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]domain.Transaction, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			kind,
			label,
			amount,
			transaction_date,
			icon,
			created_ts
		FROM %s
		WHERE user_id = @user_id
		  AND kind = @kind
		ORDER BY transaction_date, created_ts
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "kind", Value: string(kind)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var txs []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		t, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: %w", err)
		}
		txs = append(txs, t)
	}

	return txs, nil
}

// ListTransactionsByDateRange returns one kind of transactions inside an
// inclusive date range, for export and dashboard views.
func (r *Repository) ListTransactionsByDateRange(ctx context.Context, userID string, kind domain.Kind, start, end time.Time) ([]domain.Transaction, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			kind,
			label,
			amount,
			transaction_date,
			icon,
			created_ts
		FROM %s
		WHERE user_id = @user_id
		  AND kind = @kind
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, created_ts
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "kind", Value: string(kind)},
		{Name: "start_date", Value: start.Format(dateFormat)},
		{Name: "end_date", Value: end.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsByDateRange: query read: %w", err)
	}

	var txs []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactionsByDateRange: iter next: %w", err)
		}
		t, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListTransactionsByDateRange: %w", err)
		}
		txs = append(txs, t)
	}

	return txs, nil
}

// DeleteTransaction removes one transaction owned by the user. Deleting an
// unknown ID is not an error; the row is simply gone either way.
func (r *Repository) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	q := r.client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE transaction_id = @transaction_id
		  AND user_id = @user_id
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
		{Name: "user_id", Value: userID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: running delete: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("DeleteTransaction: job error: %w", err)
	}
	return nil
}
