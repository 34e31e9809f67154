// Package bigquery persists transactions and per-user usage records in
// BigQuery. Repositories hold one shared client; queries are parameterized
// throughout.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const dateFormat = "2006-01-02"

// Repository is the concrete transaction and user-record store.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

// NewRepository creates a repository with a shared BigQuery client.
func NewRepository(ctx context.Context, projectID, dataset string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, dataset: dataset}, nil
}

// Close releases the underlying client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) table(name string) string {
	return r.dataset + "." + name
}
