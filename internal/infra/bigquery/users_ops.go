package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dkachan/finsight/internal/quota"
)

const userUsageTable = "user_usage"

// GetUsage reads both counters for a user. A missing row means a brand-new
// user: zero counts with zero-valued reset dates, which the governor treats
// as "not today" and resets on first use.
func (r *Repository) GetUsage(ctx context.Context, userID string) (quota.Usage, error) {
	row, err := r.getUserRow(ctx, userID)
	if err != nil {
		return quota.Usage{}, fmt.Errorf("GetUsage: %w", err)
	}
	if row == nil {
		return quota.Usage{}, nil
	}

	usage := quota.Usage{
		Insights:  quota.Counter{Count: int(row.InsightsCount)},
		BillScans: quota.Counter{Count: int(row.BillScansCount)},
	}
	if row.InsightsLastReset.Valid {
		usage.Insights.LastReset = row.InsightsLastReset.Date.In(time.UTC)
	}
	if row.BillScansLastReset.Valid {
		usage.BillScans.LastReset = row.BillScansLastReset.Date.In(time.UTC)
	}
	return usage, nil
}

// SetCounter upserts one counter pair on the user row, leaving the other
// counter and the cached insight untouched.
func (r *Repository) SetCounter(ctx context.Context, userID string, kind quota.Kind, c quota.Counter) error {
	countCol, resetCol := "insights_count", "insights_last_reset"
	if kind == quota.KindBillScans {
		countCol, resetCol = "bill_scans_count", "bill_scans_last_reset"
	}

	q := r.client.Query(fmt.Sprintf(`
		MERGE %s u
		USING (SELECT @user_id AS user_id) s
		ON u.user_id = s.user_id
		WHEN MATCHED THEN
			UPDATE SET %s = @count, %s = @last_reset
		WHEN NOT MATCHED THEN
			INSERT (user_id, %s, %s) VALUES (@user_id, @count, @last_reset)
	`, r.table(userUsageTable), countCol, resetCol, countCol, resetCol))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "count", Value: int64(c.Count)},
		{Name: "last_reset", Value: c.LastReset.Format(dateFormat)},
	}

	if err := r.runDML(ctx, q); err != nil {
		return fmt.Errorf("SetCounter: %w", err)
	}
	return nil
}

// GetCachedInsight returns the stored full-analysis payload, reporting
// ok=false when the user has never had a successful analysis.
func (r *Repository) GetCachedInsight(ctx context.Context, userID string) ([]byte, time.Time, bool, error) {
	row, err := r.getUserRow(ctx, userID)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("GetCachedInsight: %w", err)
	}
	if row == nil || !row.CachedInsight.Valid || !row.CachedInsightTS.Valid {
		return nil, time.Time{}, false, nil
	}
	return []byte(row.CachedInsight.StringVal), row.CachedInsightTS.Timestamp, true, nil
}

// PutCachedInsight unconditionally overwrites the cached payload and its
// timestamp.
func (r *Repository) PutCachedInsight(ctx context.Context, userID string, data []byte, generatedAt time.Time) error {
	q := r.client.Query(fmt.Sprintf(`
		MERGE %s u
		USING (SELECT @user_id AS user_id) s
		ON u.user_id = s.user_id
		WHEN MATCHED THEN
			UPDATE SET cached_insight = @cached_insight, cached_insight_ts = @cached_insight_ts
		WHEN NOT MATCHED THEN
			INSERT (user_id, cached_insight, cached_insight_ts)
			VALUES (@user_id, @cached_insight, @cached_insight_ts)
	`, r.table(userUsageTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "cached_insight", Value: string(data)},
		{Name: "cached_insight_ts", Value: generatedAt},
	}

	if err := r.runDML(ctx, q); err != nil {
		return fmt.Errorf("PutCachedInsight: %w", err)
	}
	return nil
}

func (r *Repository) getUserRow(ctx context.Context, userID string) (*UserUsageRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			user_id,
			insights_count,
			insights_last_reset,
			bill_scans_count,
			bill_scans_last_reset,
			cached_insight,
			cached_insight_ts
		FROM %s
		WHERE user_id = @user_id
	`, r.table(userUsageTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var row UserUsageRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("iter next: %w", err)
	}
	return &row, nil
}

func (r *Repository) runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
