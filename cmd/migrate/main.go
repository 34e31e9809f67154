// Command migrate creates the BigQuery dataset and tables the service needs.
// It is idempotent: existing objects are left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/dkachan/finsight/internal/config"
	"github.com/dkachan/finsight/internal/logger"
)

var transactionsSchema = bigquery.Schema{
	{Name: "transaction_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "kind", Type: bigquery.StringFieldType, Required: true},
	{Name: "label", Type: bigquery.StringFieldType},
	{Name: "amount", Type: bigquery.NumericFieldType, Required: true},
	{Name: "transaction_date", Type: bigquery.DateFieldType, Required: true},
	{Name: "icon", Type: bigquery.StringFieldType},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
}

var userUsageSchema = bigquery.Schema{
	{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "insights_count", Type: bigquery.IntegerFieldType},
	{Name: "insights_last_reset", Type: bigquery.DateFieldType},
	{Name: "bill_scans_count", Type: bigquery.IntegerFieldType},
	{Name: "bill_scans_last_reset", Type: bigquery.DateFieldType},
	{Name: "cached_insight", Type: bigquery.StringFieldType},
	{Name: "cached_insight_ts", Type: bigquery.TimestampFieldType},
}

func main() {
	log := logger.New("finsight-migrate")

	location := flag.String("location", "EU", "BigQuery dataset location")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	dataset := client.Dataset(cfg.Dataset)
	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{Location: *location}); err != nil {
		if !alreadyExists(err) {
			log.Fatal().Err(err).Str("dataset", cfg.Dataset).Msg("Failed to create dataset")
		}
		log.Info().Str("dataset", cfg.Dataset).Msg("Dataset already exists")
	} else {
		log.Info().Str("dataset", cfg.Dataset).Str("location", *location).Msg("Dataset created")
	}

	tables := []struct {
		name   string
		schema bigquery.Schema
	}{
		{"transactions", transactionsSchema},
		{"user_usage", userUsageSchema},
	}

	for _, t := range tables {
		err := dataset.Table(t.name).Create(ctx, &bigquery.TableMetadata{Schema: t.schema})
		switch {
		case err == nil:
			log.Info().Str("table", t.name).Msg("Table created")
		case alreadyExists(err):
			log.Info().Str("table", t.name).Msg("Table already exists")
		default:
			log.Fatal().Err(err).Str("table", t.name).Msg("Failed to create table")
		}
	}

	log.Info().Msg("Migration complete")
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
