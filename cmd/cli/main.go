// Command cli is a maintenance tool for operating on a user's transaction
// history directly, without going through the API server. It bypasses the
// daily usage quotas.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/config"
	"github.com/dkachan/finsight/internal/domain"
	infraBQ "github.com/dkachan/finsight/internal/infra/bigquery"
	"github.com/dkachan/finsight/internal/insights"
	"github.com/dkachan/finsight/internal/logger"
	"github.com/dkachan/finsight/internal/scan"
	"github.com/dkachan/finsight/internal/workbook"
)

func main() {
	log := logger.New("finsight-cli")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		runExport(log)
	case "import":
		runImport(log)
	case "scan":
		runScan(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: cli <command> [arguments]

Commands:
  export <user-id> <out.xlsx>   Export a user's transactions to a workbook
  import <user-id> <in.xlsx>    Import a workbook into a user's history
  scan <image-file>             Extract bill details from a receipt image`)
}

func newRepo(ctx context.Context, log zerolog.Logger) *infraBQ.Repository {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	return repo
}

func runExport(log zerolog.Logger) {
	if len(os.Args) < 4 {
		log.Fatal().Msg("Usage: cli export <user-id> <out.xlsx>")
	}
	userID, outPath := os.Args[2], os.Args[3]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo := newRepo(ctx, log)
	defer repo.Close()

	var all []domain.Transaction
	for _, kind := range []domain.Kind{domain.KindExpense, domain.KindIncome} {
		txs, err := repo.ListTransactions(ctx, userID, kind)
		if err != nil {
			log.Fatal().Err(err).Str("kind", string(kind)).Msg("Failed to list transactions")
		}
		all = append(all, txs...)
	}

	f, err := workbook.Build(all)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build workbook")
	}
	if err := f.SaveAs(outPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to save workbook")
	}

	log.Info().Int("transactions", len(all)).Str("path", outPath).Msg("Export complete")
}

func runImport(log zerolog.Logger) {
	if len(os.Args) < 4 {
		log.Fatal().Msg("Usage: cli import <user-id> <in.xlsx>")
	}
	userID, inPath := os.Args[2], os.Args[3]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo := newRepo(ctx, log)
	defer repo.Close()

	file, err := os.Open(inPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open workbook")
	}
	defer file.Close()

	txs, err := workbook.Parse(file, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse workbook")
	}

	if err := repo.InsertTransactions(ctx, txs); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert transactions")
	}

	log.Info().Int("transactions", len(txs)).Str("user_id", userID).Msg("Import complete")
}

func runScan(log zerolog.Logger) {
	if len(os.Args) < 3 {
		log.Fatal().Msg("Usage: cli scan <image-file>")
	}
	imagePath := os.Args[2]

	image, err := os.ReadFile(imagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read image")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	scanner := scan.NewScanner(insights.NewGeminiClient(os.Getenv("GEMINI_MODEL")), log)
	details, err := scanner.ScanReceipt(ctx, image, mimeTypeFor(imagePath))
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}

	fmt.Printf("Merchant:  %s\n", details.Merchant)
	fmt.Printf("Amount:    %.2f\n", details.Amount)
	fmt.Printf("Category:  %s\n", details.Category)
	fmt.Printf("Date:      %s\n", details.Date.Format("2006-01-02"))
	fmt.Printf("Icon:      %s\n", details.Icon)
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
