package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkachan/finsight/internal/api/handlers"
	"github.com/dkachan/finsight/internal/api/middleware"
	"github.com/dkachan/finsight/internal/config"
	infraBQ "github.com/dkachan/finsight/internal/infra/bigquery"
	"github.com/dkachan/finsight/internal/insights"
	"github.com/dkachan/finsight/internal/jobs"
	"github.com/dkachan/finsight/internal/jobs/inmemory"
	"github.com/dkachan/finsight/internal/logger"
	"github.com/dkachan/finsight/internal/objectstore"
	"github.com/dkachan/finsight/internal/quota"
	"github.com/dkachan/finsight/internal/scan"
	"github.com/dkachan/finsight/internal/workbook"
)

func main() {
	log := logger.New("finsight-api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - receipt archiving and workbook import will be disabled")
	}

	ctx := context.Background()

	repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	var objects objectstore.Store
	if cfg.Bucket != "" {
		objects = objectstore.NewGCSStore(cfg.Bucket)
	}

	model := insights.NewGeminiClient(cfg.ModelName)
	governor := quota.NewGovernor(repo)
	insightSvc := insights.NewService(repo, repo, model, log)
	scanner := scan.NewScanner(model, log)

	// Job infrastructure for async workbook imports.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	importHandler := func(ctx context.Context, job *jobs.ImportJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("user_id", job.UserID).
			Str("gcs_uri", job.GCSURI).
			Msg("Processing import job")

		data, err := objects.Fetch(ctx, job.GCSURI)
		if err != nil {
			return err
		}

		txs, err := workbook.Parse(bytes.NewReader(data), job.UserID)
		if err != nil {
			return err
		}

		if err := repo.InsertTransactions(ctx, txs); err != nil {
			return err
		}

		job.ImportedCount = len(txs)
		log.Info().
			Str("job_id", job.JobID).
			Int("imported", len(txs)).
			Msg("Import job completed")
		return nil
	}

	go func() {
		log.Info().Msg("Starting import worker")
		if err := jobQueue.Start(workerCtx, importHandler); err != nil {
			log.Error().Err(err).Msg("Import worker stopped with error")
		}
	}()

	insightsHandler := handlers.NewInsightsHandler(insightSvc, governor, log)
	transactionsHandler := handlers.NewTransactionsHandler(repo, objects, jobQueue, log)
	scanHandler := handlers.NewScanHandler(scanner, governor, repo, objects, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	api := http.NewServeMux()

	// Insights endpoints
	api.HandleFunc("/api/insights/full", postOnly(insightsHandler.FullAnalysis))
	api.HandleFunc("/api/insights/prediction", postOnly(insightsHandler.Prediction))
	api.HandleFunc("/api/insights/patterns", postOnly(insightsHandler.Patterns))
	api.HandleFunc("/api/insights/cached", getOnly(insightsHandler.Cached))

	// Usage endpoint
	api.HandleFunc("/api/usage", getOnly(insightsHandler.Usage))

	// Scan endpoint
	api.HandleFunc("/api/scan", postOnly(scanHandler.ScanReceipt))

	// Transactions endpoints
	api.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.List(w, r)
		case http.MethodPost:
			transactionsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	api.HandleFunc("/api/transactions/export", getOnly(transactionsHandler.Export))
	api.HandleFunc("/api/transactions/import", postOnly(transactionsHandler.Import))

	api.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		transactionID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		transactionsHandler.Delete(w, r, transactionID)
	})

	// Jobs endpoints
	api.HandleFunc("/api/jobs", getOnly(jobsHandler.ListJobs))
	api.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	// The health check stays outside the auth boundary.
	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Auth(api))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return methodOnly(http.MethodGet, h)
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return methodOnly(http.MethodPost, h)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
