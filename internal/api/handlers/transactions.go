package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/api/middleware"
	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/jobs"
	"github.com/dkachan/finsight/internal/objectstore"
	"github.com/dkachan/finsight/internal/workbook"
)

const dateFormat = "2006-01-02"

// maxImportSize bounds uploaded workbook files.
const maxImportSize = 10 << 20

// TransactionRepository is the persistence port used by the transaction
// endpoints.
type TransactionRepository interface {
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]domain.Transaction, error)
	ListTransactionsByDateRange(ctx context.Context, userID string, kind domain.Kind, start, end time.Time) ([]domain.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
}

// transactionPayload is the wire shape of one transaction.
type transactionPayload struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Amount    float64   `json:"amount"`
	Date      string    `json:"date"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func payloadFrom(t domain.Transaction) transactionPayload {
	return transactionPayload{
		ID:        t.ID,
		Kind:      string(t.Kind),
		Label:     t.Label,
		Amount:    t.Amount,
		Date:      t.Date.Format(dateFormat),
		Icon:      t.Icon,
		CreatedAt: t.CreatedAt,
	}
}

// TransactionsHandler handles transaction CRUD plus workbook export/import.
type TransactionsHandler struct {
	repo      TransactionRepository
	objects   objectstore.Store
	publisher jobs.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewTransactionsHandler creates a new transactions handler. objects and
// publisher may be nil when no bucket is configured; import then responds 503.
func NewTransactionsHandler(repo TransactionRepository, objects objectstore.Store, publisher jobs.Publisher, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo:      repo,
		objects:   objects,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// List handles GET /api/transactions
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	query := r.URL.Query()
	kind := domain.Kind(query.Get("kind"))
	if kind != "" && kind != domain.KindIncome && kind != domain.KindExpense {
		middleware.WriteError(w, http.StatusBadRequest, "kind must be income or expense")
		return
	}

	startStr := query.Get("start_date")
	endStr := query.Get("end_date")

	var list []domain.Transaction
	var err error

	if startStr != "" || endStr != "" {
		start, end, perr := parseDateRange(startStr, endStr, h.now())
		if perr != nil {
			middleware.WriteError(w, http.StatusBadRequest, perr.Error())
			return
		}
		list, err = h.listRange(ctx, userID, kind, start, end)
	} else {
		list, err = h.listAll(ctx, userID, kind)
	}
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	payload := make([]transactionPayload, 0, len(list))
	for _, t := range list {
		payload = append(payload, payloadFrom(t))
	}
	middleware.WriteJSON(w, http.StatusOK, payload)
}

func (h *TransactionsHandler) listAll(ctx context.Context, userID string, kind domain.Kind) ([]domain.Transaction, error) {
	if kind != "" {
		return h.repo.ListTransactions(ctx, userID, kind)
	}
	expenses, err := h.repo.ListTransactions(ctx, userID, domain.KindExpense)
	if err != nil {
		return nil, err
	}
	incomes, err := h.repo.ListTransactions(ctx, userID, domain.KindIncome)
	if err != nil {
		return nil, err
	}
	return append(expenses, incomes...), nil
}

func (h *TransactionsHandler) listRange(ctx context.Context, userID string, kind domain.Kind, start, end time.Time) ([]domain.Transaction, error) {
	if kind != "" {
		return h.repo.ListTransactionsByDateRange(ctx, userID, kind, start, end)
	}
	expenses, err := h.repo.ListTransactionsByDateRange(ctx, userID, domain.KindExpense, start, end)
	if err != nil {
		return nil, err
	}
	incomes, err := h.repo.ListTransactionsByDateRange(ctx, userID, domain.KindIncome, start, end)
	if err != nil {
		return nil, err
	}
	return append(expenses, incomes...), nil
}

// Create handles POST /api/transactions
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	var req struct {
		Kind   string  `json:"kind"`
		Label  string  `json:"label"`
		Amount float64 `json:"amount"`
		Date   string  `json:"date"`
		Icon   string  `json:"icon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind := domain.Kind(req.Kind)
	if kind != domain.KindIncome && kind != domain.KindExpense {
		middleware.WriteError(w, http.StatusBadRequest, "kind must be income or expense")
		return
	}
	if req.Amount < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	date := h.now()
	if req.Date != "" {
		parsed, err := time.Parse(dateFormat, req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	t := &domain.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Label:     req.Label,
		Amount:    req.Amount,
		Date:      date,
		Icon:      req.Icon,
		CreatedAt: h.now(),
	}

	if err := h.repo.InsertTransaction(ctx, t); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to insert transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, payloadFrom(*t))
}

// Delete handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request, transactionID string) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	if transactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
		return
	}

	if err := h.repo.DeleteTransaction(ctx, userID, transactionID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Str("transaction_id", transactionID).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Export handles GET /api/transactions/export, streaming the full history as
// an xlsx workbook.
func (h *TransactionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	list, err := h.listAll(ctx, userID, "")
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load transactions for export")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export transactions")
		return
	}

	f, err := workbook.Build(list)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to build workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export transactions")
		return
	}

	filename := fmt.Sprintf("transactions-%s.xlsx", h.now().Format(dateFormat))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := f.Write(w); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to stream workbook")
	}
}

// Import handles POST /api/transactions/import. The workbook is stored in
// the object bucket and imported asynchronously; the response carries the job
// ID to poll.
func (h *TransactionsHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	if h.objects == nil || h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Import is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportSize))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	objectName := fmt.Sprintf("imports/%s/%s-%s", userID, uuid.NewString(), header.Filename)
	gcsURI, err := h.objects.Upload(ctx, objectName, data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to upload workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store uploaded file")
		return
	}

	job := &jobs.ImportJob{
		UserID:   userID,
		GCSURI:   gcsURI,
		Filename: header.Filename,
	}
	if err := h.publisher.PublishImport(ctx, job); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", userID).Str("gcs_uri", gcsURI).Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

func parseDateRange(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	start := now.AddDate(-1, 0, 0)
	end := now

	if startStr != "" {
		parsed, err := time.Parse(dateFormat, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format, expected YYYY-MM-DD")
		}
		start = parsed
	}
	if endStr != "" {
		parsed, err := time.Parse(dateFormat, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format, expected YYYY-MM-DD")
		}
		end = parsed
	}
	return start, end, nil
}
