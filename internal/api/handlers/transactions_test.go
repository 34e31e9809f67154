package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/logger"
	"github.com/dkachan/finsight/internal/workbook"
)

type mockRepo struct {
	inserted []*domain.Transaction
	byKind   map[domain.Kind][]domain.Transaction
	deleted  []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{byKind: make(map[domain.Kind][]domain.Transaction)}
}

func (m *mockRepo) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	m.inserted = append(m.inserted, t)
	return nil
}

func (m *mockRepo) ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]domain.Transaction, error) {
	return m.byKind[kind], nil
}

func (m *mockRepo) ListTransactionsByDateRange(ctx context.Context, userID string, kind domain.Kind, start, end time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.byKind[kind] {
		if !t.Date.Before(start) && !t.Date.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	m.deleted = append(m.deleted, transactionID)
	return nil
}

func newTxHandler(repo *mockRepo) *TransactionsHandler {
	h := NewTransactionsHandler(repo, nil, nil, logger.NewWithWriter(io.Discard))
	h.now = func() time.Time { return testNow }
	return h
}

func TestCreateTransaction(t *testing.T) {
	repo := newMockRepo()
	h := newTxHandler(repo)

	body := `{"kind":"expense","label":"Groceries","amount":42.5,"date":"2025-06-10","icon":"🛒"}`
	r := authedRequest(http.MethodPost, "/api/transactions")
	r.Body = io.NopCloser(strings.NewReader(body))

	w := httptest.NewRecorder()
	h.Create(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("inserted %d transactions, want 1", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.UserID != "u1" || got.Kind != domain.KindExpense || got.Amount != 42.5 {
		t.Errorf("inserted = %+v", got)
	}
	if got.ID == "" {
		t.Error("transaction ID not assigned")
	}
	if !got.Date.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", got.Date)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad kind", `{"kind":"transfer","amount":10}`},
		{"negative amount", `{"kind":"expense","amount":-5}`},
		{"bad date", `{"kind":"expense","amount":5,"date":"June 10"}`},
		{"malformed json", `{"kind":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			h := newTxHandler(repo)

			r := authedRequest(http.MethodPost, "/api/transactions")
			r.Body = io.NopCloser(strings.NewReader(tt.body))

			w := httptest.NewRecorder()
			h.Create(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if len(repo.inserted) != 0 {
				t.Errorf("inserted %d transactions, want 0", len(repo.inserted))
			}
		})
	}
}

func TestListTransactionsRejectsUnknownKind(t *testing.T) {
	h := newTxHandler(newMockRepo())

	w := httptest.NewRecorder()
	h.List(w, authedRequest(http.MethodGet, "/api/transactions?kind=transfer"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListTransactionsMergesKinds(t *testing.T) {
	repo := newMockRepo()
	repo.byKind[domain.KindExpense] = []domain.Transaction{{ID: "e1", Kind: domain.KindExpense, Amount: 10, Date: testNow}}
	repo.byKind[domain.KindIncome] = []domain.Transaction{{ID: "i1", Kind: domain.KindIncome, Amount: 20, Date: testNow}}
	h := newTxHandler(repo)

	w := httptest.NewRecorder()
	h.List(w, authedRequest(http.MethodGet, "/api/transactions"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload []transactionPayload
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(payload) != 2 {
		t.Errorf("got %d transactions, want 2", len(payload))
	}
}

func TestDeleteTransaction(t *testing.T) {
	repo := newMockRepo()
	h := newTxHandler(repo)

	w := httptest.NewRecorder()
	h.Delete(w, authedRequest(http.MethodDelete, "/api/transactions/tx-1"), "tx-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "tx-1" {
		t.Errorf("deleted = %v", repo.deleted)
	}
}

func TestExportProducesParsableWorkbook(t *testing.T) {
	repo := newMockRepo()
	repo.byKind[domain.KindExpense] = []domain.Transaction{
		{ID: "e1", UserID: "u1", Kind: domain.KindExpense, Label: "Rent", Amount: 1200, Date: testNow.AddDate(0, 0, -3)},
	}
	repo.byKind[domain.KindIncome] = []domain.Transaction{
		{ID: "i1", UserID: "u1", Kind: domain.KindIncome, Label: "Salary", Amount: 3000, Date: testNow.AddDate(0, 0, -5)},
	}
	h := newTxHandler(repo)

	w := httptest.NewRecorder()
	h.Export(w, authedRequest(http.MethodGet, "/api/transactions/export"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}

	parsed, err := workbook.Parse(bytes.NewReader(w.Body.Bytes()), "u1")
	if err != nil {
		t.Fatalf("parsing exported workbook: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d transactions, want 2", len(parsed))
	}
}

func TestImportUnconfiguredReturns503(t *testing.T) {
	h := newTxHandler(newMockRepo())

	r := authedRequest(http.MethodPost, "/api/transactions/import")
	w := httptest.NewRecorder()
	h.Import(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
