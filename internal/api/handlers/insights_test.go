package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkachan/finsight/internal/api/middleware"
	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/insights"
	"github.com/dkachan/finsight/internal/logger"
	"github.com/dkachan/finsight/internal/quota"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type stubTxSource struct {
	expenses []domain.Transaction
	incomes  []domain.Transaction
}

func (s *stubTxSource) ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]domain.Transaction, error) {
	if kind == domain.KindExpense {
		return s.expenses, nil
	}
	return s.incomes, nil
}

type stubCache struct {
	data []byte
	ts   time.Time
}

func (s *stubCache) GetCachedInsight(ctx context.Context, userID string) ([]byte, time.Time, bool, error) {
	return s.data, s.ts, s.data != nil, nil
}

func (s *stubCache) PutCachedInsight(ctx context.Context, userID string, data []byte, generatedAt time.Time) error {
	s.data = data
	s.ts = generatedAt
	return nil
}

type stubModel struct {
	response string
	err      error
}

func (s *stubModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubModel) GenerateFromImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error) {
	return s.response, s.err
}

type memQuotaStore struct {
	usage map[string]quota.Usage
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{usage: make(map[string]quota.Usage)}
}

func (s *memQuotaStore) GetUsage(ctx context.Context, userID string) (quota.Usage, error) {
	return s.usage[userID], nil
}

func (s *memQuotaStore) SetCounter(ctx context.Context, userID string, kind quota.Kind, c quota.Counter) error {
	u := s.usage[userID]
	if kind == quota.KindInsights {
		u.Insights = c
	} else {
		u.BillScans = c
	}
	s.usage[userID] = u
	return nil
}

func richHistory() []domain.Transaction {
	var txs []domain.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, domain.Transaction{
			UserID: "u1",
			Kind:   domain.KindExpense,
			Label:  "Groceries",
			Amount: 100,
			Date:   testNow.AddDate(0, 0, -i),
		})
	}
	return txs
}

func incomeHistory() []domain.Transaction {
	var txs []domain.Transaction
	for i := 0; i < 4; i++ {
		txs = append(txs, domain.Transaction{
			UserID: "u1",
			Kind:   domain.KindIncome,
			Label:  "Salary",
			Amount: 1000,
			Date:   testNow.AddDate(0, 0, -i),
		})
	}
	return txs
}

func newTestHandler(model *stubModel, store quota.Store) *InsightsHandler {
	log := logger.NewWithWriter(io.Discard)
	svc := insights.NewService(
		&stubTxSource{expenses: richHistory(), incomes: incomeHistory()},
		&stubCache{},
		model,
		log,
	).WithClock(func() time.Time { return testNow })
	governor := quota.NewGovernor(store).WithClock(func() time.Time { return testNow })
	return NewInsightsHandler(svc, governor, log)
}

func authedRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	return r.WithContext(middleware.WithUserID(r.Context(), "u1"))
}

func TestFullAnalysisSuccessAttachesUsage(t *testing.T) {
	model := &stubModel{response: "```json\n{\"healthScore\": 80, \"recommendations\": [\"save more\"]}\n```"}
	h := newTestHandler(model, newMemQuotaStore())

	w := httptest.NewRecorder()
	h.FullAnalysis(w, authedRequest(http.MethodPost, "/api/insights/full"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Result struct {
			Analysis        map[string]interface{} `json:"analysis"`
			Recommendations []string               `json:"recommendations"`
		} `json:"result"`
		Usage quota.Decision `json:"usage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Result.Analysis["healthScore"] != float64(80) {
		t.Errorf("healthScore = %v, want 80", resp.Result.Analysis["healthScore"])
	}
	if len(resp.Result.Recommendations) != 1 {
		t.Errorf("recommendations = %v", resp.Result.Recommendations)
	}
	if resp.Usage.Used != 1 || resp.Usage.Limit != quota.InsightsDailyLimit {
		t.Errorf("usage = %+v, want used 1 limit %d", resp.Usage, quota.InsightsDailyLimit)
	}
}

func TestInsightsQuotaExhaustionReturns429(t *testing.T) {
	model := &stubModel{response: "{\"healthScore\": 80}"}
	store := newMemQuotaStore()
	h := newTestHandler(model, store)

	for i := 0; i < quota.InsightsDailyLimit; i++ {
		w := httptest.NewRecorder()
		h.FullAnalysis(w, authedRequest(http.MethodPost, "/api/insights/full"))
		if w.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.FullAnalysis(w, authedRequest(http.MethodPost, "/api/insights/full"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	var resp struct {
		Limit     int       `json:"limit"`
		Used      int       `json:"used"`
		ResetTime time.Time `json:"resetTime"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Used != quota.InsightsDailyLimit || resp.Limit != quota.InsightsDailyLimit {
		t.Errorf("denial = %+v", resp)
	}
	wantReset := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	if !resp.ResetTime.Equal(wantReset) {
		t.Errorf("resetTime = %v, want %v", resp.ResetTime, wantReset)
	}
}

func TestUpstreamFailureStillConsumesQuota(t *testing.T) {
	model := &stubModel{err: &insights.UpstreamError{Op: "generate", Err: context.DeadlineExceeded}}
	store := newMemQuotaStore()
	h := newTestHandler(model, store)

	w := httptest.NewRecorder()
	h.FullAnalysis(w, authedRequest(http.MethodPost, "/api/insights/full"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}

	if used := store.usage["u1"].Insights.Count; used != 1 {
		t.Errorf("insights used = %d, want 1 after failed call", used)
	}
}

func TestGarbledModelOutputDoesNotLeak(t *testing.T) {
	model := &stubModel{response: "I cannot help with that."}
	h := newTestHandler(model, newMemQuotaStore())

	w := httptest.NewRecorder()
	h.FullAnalysis(w, authedRequest(http.MethodPost, "/api/insights/full"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["error"] == "" || resp["error"] == "I cannot help with that." {
		t.Errorf("error message leaks raw output or is empty: %q", resp["error"])
	}
}

func TestUsageEndpoint(t *testing.T) {
	h := newTestHandler(&stubModel{response: "{}"}, newMemQuotaStore())

	w := httptest.NewRecorder()
	h.Usage(w, authedRequest(http.MethodGet, "/api/usage"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats quota.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if stats.Insights.Limit != quota.InsightsDailyLimit || stats.BillScans.Limit != quota.BillScansDailyLimit {
		t.Errorf("stats = %+v", stats)
	}
}
