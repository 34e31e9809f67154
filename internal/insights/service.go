package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/summary"
)

// TransactionSource is the read side of the transaction store. The entire
// history is loaded per request; there is no pagination at this scale.
type TransactionSource interface {
	ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]domain.Transaction, error)
}

// CacheStore persists the last successful full-analysis result per user. The
// cached payload has no expiry; it is overwritten wholesale on the next
// success.
type CacheStore interface {
	GetCachedInsight(ctx context.Context, userID string) (data []byte, generatedAt time.Time, ok bool, err error)
	PutCachedInsight(ctx context.Context, userID string, data []byte, generatedAt time.Time) error
}

// Service runs the three analysis flows and the cache read. Quota checks live
// with the caller; by the time a Service method runs, a usage unit has
// already been consumed.
type Service struct {
	txs   TransactionSource
	cache CacheStore
	model ModelClient
	log   zerolog.Logger
	now   func() time.Time
}

// NewService wires the insight service. now may be nil, defaulting to
// time.Now.
func NewService(txs TransactionSource, cache CacheStore, model ModelClient, log zerolog.Logger) *Service {
	return &Service{
		txs:   txs,
		cache: cache,
		model: model,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the wall clock; tests use this to pin asOf.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// FullAnalysisResult is the outcome of GenerateFullAnalysis. When
// InsufficientData is set the counts report progress toward the thresholds
// and all other fields are empty.
type FullAnalysisResult struct {
	InsufficientData bool                   `json:"insufficientData"`
	Sufficiency      *summary.Sufficiency   `json:"dataSufficiency,omitempty"`
	Analysis         map[string]interface{} `json:"analysis,omitempty"`
	GeneratedAt      time.Time              `json:"generatedAt,omitzero"`
	Recommendations  []string               `json:"recommendations,omitempty"`
}

// PredictionResult is the outcome of PredictNextMonthExpenses.
type PredictionResult struct {
	InsufficientData   bool                   `json:"insufficientData"`
	RecentExpenseCount int                    `json:"recentExpenseCount,omitempty"`
	Prediction         map[string]interface{} `json:"prediction,omitempty"`
}

// PatternsResult is the outcome of AnalyzeSpendingPatterns.
type PatternsResult struct {
	InsufficientData   bool                   `json:"insufficientData"`
	RecentExpenseCount int                    `json:"recentExpenseCount,omitempty"`
	Analysis           map[string]interface{} `json:"analysis,omitempty"`
}

// CachedResult is the outcome of GetCachedAnalysis.
type CachedResult struct {
	HasCachedData bool                   `json:"hasCachedData"`
	Analysis      map[string]interface{} `json:"analysis,omitempty"`
	GeneratedAt   time.Time              `json:"generatedAt,omitzero"`
}

func (s *Service) loadHistory(ctx context.Context, userID string) (expenses, incomes []domain.Transaction, err error) {
	expenses, err = s.txs.ListTransactions(ctx, userID, domain.KindExpense)
	if err != nil {
		return nil, nil, fmt.Errorf("loadHistory: list expenses: %w", err)
	}
	incomes, err = s.txs.ListTransactions(ctx, userID, domain.KindIncome)
	if err != nil {
		return nil, nil, fmt.Errorf("loadHistory: list incomes: %w", err)
	}
	return expenses, incomes, nil
}

// GenerateFullAnalysis runs the complete pipeline: aggregate, prompt, call
// the model, normalize, cache. Insufficient data is a normal outcome, not an
// error.
func (s *Service) GenerateFullAnalysis(ctx context.Context, userID string) (*FullAnalysisResult, error) {
	expenses, incomes, err := s.loadHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := summary.Build(expenses, incomes, s.now())
	if !sum.Sufficiency.IsSufficient {
		suff := sum.Sufficiency
		return &FullAnalysisResult{InsufficientData: true, Sufficiency: &suff}, nil
	}

	prompt, err := buildFullAnalysisPrompt(sum, expenses, incomes)
	if err != nil {
		return nil, err
	}

	rawText, err := s.model.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	obj, err := ParseObject(rawText)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("kind", "full").
			Str("raw_response", rawText).Msg("Failed to parse model response")
		return nil, err
	}
	analysis := normalizeFullAnalysis(obj)
	generatedAt := s.now()

	result := &FullAnalysisResult{
		Analysis:        analysis,
		GeneratedAt:     generatedAt,
		Recommendations: StringSliceField(analysis, "recommendations"),
	}

	// Cache failures are logged, not surfaced; the user already has the
	// analysis in hand.
	if data, err := json.Marshal(analysis); err == nil {
		if err := s.cache.PutCachedInsight(ctx, userID, data, generatedAt); err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to cache analysis")
		}
	}

	return result, nil
}

// PredictNextMonthExpenses needs at least 10 expenses in the trailing 3
// months. It has no income requirement.
func (s *Service) PredictNextMonthExpenses(ctx context.Context, userID string) (*PredictionResult, error) {
	expenses, incomes, err := s.loadHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := summary.Build(expenses, incomes, s.now())
	if !sum.SufficientForPrediction() {
		return &PredictionResult{
			InsufficientData:   true,
			RecentExpenseCount: sum.Sufficiency.RecentExpenseCount,
		}, nil
	}

	prompt, err := buildPredictionPrompt(sum, expenses)
	if err != nil {
		return nil, err
	}

	rawText, err := s.model.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	obj, err := ParseObject(rawText)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("kind", "prediction").
			Str("raw_response", rawText).Msg("Failed to parse model response")
		return nil, err
	}
	if _, ok := obj["predictedTotal"]; ok {
		obj["predictedTotal"] = NumberField(obj, "predictedTotal")
	}

	return &PredictionResult{Prediction: obj}, nil
}

// AnalyzeSpendingPatterns needs at least 5 expenses in the trailing 3 months.
func (s *Service) AnalyzeSpendingPatterns(ctx context.Context, userID string) (*PatternsResult, error) {
	expenses, incomes, err := s.loadHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := summary.Build(expenses, incomes, s.now())
	if !sum.SufficientForPatterns() {
		return &PatternsResult{
			InsufficientData:   true,
			RecentExpenseCount: sum.Sufficiency.RecentExpenseCount,
		}, nil
	}

	prompt, err := buildPatternsPrompt(sum, expenses)
	if err != nil {
		return nil, err
	}

	rawText, err := s.model.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	obj, err := ParseObject(rawText)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("kind", "patterns").
			Str("raw_response", rawText).Msg("Failed to parse model response")
		return nil, err
	}

	return &PatternsResult{Analysis: obj}, nil
}

// GetCachedAnalysis returns the last stored full-analysis payload without
// touching quota.
func (s *Service) GetCachedAnalysis(ctx context.Context, userID string) (*CachedResult, error) {
	data, generatedAt, ok, err := s.cache.GetCachedInsight(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetCachedAnalysis: %w", err)
	}
	if !ok {
		return &CachedResult{}, nil
	}

	var analysis map[string]interface{}
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("GetCachedAnalysis: corrupt cached payload: %w", err)
	}

	return &CachedResult{
		HasCachedData: true,
		Analysis:      analysis,
		GeneratedAt:   generatedAt,
	}, nil
}
