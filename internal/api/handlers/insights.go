package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/api/middleware"
	"github.com/dkachan/finsight/internal/insights"
	"github.com/dkachan/finsight/internal/quota"
)

// InsightsHandler serves the AI insight endpoints. Every generation endpoint
// consumes one unit of the daily insights quota before the model is called,
// so a failed generation still counts against the ceiling.
type InsightsHandler struct {
	svc      *insights.Service
	governor *quota.Governor
	log      zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(svc *insights.Service, governor *quota.Governor, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{
		svc:      svc,
		governor: governor,
		log:      log,
	}
}

// FullAnalysis handles POST /api/insights/full
func (h *InsightsHandler) FullAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	decision, ok := h.consumeQuota(w, r, userID)
	if !ok {
		return
	}

	result, err := h.svc.GenerateFullAnalysis(ctx, userID)
	if err != nil {
		h.writeInsightError(w, userID, "full analysis", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"usage":  decision,
	})
}

// Prediction handles POST /api/insights/prediction
func (h *InsightsHandler) Prediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	decision, ok := h.consumeQuota(w, r, userID)
	if !ok {
		return
	}

	result, err := h.svc.PredictNextMonthExpenses(ctx, userID)
	if err != nil {
		h.writeInsightError(w, userID, "prediction", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"usage":  decision,
	})
}

// Patterns handles POST /api/insights/patterns
func (h *InsightsHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	decision, ok := h.consumeQuota(w, r, userID)
	if !ok {
		return
	}

	result, err := h.svc.AnalyzeSpendingPatterns(ctx, userID)
	if err != nil {
		h.writeInsightError(w, userID, "patterns", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"usage":  decision,
	})
}

// Cached handles GET /api/insights/cached. Reading the cache never touches
// the quota.
func (h *InsightsHandler) Cached(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	result, err := h.svc.GetCachedAnalysis(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to read cached insight")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read cached analysis")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Usage handles GET /api/usage
func (h *InsightsHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	stats, err := h.governor.Stats(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to read usage stats")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read usage stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// consumeQuota runs the daily insights quota check and writes the denial
// response itself. The second return value reports whether the request may
// proceed.
func (h *InsightsHandler) consumeQuota(w http.ResponseWriter, r *http.Request, userID string) (quota.Decision, bool) {
	decision, err := h.governor.CheckAndConsume(r.Context(), userID, quota.KindInsights)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Quota check failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check usage quota")
		return quota.Decision{}, false
	}

	if !decision.Allowed {
		middleware.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":     "Daily insights limit reached",
			"limit":     decision.Limit,
			"used":      decision.Used,
			"resetTime": decision.ResetTime,
		})
		return decision, false
	}

	return decision, true
}

// writeInsightError maps generation failures to client responses without
// leaking raw model output.
func (h *InsightsHandler) writeInsightError(w http.ResponseWriter, userID, op string, err error) {
	log := h.log.With().Str("user_id", userID).Str("operation", op).Logger()

	var parseErr *insights.ParseError
	var upstreamErr *insights.UpstreamError

	switch {
	case errors.Is(err, insights.ErrMissingCredential):
		log.Error().Err(err).Msg("AI credential missing")
		middleware.WriteError(w, http.StatusServiceUnavailable, "AI service is not configured")
	case errors.As(err, &parseErr):
		log.Error().Err(err).Int("raw_len", len(parseErr.Raw)).Msg("AI response could not be parsed")
		middleware.WriteError(w, http.StatusBadGateway, "AI response could not be processed, please try again")
	case errors.As(err, &upstreamErr):
		log.Error().Err(err).Msg("AI call failed")
		middleware.WriteError(w, http.StatusBadGateway, "AI service unavailable, please try again")
	default:
		log.Error().Err(err).Msg("Insight generation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate insights")
	}
}
