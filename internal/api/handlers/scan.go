package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkachan/finsight/internal/api/middleware"
	"github.com/dkachan/finsight/internal/insights"
	"github.com/dkachan/finsight/internal/objectstore"
	"github.com/dkachan/finsight/internal/quota"
	"github.com/dkachan/finsight/internal/scan"
)

// maxScanSize bounds uploaded receipt images.
const maxScanSize = 8 << 20

// ScanHandler serves the bill scan endpoint. Each scan consumes one unit of
// the daily bill scan quota before the model is called.
type ScanHandler struct {
	scanner  *scan.Scanner
	governor *quota.Governor
	repo     TransactionRepository
	objects  objectstore.Store
	log      zerolog.Logger
}

// NewScanHandler creates a new scan handler. objects may be nil; the original
// image is then not archived.
func NewScanHandler(scanner *scan.Scanner, governor *quota.Governor, repo TransactionRepository, objects objectstore.Store, log zerolog.Logger) *ScanHandler {
	return &ScanHandler{
		scanner:  scanner,
		governor: governor,
		repo:     repo,
		objects:  objects,
		log:      log,
	}
}

// ScanReceipt handles POST /api/scan
func (h *ScanHandler) ScanReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserIDFrom(ctx)

	decision, err := h.governor.CheckAndConsume(ctx, userID, quota.KindBillScans)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Quota check failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check usage quota")
		return
	}
	if !decision.Allowed {
		middleware.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":     "Daily bill scan limit reached",
			"limit":     decision.Limit,
			"used":      decision.Used,
			"resetTime": decision.ResetTime,
		})
		return
	}

	image, mimeType, err := readImage(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.scanner.ScanReceipt(ctx, image, mimeType)
	if err != nil {
		h.writeScanError(w, userID, err)
		return
	}

	t := details.Transaction(userID)
	t.ID = uuid.NewString()
	if err := h.repo.InsertTransaction(ctx, t); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to save scanned transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save scanned transaction")
		return
	}

	// Archiving the original image is best effort.
	if h.objects != nil {
		objectName := fmt.Sprintf("receipts/%s/%s", userID, t.ID)
		if _, err := h.objects.Upload(ctx, objectName, image, mimeType); err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to archive receipt image")
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bill":        details,
		"transaction": payloadFrom(*t),
		"usage":       decision,
	})
}

func (h *ScanHandler) writeScanError(w http.ResponseWriter, userID string, err error) {
	log := h.log.With().Str("user_id", userID).Logger()

	var parseErr *insights.ParseError
	var upstreamErr *insights.UpstreamError

	switch {
	case errors.Is(err, insights.ErrMissingCredential):
		log.Error().Err(err).Msg("AI credential missing")
		middleware.WriteError(w, http.StatusServiceUnavailable, "AI service is not configured")
	case errors.As(err, &parseErr):
		log.Error().Err(err).Msg("Receipt could not be parsed")
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Could not read the receipt, please try a clearer photo")
	case errors.As(err, &upstreamErr):
		log.Error().Err(err).Msg("AI call failed")
		middleware.WriteError(w, http.StatusBadGateway, "AI service unavailable, please try again")
	default:
		log.Error().Err(err).Msg("Receipt scan failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to scan receipt")
	}
}

// readImage accepts either a multipart form with an "image" field or a raw
// image body.
func readImage(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxScanSize); err != nil {
			return nil, "", fmt.Errorf("invalid multipart form")
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", fmt.Errorf("image field is required")
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxScanSize))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read uploaded image")
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return data, mimeType, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxScanSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body")
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image body is required")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
