/**
 * @description
 * This file contains the HTTP handler functions for the subscription-edit-service.
 * Handlers parse requests, call the edit service and map its errors onto status
 * codes with a machine-readable kind.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
	"github.com/tiffinbox/subscription-edit-service/pkg/mealclient"
)

const maxRequestBodyBytes = 1 << 20

// EditService is the part of app.Service the handlers use.
type EditService interface {
	GetSubscription(ctx context.Context, session domain.Session, subscriptionID string) (*domain.Subscription, error)
	CalculatePriceDifference(ctx context.Context, session domain.Session, subscriptionID string, newSchedule domain.WeeklySchedule, editReason string) (domain.PriceCalculationResult, error)
	EstimatePriceDifference(ctx context.Context, session domain.Session, subscriptionID string, newSchedule domain.WeeklySchedule) (domain.PriceCalculationResult, error)
	ApplyEdit(ctx context.Context, session domain.Session, req domain.ApplyEditRequest) (*domain.EditOutcome, error)
	DiscardEdit(session domain.Session, subscriptionID string)
	EditHistory(ctx context.Context, session domain.Session, subscriptionID string, limit int) ([]domain.EditAuditRecord, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service EditService
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service EditService) *Handler {
	return &Handler{service: service}
}

type previewRequest struct {
	NewSchedule domain.WeeklySchedule `json:"newSchedule"`
	EditReason  string                `json:"editReason"`
}

type applyRequest struct {
	NewSchedule       domain.WeeklySchedule `json:"newSchedule"`
	EditReason        string                `json:"editReason"`
	AdditionalPayment decimal.Decimal       `json:"additionalPayment"`
	RefundAmount      decimal.Decimal       `json:"refundAmount"`
}

func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handlePreviewEdit returns the backend's prorated price difference for a proposed schedule.
func (h *Handler) handlePreviewEdit(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
		return
	}

	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.CalculatePriceDifference(r.Context(), session, chi.URLParam(r, "id"), req.NewSchedule, req.EditReason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEstimateEdit(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
		return
	}

	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.EstimatePriceDifference(r.Context(), session, chi.URLParam(r, "id"), req.NewSchedule)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleApplyEdit submits the edit. A PENDING_PAYMENT outcome is still a 200;
// the caller reads action and paymentUrl to continue.
func (h *Handler) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
		return
	}

	var req applyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := h.service.ApplyEdit(r.Context(), session, domain.ApplyEditRequest{
		SubscriptionID:    chi.URLParam(r, "id"),
		NewSchedule:       req.NewSchedule,
		EditReason:        req.EditReason,
		AdditionalPayment: req.AdditionalPayment,
		RefundAmount:      req.RefundAmount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleDiscardEdit(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
		return
	}

	h.service.DiscardEdit(session, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEditHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_REQUEST")
			return
		}
		limit = parsed
	}

	records, err := h.service.EditHistory(r.Context(), session, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"edits": records})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return false
	}
	return true
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusUnprocessableEntity, validationErr.Message, string(validationErr.Kind))
		return
	}

	var rejectedErr *mealclient.RejectedError
	switch {
	case errors.Is(err, domain.ErrEditInFlight):
		writeError(w, http.StatusConflict, "An edit request for this subscription is already in progress", "EDIT_IN_FLIGHT")
	case errors.Is(err, domain.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "Session expired; please sign in again", "SESSION_EXPIRED")
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
	case errors.As(err, &rejectedErr):
		writeError(w, http.StatusUnprocessableEntity, rejectedErr.Message, "BACKEND_REJECTED")
	case errors.Is(err, domain.ErrNetwork):
		writeGatewayError(w, err, "Could not reach the subscription service; please try again", "NETWORK")
	case errors.Is(err, domain.ErrServerFailure):
		writeGatewayError(w, err, "The subscription service failed; please try again", "SERVER_FAILURE")
	case errors.Is(err, domain.ErrUnexpectedServerState):
		writeGatewayError(w, err, "The subscription service returned an unexpected response", "UNEXPECTED_SERVER_STATE")
	default:
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "INTERNAL")
	}
}

// writeGatewayError writes a 502 whose retryable flag follows domain.IsRetryable.
func writeGatewayError(w http.ResponseWriter, err error, message, kind string) {
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: message, Kind: kind, Retryable: domain.IsRetryable(err)})
}

func writeError(w http.ResponseWriter, code int, message, kind string) {
	writeJSON(w, code, errorResponse{Error: message, Kind: kind})
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
