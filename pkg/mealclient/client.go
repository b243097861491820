/**
 * @description
 * This package provides a client for the meal subscription backend.
 * It wraps the three edit-flow endpoints (subscription lookup, price difference
 * calculation, apply edit) and the meal set catalog, and maps HTTP failures onto
 * the domain error taxonomy.
 *
 * @notes
 * - The caller's bearer token comes from an explicit domain.Session; the client
 *   never reads tokens from ambient state.
 * - The catalog endpoint is called with the service's internal API key.
 * - No call is retried here. Retrying is the user's decision.
 */
package mealclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

const maxErrorBodyBytes = 4096

// Client is a client for the meal subscription backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new backend client. A zero timeout falls back to 30 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type calculateRequest struct {
	SubscriptionID string                `json:"subscriptionId"`
	NewSchedule    domain.WeeklySchedule `json:"newSchedule"`
	EditReason     string                `json:"editReason"`
}

// GetSubscription fetches the current subscription, including its schedule.
func (c *Client) GetSubscription(ctx context.Context, session domain.Session, subscriptionID string) (*domain.Subscription, error) {
	endpoint := fmt.Sprintf("/subscriptions/%s", url.PathEscape(subscriptionID))

	body, err := c.do(ctx, http.MethodGet, endpoint, session.Token, nil)
	if err != nil {
		return nil, err
	}

	var wire subscriptionWire
	if err := json.Unmarshal(unwrapData(body), &wire); err != nil {
		return nil, fmt.Errorf("%w: failed to decode subscription: %v", domain.ErrUnexpectedServerState, err)
	}
	sub, err := wire.toDomain()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnexpectedServerState, err)
	}
	if sub.ID == "" {
		sub.ID = subscriptionID
	}
	return sub, nil
}

// CalculatePriceDifference asks the backend for the prorated cost of moving to
// newSchedule. The endpoint has no side effects. The returned result is
// normalized but not yet classified.
func (c *Client) CalculatePriceDifference(ctx context.Context, session domain.Session, subscriptionID string, newSchedule domain.WeeklySchedule, editReason string) (domain.PriceCalculationResult, error) {
	endpoint := fmt.Sprintf("/subscriptions/%s/calculate-price-difference", url.PathEscape(subscriptionID))
	payload := calculateRequest{
		SubscriptionID: subscriptionID,
		NewSchedule:    newSchedule,
		EditReason:     editReason,
	}

	body, err := c.do(ctx, http.MethodPost, endpoint, session.Token, payload)
	if err != nil {
		return domain.PriceCalculationResult{}, err
	}
	return NormalizePriceDifference(body)
}

// ApplyEditResponse is the backend's answer to an apply-edit request.
type ApplyEditResponse struct {
	EditStatus string
	PaymentURL string
	PaymentID  string
}

// ApplyEdit submits the new schedule. The backend decides the resulting status.
func (c *Client) ApplyEdit(ctx context.Context, session domain.Session, req domain.ApplyEditRequest) (*ApplyEditResponse, error) {
	endpoint := fmt.Sprintf("/subscriptions/%s/apply-edit", url.PathEscape(req.SubscriptionID))

	body, err := c.do(ctx, http.MethodPost, endpoint, session.Token, req)
	if err != nil {
		return nil, err
	}
	return NormalizeApplyEdit(body)
}

// ListMealSets returns every meal set the backend knows about.
func (c *Client) ListMealSets(ctx context.Context) ([]domain.MealSet, error) {
	body, err := c.do(ctx, http.MethodGet, "/meal-sets", "", nil)
	if err != nil {
		return nil, err
	}

	var sets []mealSetWire
	if err := json.Unmarshal(unwrapData(body), &sets); err != nil {
		return nil, fmt.Errorf("%w: failed to decode meal sets: %v", domain.ErrUnexpectedServerState, err)
	}

	out := make([]domain.MealSet, 0, len(sets))
	for _, s := range sets {
		id := firstNonEmpty(s.ID, s.SetID, s.UnderscoreID)
		if id == "" {
			continue
		}
		out = append(out, domain.MealSet{
			ID:       id,
			VendorID: s.VendorID,
			Name:     firstNonEmpty(s.Name, s.SetName),
			Price:    decimalFromRaw(s.Price),
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, payload interface{}) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("subscription backend base url is empty")
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", domain.ErrNetwork, err)
	}

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// statusError maps a backend HTTP status onto the domain error taxonomy.
func statusError(status int, body []byte) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrSessionExpired
	case status == http.StatusNotFound:
		return domain.ErrSubscriptionNotFound
	case status >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrServerFailure, status)
	default:
		if msg := backendMessage(body); msg != "" {
			return &RejectedError{Status: status, Message: msg}
		}
		return &RejectedError{Status: status, Message: http.StatusText(status)}
	}
}

// RejectedError carries the backend's message for a non-auth 4xx response.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("subscription backend rejected the request (status %d): %s", e.Status, e.Message)
}

func (e *RejectedError) Unwrap() error {
	return domain.ErrBackendRejected
}

func backendMessage(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(firstNonEmpty(payload.Message, payload.Error))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var errNoData = errors.New("no data envelope")

// unwrapData returns the "data" member when the body is wrapped in an envelope.
func unwrapData(body []byte) []byte {
	inner, err := dataMember(body)
	if err != nil {
		return body
	}
	return inner
}

func dataMember(body []byte) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	data, ok := envelope["data"]
	if !ok || len(data) == 0 || string(data) == "null" {
		return nil, errNoData
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, errNoData
	}
	return data, nil
}
