/**
 * @description
 * This file contains the core business logic for subscription schedule edits.
 * The Service validates proposed schedules, short-circuits unchanged edits,
 * delegates cost calculation and apply requests to the subscription backend,
 * and maps the backend's answers onto explicit outcomes.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
	"github.com/tiffinbox/subscription-edit-service/pkg/mealclient"
)

// Backend defines the subscription backend calls the service needs.
type Backend interface {
	GetSubscription(ctx context.Context, session domain.Session, subscriptionID string) (*domain.Subscription, error)
	CalculatePriceDifference(ctx context.Context, session domain.Session, subscriptionID string, newSchedule domain.WeeklySchedule, editReason string) (domain.PriceCalculationResult, error)
	ApplyEdit(ctx context.Context, session domain.Session, req domain.ApplyEditRequest) (*mealclient.ApplyEditResponse, error)
}

// EventPublisher publishes edit events for downstream consumers.
type EventPublisher interface {
	PublishEditEvent(ctx context.Context, event domain.EditEvent) error
}

// AuditRecorder stores apply-edit outcomes.
type AuditRecorder interface {
	RecordEdit(ctx context.Context, record domain.EditAuditRecord) error
	ListEditsBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.EditAuditRecord, error)
}

// Service provides the business logic for subscription schedule edits.
type Service struct {
	backend   Backend
	catalog   *Catalog
	guard     InFlightGuard
	sessions  *EditSessions
	publisher EventPublisher
	audit     AuditRecorder
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Backend   Backend
	Catalog   *Catalog
	Guard     InFlightGuard
	Sessions  *EditSessions
	Publisher EventPublisher
	Audit     AuditRecorder
	Logger    *slog.Logger
	Location  *time.Location
}

// NewService creates a new edit service. Missing optional collaborators are
// replaced with in-memory or no-op versions.
func NewService(deps Deps) *Service {
	s := &Service{
		backend:   deps.Backend,
		catalog:   deps.Catalog,
		guard:     deps.Guard,
		sessions:  deps.Sessions,
		publisher: deps.Publisher,
		audit:     deps.Audit,
		logger:    deps.Logger,
		location:  deps.Location,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.catalog == nil {
		s.catalog = NewCatalog(nil, s.logger)
	}
	if s.guard == nil {
		s.guard = NewMemoryInFlightGuard()
	}
	if s.sessions == nil {
		s.sessions = NewEditSessions(30 * time.Minute)
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.audit == nil {
		s.audit = NoopAuditRecorder{}
	}
	if s.location == nil {
		s.location = time.UTC
	}
	return s
}

func (s *Service) today() time.Time {
	return s.now().In(s.location)
}

// GetSubscription loads a subscription for editing. The loaded copy is kept as
// the edit session's current schedule until the edit is applied or discarded.
func (s *Service) GetSubscription(ctx context.Context, session domain.Session, subscriptionID string) (*domain.Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.New("subscription ID cannot be empty")
	}

	sub, err := s.backend.GetSubscription(ctx, session, subscriptionID)
	if err != nil {
		s.logger.Warn("failed to load subscription", "subscription_id", subscriptionID, "user_id", session.UserID, "error", err)
		return nil, err
	}

	sub.Schedule = sub.Schedule.Normalize()
	sub.RemainingDays = domain.RemainingDays(*sub, s.today())
	s.sessions.Put(session.UserID, subscriptionID, *sub)

	view := *sub
	view.Schedule = s.catalog.Enrich(sub.Schedule)
	return &view, nil
}

// DiscardEdit forgets the edit session for a subscription.
func (s *Service) DiscardEdit(session domain.Session, subscriptionID string) {
	s.sessions.Drop(session.UserID, subscriptionID)
}

// currentSubscription returns the edit session's copy when one is open and
// falls back to loading it from the backend.
func (s *Service) currentSubscription(ctx context.Context, session domain.Session, subscriptionID string) (domain.Subscription, error) {
	if sub, ok := s.sessions.Get(session.UserID, subscriptionID); ok {
		return sub, nil
	}
	sub, err := s.GetSubscription(ctx, session, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Schedule = sub.Schedule.Normalize()
	return *sub, nil
}

// CalculatePriceDifference validates the proposed schedule and returns the
// classified prorated price difference. An unchanged schedule returns a zero
// result without calling the calculation endpoint.
func (s *Service) CalculatePriceDifference(ctx context.Context, session domain.Session, subscriptionID string, newSchedule domain.WeeklySchedule, editReason string) (domain.PriceCalculationResult, error) {
	if err := domain.ValidateEdit(newSchedule, editReason); err != nil {
		return domain.PriceCalculationResult{}, err
	}

	release, err := s.guard.Acquire(ctx, guardKey("calculate", session.UserID, subscriptionID))
	if err != nil {
		return domain.PriceCalculationResult{}, err
	}
	defer release()

	proposed := newSchedule.Normalize()
	current, err := s.currentSubscription(ctx, session, subscriptionID)
	if err != nil {
		return domain.PriceCalculationResult{}, err
	}
	remaining := domain.RemainingDays(current, s.today())

	if domain.SchedulesEqual(current.Schedule, proposed) {
		s.logger.Info("schedule unchanged; skipping price calculation", "subscription_id", subscriptionID, "user_id", session.UserID)
		result := domain.NoChangeResult()
		result.RemainingDays = remaining
		return result, nil
	}

	result, err := s.backend.CalculatePriceDifference(ctx, session, subscriptionID, proposed, editReason)
	if err != nil {
		s.logger.Warn("price difference calculation failed", "subscription_id", subscriptionID, "user_id", session.UserID, "error", err)
		return domain.PriceCalculationResult{}, err
	}
	if result.RemainingDays == 0 {
		result.RemainingDays = remaining
	}

	result = domain.Classify(result)
	s.logger.Info("price difference calculated",
		"subscription_id", subscriptionID,
		"status", result.Status,
		"additional_payment", result.AdditionalPayment.String(),
		"refund_amount", result.RefundAmount.String(),
	)
	return result, nil
}

// EstimatePriceDifference prices both schedules locally from the meal set
// catalog. The result is a preview only; the backend's calculation is authoritative.
func (s *Service) EstimatePriceDifference(ctx context.Context, session domain.Session, subscriptionID string, newSchedule domain.WeeklySchedule) (domain.PriceCalculationResult, error) {
	if err := domain.ValidateSchedule(newSchedule); err != nil {
		return domain.PriceCalculationResult{}, err
	}

	proposed := newSchedule.Normalize()
	current, err := s.currentSubscription(ctx, session, subscriptionID)
	if err != nil {
		return domain.PriceCalculationResult{}, err
	}
	today := s.today()
	remaining := domain.RemainingDays(current, today)

	if domain.SchedulesEqual(current.Schedule, proposed) {
		result := domain.NoChangeResult()
		result.RemainingDays = remaining
		result.Estimated = true
		return result, nil
	}

	price := s.catalog.PriceOr(current.PricePerSet)
	oldCost := EstimateCost(current.Schedule, current, today, price)
	newCost := EstimateCost(proposed, current, today, price)

	result := domain.DifferenceFromCosts(oldCost, newCost)
	result.RemainingDays = remaining
	result.Estimated = true
	return result, nil
}

// ApplyEdit submits the new schedule and maps the backend's status onto an
// outcome. Only COMPLETED, PROCESSED and REFUND_APPROVED count as applied.
func (s *Service) ApplyEdit(ctx context.Context, session domain.Session, req domain.ApplyEditRequest) (*domain.EditOutcome, error) {
	if err := domain.ValidateEdit(req.NewSchedule, req.EditReason); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, guardKey("apply", session.UserID, req.SubscriptionID))
	if err != nil {
		return nil, err
	}
	defer release()

	req.NewSchedule = req.NewSchedule.Normalize()
	amounts := domain.Classify(domain.PriceCalculationResult{
		AdditionalPayment: req.AdditionalPayment,
		RefundAmount:      req.RefundAmount,
	})
	req.AdditionalPayment = amounts.AdditionalPayment
	req.RefundAmount = amounts.RefundAmount

	resp, err := s.backend.ApplyEdit(ctx, session, req)
	if err != nil {
		s.logger.Warn("apply edit failed", "subscription_id", req.SubscriptionID, "user_id", session.UserID, "error", err)
		return nil, err
	}

	outcome := domain.NewEditOutcome(resp.EditStatus)
	switch outcome.Action {
	case domain.ActionCollectPayment:
		outcome.PaymentURL = resp.PaymentURL
		outcome.PaymentID = resp.PaymentID
		// Payment completes outside this service; the next edit must reload.
		s.sessions.Drop(session.UserID, req.SubscriptionID)
	case domain.ActionRefresh:
		s.sessions.Drop(session.UserID, req.SubscriptionID)
	case domain.ActionReturnToList:
		s.logger.Warn("unrecognized edit status; treating schedule as not applied",
			"subscription_id", req.SubscriptionID,
			"raw_status", resp.EditStatus,
		)
		s.sessions.Drop(session.UserID, req.SubscriptionID)
	}

	s.recordOutcome(ctx, session, req, outcome)

	if outcome.Applied {
		refreshed, err := s.GetSubscription(ctx, session, req.SubscriptionID)
		if err != nil {
			s.logger.Warn("edit applied but subscription refresh failed", "subscription_id", req.SubscriptionID, "error", err)
		} else {
			outcome.Subscription = refreshed
		}
	}

	s.logger.Info("apply edit finished",
		"subscription_id", req.SubscriptionID,
		"edit_status", outcome.Status,
		"action", outcome.Action,
		"applied", outcome.Applied,
	)
	return &outcome, nil
}

// EditHistory lists stored apply-edit outcomes for a subscription, newest first.
// The backend decides access: the caller must be able to load the subscription
// before any audit row is read.
func (s *Service) EditHistory(ctx context.Context, session domain.Session, subscriptionID string, limit int) ([]domain.EditAuditRecord, error) {
	if subscriptionID == "" {
		return nil, errors.New("subscription ID cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	if _, err := s.backend.GetSubscription(ctx, session, subscriptionID); err != nil {
		s.logger.Warn("edit history access denied", "subscription_id", subscriptionID, "user_id", session.UserID, "error", err)
		return nil, err
	}
	return s.audit.ListEditsBySubscription(ctx, subscriptionID, limit)
}

// recordOutcome publishes the edit event and writes the audit record. Both are
// best effort: failures are logged and never change the outcome.
func (s *Service) recordOutcome(ctx context.Context, session domain.Session, req domain.ApplyEditRequest, outcome domain.EditOutcome) {
	now := s.now().UTC()

	event := domain.EditEvent{
		EventID:           uuid.NewString(),
		SubscriptionID:    req.SubscriptionID,
		UserID:            session.UserID,
		EditStatus:        outcome.Status,
		RawStatus:         outcome.RawStatus,
		Applied:           outcome.Applied,
		AdditionalPayment: req.AdditionalPayment,
		RefundAmount:      req.RefundAmount,
		Timestamp:         now,
	}
	if err := s.publisher.PublishEditEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish edit event", "subscription_id", req.SubscriptionID, "error", err)
	}

	record := domain.EditAuditRecord{
		ID:                uuid.NewString(),
		SubscriptionID:    req.SubscriptionID,
		UserID:            session.UserID,
		EditReason:        req.EditReason,
		AdditionalPayment: req.AdditionalPayment,
		RefundAmount:      req.RefundAmount,
		EditStatus:        outcome.Status,
		RawStatus:         outcome.RawStatus,
		Applied:           outcome.Applied,
		CreatedAt:         now,
	}
	if err := s.audit.RecordEdit(ctx, record); err != nil {
		s.logger.Error("failed to record edit audit", "subscription_id", req.SubscriptionID, "error", err)
	}
}

func guardKey(action, userID, subscriptionID string) string {
	return fmt.Sprintf("%s:%s:%s", action, userID, subscriptionID)
}

type noopPublisher struct{}

func (noopPublisher) PublishEditEvent(ctx context.Context, event domain.EditEvent) error {
	return nil
}

// NoopAuditRecorder is used when no database is configured.
type NoopAuditRecorder struct{}

func (NoopAuditRecorder) RecordEdit(ctx context.Context, record domain.EditAuditRecord) error {
	return nil
}

func (NoopAuditRecorder) ListEditsBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.EditAuditRecord, error) {
	return []domain.EditAuditRecord{}, nil
}
