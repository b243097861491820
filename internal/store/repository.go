/**
 * @description
 * This file implements the data access layer for the subscription-edit-service.
 * Only apply-edit outcomes are stored here; subscriptions and schedules live in
 * the subscription backend.
 */
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

const auditSchemaSQL = `
	CREATE TABLE IF NOT EXISTS subscription_edit_audit (
		id UUID PRIMARY KEY,
		subscription_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		edit_reason TEXT NOT NULL,
		additional_payment NUMERIC(12, 2) NOT NULL DEFAULT 0,
		refund_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		edit_status VARCHAR(50) NOT NULL,
		raw_status VARCHAR(255) NOT NULL DEFAULT '',
		applied BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_subscription_edit_audit_subscription
		ON subscription_edit_audit (subscription_id, created_at DESC);
`

// Repository handles database operations for edit audit records.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, auditSchemaSQL); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// RecordEdit inserts one apply-edit outcome.
func (r *Repository) RecordEdit(ctx context.Context, record domain.EditAuditRecord) error {
	query := `
        INSERT INTO subscription_edit_audit
            (id, subscription_id, user_id, edit_reason, additional_payment, refund_amount, edit_status, raw_status, applied, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10)
    `
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.SubscriptionID,
		record.UserID,
		record.EditReason,
		record.AdditionalPayment.StringFixed(2),
		record.RefundAmount.StringFixed(2),
		string(record.EditStatus),
		record.RawStatus,
		record.Applied,
		record.CreatedAt,
	)
	return err
}

// ListEditsBySubscription returns the newest audit records for a subscription.
func (r *Repository) ListEditsBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.EditAuditRecord, error) {
	query := `
        SELECT id::text, subscription_id, user_id, edit_reason, additional_payment::text, refund_amount::text,
               edit_status, raw_status, applied, created_at
        FROM subscription_edit_audit
        WHERE subscription_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, err
	}

	records, err := pgx.CollectRows(rows, scanAuditRecord)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.EditAuditRecord{}
	}
	return records, nil
}

func scanAuditRecord(row pgx.CollectableRow) (domain.EditAuditRecord, error) {
	var (
		record     domain.EditAuditRecord
		additional string
		refund     string
		status     string
	)
	if err := row.Scan(
		&record.ID,
		&record.SubscriptionID,
		&record.UserID,
		&record.EditReason,
		&additional,
		&refund,
		&status,
		&record.RawStatus,
		&record.Applied,
		&record.CreatedAt,
	); err != nil {
		return domain.EditAuditRecord{}, err
	}

	var err error
	if record.AdditionalPayment, err = parseAmount(additional); err != nil {
		return domain.EditAuditRecord{}, err
	}
	if record.RefundAmount, err = parseAmount(refund); err != nil {
		return domain.EditAuditRecord{}, err
	}
	record.EditStatus = storedStatus(status)
	return record, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	return amount, nil
}

// storedStatus maps a stored status back onto the known set.
func storedStatus(raw string) domain.EditStatus {
	status, ok := domain.ParseEditStatus(raw)
	if !ok {
		return domain.EditStatusUnknown
	}
	return status
}
