package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"claim-service/internal/models"
)

// PaymentFilter narrows a payment listing; zero fields are ignored
type PaymentFilter struct {
	BusinessID int64
	AgentID    int64
}

// GetPayment retrieves a payment by ID
func (s *Store) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &payment, nil
}

// ListPayments retrieves payments newest first
func (s *Store) ListPayments(ctx context.Context, filter PaymentFilter) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := s.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments
		WHERE ($1::bigint = 0 OR business_id = $1) AND ($2::bigint = 0 OR agent_id = $2)
		ORDER BY created_at DESC, id DESC`,
		filter.BusinessID, filter.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// MarkPayment moves a pending payment to paid or failed. marked_at is set
// the first time a payment becomes paid.
func (s *Store) MarkPayment(ctx context.Context, id int64, status, mode string) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2,
		    payment_mode = COALESCE(NULLIF($3, ''), payment_mode),
		    marked_at = CASE WHEN $2 = $4 THEN COALESCE(marked_at, NOW()) ELSE marked_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING *`

	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, query,
		id, status, mode, models.PaymentStatusPaid, models.PaymentStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.GetPayment(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("payment %d is %s, cannot move to %s: %w",
			id, current.Status, status, models.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment: %w", err)
	}
	return &payment, nil
}
