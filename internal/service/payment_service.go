package service

import (
	"context"
	"errors"
	"fmt"

	"claim-service/internal/models"
	"claim-service/internal/store"
	"claim-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentService records payouts settled by businesses
type PaymentService struct {
	repo           Repository
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(repo Repository, eventPublisher EventPublisher) *PaymentService {
	return &PaymentService{
		repo:           repo,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// MarkPayment settles a pending payment as paid or failed. Only the owner
// of the business that owes the payment may mark it.
func (ps *PaymentService) MarkPayment(ctx context.Context, actor models.Actor, paymentID int64, status, mode string) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.MarkPayment",
		attribute.Int64("payment_id", paymentID),
		attribute.String("status", status))
	defer func() { util.EndSpan(span, err) }()

	if status != models.PaymentStatusPaid && status != models.PaymentStatusFailed {
		return nil, fmt.Errorf("payment status must be %s or %s, got %q: %w",
			models.PaymentStatusPaid, models.PaymentStatusFailed, status, models.ErrInvalidInput)
	}

	current, err := ps.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	business, err := ps.repo.GetBusinessByOwner(ctx, actor.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("user %d owns no business: %w", actor.UserID, models.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if business.ID != current.BusinessID {
		return nil, fmt.Errorf("payment %d is owed by another business: %w", paymentID, models.ErrForbidden)
	}

	payment, err = ps.repo.MarkPayment(ctx, paymentID, status, mode)
	if err != nil {
		return nil, err
	}

	util.PaymentsMarkedTotal.WithLabelValues(status).Inc()
	ps.logger.Info("Payment marked",
		zap.Int64("payment_id", paymentID),
		zap.String("status", status),
		zap.String("mode", mode))

	event := &models.PaymentEvent{
		PaymentID:  payment.ID,
		ClaimID:    payment.ClaimID,
		CampaignID: payment.CampaignID,
		AgentID:    payment.AgentID,
		Amount:     payment.Amount,
		Status:     payment.Status,
		Channel:    mode,
	}
	if err := ps.eventPublisher.PublishPaymentStatusChanged(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentStatusChanged event", zap.Error(err))
	}

	return payment, nil
}

// ListPayments returns the payments visible to actor
func (ps *PaymentService) ListPayments(ctx context.Context, actor models.Actor) ([]models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ListPayments")
	defer span.End()

	var filter store.PaymentFilter
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleAgent:
		filter.AgentID = actor.UserID
	case models.RoleBusinessOwner:
		business, err := ps.repo.GetBusinessByOwner(ctx, actor.UserID)
		if errors.Is(err, models.ErrNotFound) {
			return []models.Payment{}, nil
		}
		if err != nil {
			return nil, err
		}
		filter.BusinessID = business.ID
	default:
		return nil, fmt.Errorf("role %q cannot list payments: %w", actor.Role, models.ErrForbidden)
	}

	return ps.repo.ListPayments(ctx, filter)
}
