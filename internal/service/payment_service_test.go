package service

import (
	"context"
	"testing"

	"claim-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approvedPayment runs a claim through approval and returns its payment
func approvedPayment(t *testing.T, h *harness) *models.Payment {
	t.Helper()
	ctx := context.Background()
	campaign := h.campaign(t, 100, "100")
	claim := h.commit(t, agentA, campaign.ID, 10)
	_, err := h.claims.SubmitClaim(ctx, agentA, claim.ID, "")
	require.NoError(t, err)
	_, err = h.claims.DecideClaim(ctx, admin, claim.ID, true)
	require.NoError(t, err)

	payments, err := h.payments.ListPayments(ctx, owner)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	return &payments[0]
}

func TestMarkPayment_Transitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := approvedPayment(t, h)

	_, err := h.payments.MarkPayment(ctx, owner, payment.ID, models.PaymentStatusPending, "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	failed, err := h.payments.MarkPayment(ctx, owner, payment.ID, models.PaymentStatusFailed, "bank")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)
	assert.Nil(t, failed.MarkedAt)

	// final states do not move
	_, err = h.payments.MarkPayment(ctx, owner, payment.ID, models.PaymentStatusPaid, "upi")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestMarkPayment_OnlyOwningBusiness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := approvedPayment(t, h)

	for _, actor := range []models.Actor{rival, nobody, agentA, admin} {
		_, err := h.payments.MarkPayment(ctx, actor, payment.ID, models.PaymentStatusPaid, "upi")
		assert.ErrorIs(t, err, models.ErrForbidden, "user %d", actor.UserID)
	}

	_, err := h.payments.MarkPayment(ctx, owner, 424242, models.PaymentStatusPaid, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	stored, err := h.repo.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
}

func TestListPayments_Scoping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approvedPayment(t, h)

	for _, tc := range []struct {
		actor models.Actor
		want  int
	}{
		{owner, 1}, {agentA, 1}, {admin, 1},
		{rival, 0}, {agentB, 0}, {nobody, 0},
	} {
		payments, err := h.payments.ListPayments(ctx, tc.actor)
		require.NoError(t, err)
		assert.Len(t, payments, tc.want, "user %d", tc.actor.UserID)
	}

	_, err := h.payments.ListPayments(ctx, unknown)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
