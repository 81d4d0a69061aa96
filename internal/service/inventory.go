package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"claim-service/internal/models"
	"claim-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reservation is the outcome of a successful view reservation
type Reservation struct {
	Claim     *models.Claim
	Remaining int64
}

// Inventory hands out campaign views to agents
type Inventory struct {
	claims ClaimRepository
	logger *zap.Logger
}

// NewInventory creates a new inventory allocator
func NewInventory(claims ClaimRepository) *Inventory {
	return &Inventory{
		claims: claims,
		logger: util.GetLogger(),
	}
}

// ReserveViews deducts requested views from the campaign and records an
// active claim for the agent. Either both happen or neither does.
func (inv *Inventory) ReserveViews(ctx context.Context, agentID, campaignID, requested int64) (res *Reservation, err error) {
	ctx, span := util.StartSpan(ctx, "Inventory.ReserveViews",
		attribute.Int64("campaign_id", campaignID),
		attribute.Int64("requested", requested))
	defer func() { util.EndSpan(span, err) }()

	if requested <= 0 {
		util.InventoryReservationsFailed.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("views must be positive, got %d: %w", requested, models.ErrInvalidInput)
	}

	start := time.Now()
	claim, remaining, err := inv.claims.ReserveViewsTx(ctx, campaignID, agentID, requested)
	util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues(reservationFailure(err)).Inc()
		return nil, fmt.Errorf("reserve %d views on campaign %d: %w", requested, campaignID, err)
	}

	util.ViewsReservedTotal.Add(float64(requested))
	util.LoggerFromContext(ctx, inv.logger).Info("Views reserved",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("agent_id", agentID),
		zap.Int64("claim_id", claim.ID),
		zap.Int64("views", requested),
		zap.Int64("remaining", remaining))

	return &Reservation{Claim: claim, Remaining: remaining}, nil
}

func reservationFailure(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrCampaignClosed):
		return "campaign_closed"
	default:
		return "error"
	}
}
