package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"claim-service/internal/dedup"
	"claim-service/internal/models"
	"claim-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CampaignService manages the campaigns businesses publish
type CampaignService struct {
	repo           Repository
	index          dedup.Index
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(repo Repository, index dedup.Index, eventPublisher EventPublisher) *CampaignService {
	return &CampaignService{
		repo:           repo,
		index:          index,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateCampaignRequest represents a request to publish a campaign
type CreateCampaignRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	TargetViews int64           `json:"target_views" binding:"required"`
}

// CreateCampaign publishes a campaign for the caller's business with the
// whole target available to agents
func (cs *CampaignService) CreateCampaign(ctx context.Context, actor models.Actor, req *CreateCampaignRequest) (*models.Campaign, error) {
	ctx, span := util.StartSpan(ctx, "CampaignService.CreateCampaign")
	defer span.End()

	if actor.Role != models.RoleBusinessOwner {
		return nil, fmt.Errorf("only business owners can create campaigns: %w", models.ErrForbidden)
	}

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		return nil, fmt.Errorf("title is required: %w", models.ErrInvalidInput)
	case !req.Price.IsPositive():
		return nil, fmt.Errorf("price must be positive: %w", models.ErrInvalidInput)
	case req.TargetViews <= 0:
		return nil, fmt.Errorf("target_views must be positive: %w", models.ErrInvalidInput)
	}

	business, err := cs.repo.GetBusinessByOwner(ctx, actor.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("user %d has no business profile: %w", actor.UserID, models.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		BusinessID:  business.ID,
		Title:       title,
		Description: req.Description,
		Price:       req.Price,
		TargetViews: req.TargetViews,
		Status:      models.CampaignStatusOpen,
	}
	if err := cs.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	cs.logger.Info("Campaign created",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int64("business_id", business.ID),
		zap.Int64("target_views", campaign.TargetViews))
	return campaign, nil
}

// GetCampaign retrieves a campaign by ID
func (cs *CampaignService) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	ctx, span := util.StartSpan(ctx, "CampaignService.GetCampaign")
	defer span.End()

	return cs.repo.GetCampaign(ctx, id)
}

// DeleteCampaign removes a campaign together with its claims. Their
// fingerprints leave the duplicate index.
func (cs *CampaignService) DeleteCampaign(ctx context.Context, actor models.Actor, id int64) error {
	ctx, span := util.StartSpan(ctx, "CampaignService.DeleteCampaign")
	defer span.End()

	campaign, err := cs.repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}

	if !actor.IsAdmin() {
		business, err := cs.repo.GetBusinessByOwner(ctx, actor.UserID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if business == nil || business.ID != campaign.BusinessID {
			return fmt.Errorf("campaign %d belongs to another business: %w", id, models.ErrForbidden)
		}
	}

	claimIDs, err := cs.repo.DeleteCampaign(ctx, id)
	if err != nil {
		return err
	}
	cs.index.Remove(claimIDs...)

	cs.logger.Info("Campaign deleted",
		zap.Int64("campaign_id", id),
		zap.Int("claims_removed", len(claimIDs)))

	event := &models.CampaignDeletedEvent{CampaignID: id, ClaimIDs: claimIDs}
	if err := cs.eventPublisher.PublishCampaignDeleted(ctx, event); err != nil {
		cs.logger.Error("Failed to publish CampaignDeleted event", zap.Error(err))
	}
	return nil
}
