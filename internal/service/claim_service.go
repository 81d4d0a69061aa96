package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"claim-service/internal/dedup"
	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
	"claim-service/internal/payout"
	"claim-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// proofIndexLock guards the duplicate check and the fingerprint write that
// follows it, so two near-identical proofs cannot both pass.
const proofIndexLock = "proof-index"

// ClaimService handles the claim lifecycle from reservation to approval
type ClaimService struct {
	repo           Repository
	inventory      *Inventory
	index          dedup.Index
	hasher         fingerprint.Hasher
	locker         Locker
	idempotency    IdempotencyStore
	eventPublisher EventPublisher
	strict         bool
	logger         *zap.Logger
}

// NewClaimService creates a new claim service. With strict set, a proof
// that cannot be fingerprinted fails the submission instead of being
// accepted without a fingerprint.
func NewClaimService(
	repo Repository,
	inventory *Inventory,
	index dedup.Index,
	hasher fingerprint.Hasher,
	locker Locker,
	idempotency IdempotencyStore,
	eventPublisher EventPublisher,
	strict bool,
) *ClaimService {
	return &ClaimService{
		repo:           repo,
		inventory:      inventory,
		index:          index,
		hasher:         hasher,
		locker:         locker,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		strict:         strict,
		logger:         util.GetLogger(),
	}
}

// CommitViewsRequest represents an agent's request to reserve views
type CommitViewsRequest struct {
	CampaignID     int64  `json:"campaign_id" binding:"required"`
	Views          int64  `json:"views" binding:"required"`
	IdempotencyKey string `json:"-"`
}

// CommitViewsResponse represents the reservation made for the agent
type CommitViewsResponse struct {
	Claim             *models.Claim   `json:"claim"`
	RemainingViews    int64           `json:"remaining_views"`
	ProjectedEarnings decimal.Decimal `json:"projected_earnings"`
	Replayed          bool            `json:"-"`
}

// A replayed response reports the remaining views as of the original
// reservation, so retries see the same body.

// CommitViews reserves views on a campaign for the calling agent
func (s *ClaimService) CommitViews(ctx context.Context, actor models.Actor, req *CommitViewsRequest) (resp *CommitViewsResponse, err error) {
	ctx, span := util.StartSpan(ctx, "ClaimService.CommitViews",
		attribute.Int64("campaign_id", req.CampaignID),
		attribute.Int64("agent_id", actor.UserID))
	defer func() { util.EndSpan(span, err) }()

	if actor.Role != models.RoleAgent {
		return nil, fmt.Errorf("only agents can commit views: %w", models.ErrForbidden)
	}

	if req.IdempotencyKey != "" {
		unlock, err := s.locker.Lock(ctx, "idempotency:"+req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		defer unlock()

		if resp, err := s.replay(ctx, actor, req); resp != nil || err != nil {
			return resp, err
		}
	}

	campaign, err := s.repo.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}

	res, err := s.inventory.ReserveViews(ctx, actor.UserID, req.CampaignID, req.Views)
	if err != nil {
		return nil, err
	}

	earnings, err := payout.Calculate(res.Claim.ViewsCommitted, campaign.TargetViews, campaign.Price)
	if err != nil {
		return nil, fmt.Errorf("projected earnings for claim %d: %w", res.Claim.ID, err)
	}

	if req.IdempotencyKey != "" {
		record := models.CommitRecord{ClaimID: res.Claim.ID, RemainingViews: res.Remaining}
		if err := s.idempotency.Put(ctx, req.IdempotencyKey, record); err != nil {
			s.logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}

	util.ClaimsCreatedTotal.Inc()

	event := &models.ClaimCreatedEvent{
		ClaimID:        res.Claim.ID,
		CampaignID:     res.Claim.CampaignID,
		AgentID:        res.Claim.AgentID,
		ViewsCommitted: res.Claim.ViewsCommitted,
		RemainingViews: res.Remaining,
	}
	if err := s.eventPublisher.PublishClaimCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ClaimCreated event", zap.Error(err))
	}

	return &CommitViewsResponse{
		Claim:             res.Claim,
		RemainingViews:    res.Remaining,
		ProjectedEarnings: earnings,
	}, nil
}

// replay answers a repeated CommitViews from the claim it created the
// first time. It returns nil, nil when the key is new.
func (s *ClaimService) replay(ctx context.Context, actor models.Actor, req *CommitViewsRequest) (*CommitViewsResponse, error) {
	record, ok, err := s.idempotency.Get(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !ok {
		return nil, nil
	}

	claim, err := s.repo.GetClaim(ctx, record.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim.AgentID != actor.UserID || claim.CampaignID != req.CampaignID || claim.ViewsCommitted != req.Views {
		return nil, fmt.Errorf("idempotency key %q was used for a different request: %w",
			req.IdempotencyKey, models.ErrInvalidInput)
	}

	campaign, err := s.repo.GetCampaign(ctx, claim.CampaignID)
	if err != nil {
		return nil, err
	}
	earnings, err := payout.Calculate(claim.ViewsCommitted, campaign.TargetViews, campaign.Price)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Duplicate commit request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int64("claim_id", claim.ID))

	return &CommitViewsResponse{
		Claim:             claim,
		RemainingViews:    record.RemainingViews,
		ProjectedEarnings: earnings,
		Replayed:          true,
	}, nil
}

// UpdateClaimStatus applies a requested status to a claim.
// "submitted" and "pending_approval" submit proof, "approved" and
// "rejected" decide a pending claim.
func (s *ClaimService) UpdateClaimStatus(ctx context.Context, actor models.Actor, claimID int64, status, proofURL string) (*models.Claim, error) {
	switch status {
	case models.ClaimStatusSubmitted, models.ClaimStatusPendingApproval:
		return s.SubmitClaim(ctx, actor, claimID, proofURL)
	case models.ClaimStatusApproved:
		return s.DecideClaim(ctx, actor, claimID, true)
	case models.ClaimStatusRejected:
		return s.DecideClaim(ctx, actor, claimID, false)
	default:
		return nil, fmt.Errorf("unknown claim status %q: %w", status, models.ErrInvalidTransition)
	}
}

// SubmitClaim attaches proof to an active or rejected claim and queues it
// for review. A proof whose fingerprint is within the duplicate threshold
// of another claim's is refused and the claim is left untouched.
func (s *ClaimService) SubmitClaim(ctx context.Context, actor models.Actor, claimID int64, proofURL string) (claim *models.Claim, err error) {
	ctx, span := util.StartSpan(ctx, "ClaimService.SubmitClaim", attribute.Int64("claim_id", claimID))
	defer func() { util.EndSpan(span, err) }()

	logger := util.LoggerFromContext(ctx, s.logger).With(zap.Int64("claim_id", claimID))

	current, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if current.AgentID != actor.UserID {
		return nil, fmt.Errorf("claim %d belongs to another agent: %w", claimID, models.ErrForbidden)
	}
	if current.Status != models.ClaimStatusActive && current.Status != models.ClaimStatusRejected {
		return nil, fmt.Errorf("claim %d is %s, cannot move to %s: %w",
			claimID, current.Status, models.ClaimStatusPendingApproval, models.ErrInvalidTransition)
	}

	fp, err := s.fingerprintProof(proofURL)
	if err != nil {
		util.ProofSubmissionsTotal.WithLabelValues("unreadable").Inc()
		return nil, err
	}

	claim, err = s.recordProof(ctx, logger, claimID, proofURL, fp)
	if err != nil {
		return nil, err
	}

	util.ProofSubmissionsTotal.WithLabelValues("accepted").Inc()
	logger.Info("Claim submitted for review", zap.Stringer("fingerprint", claim.ProofHash))

	event := &models.ClaimSubmittedEvent{
		ClaimID:     claim.ID,
		CampaignID:  claim.CampaignID,
		AgentID:     claim.AgentID,
		Fingerprint: claim.ProofHash.String(),
	}
	if err := s.eventPublisher.PublishClaimSubmitted(ctx, event); err != nil {
		logger.Error("Failed to publish ClaimSubmitted event", zap.Error(err))
	}

	return claim, nil
}

// recordProof stores the submission. With a fingerprint, the duplicate
// check and the index append run under the proof-index lock; publishing
// happens after it is released.
func (s *ClaimService) recordProof(ctx context.Context, logger *zap.Logger, claimID int64, proofURL string, fp fingerprint.Fingerprint) (*models.Claim, error) {
	if fp.IsZero() {
		return s.repo.SubmitClaim(ctx, claimID, proofURL, fp)
	}

	unlock, err := s.locker.Lock(ctx, proofIndexLock)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkDuplicate(ctx, logger, claimID, fp); err != nil {
		return nil, err
	}

	claim, err := s.repo.SubmitClaim(ctx, claimID, proofURL, fp)
	if err != nil {
		return nil, err
	}

	if !claim.ProofHash.IsZero() {
		if err := s.index.Add(ctx, claim.ID, claim.ProofHash); err != nil {
			logger.Warn("Fingerprint not added to index", zap.Error(err))
		}
	}
	return claim, nil
}

// fingerprintProof hashes the proof image. Without a proof, or when the
// proof cannot be hashed in lenient mode, it returns a nil fingerprint.
func (s *ClaimService) fingerprintProof(proofURL string) (fingerprint.Fingerprint, error) {
	if proofURL == "" {
		return nil, nil
	}

	start := time.Now()
	data, err := decodeProof(proofURL)
	var fp fingerprint.Fingerprint
	if err == nil {
		fp, err = s.hasher.Fingerprint(data)
	}
	util.FingerprintLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.FingerprintFailuresTotal.Inc()
		if s.strict {
			return nil, fmt.Errorf("fingerprint proof: %w", err)
		}
		s.logger.Warn("Proof accepted without fingerprint", zap.Error(err))
		return nil, nil
	}
	return fp, nil
}

func (s *ClaimService) checkDuplicate(ctx context.Context, logger *zap.Logger, claimID int64, fp fingerprint.Fingerprint) error {
	start := time.Now()
	match, found, err := s.index.Nearest(ctx, fp, claimID)
	util.DuplicateScanLatency.Observe(time.Since(start).Seconds())

	if errors.Is(err, fingerprint.ErrLengthMismatch) {
		logger.Warn("Fingerprint not comparable with index", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if found {
		util.ProofSubmissionsTotal.WithLabelValues("duplicate").Inc()
		logger.Info("Duplicate proof rejected",
			zap.Int64("matched_claim_id", match.ClaimID),
			zap.Int("distance", match.Distance))
		return fmt.Errorf("proof matches claim %d at distance %d: %w",
			match.ClaimID, match.Distance, models.ErrDuplicateProof)
	}
	return nil
}

// DecideClaim approves or rejects a claim awaiting review. Approval
// records the payment owed to the agent.
func (s *ClaimService) DecideClaim(ctx context.Context, actor models.Actor, claimID int64, approve bool) (claim *models.Claim, err error) {
	ctx, span := util.StartSpan(ctx, "ClaimService.DecideClaim",
		attribute.Int64("claim_id", claimID),
		attribute.Bool("approve", approve))
	defer func() { util.EndSpan(span, err) }()

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can decide claims: %w", models.ErrForbidden)
	}

	logger := util.LoggerFromContext(ctx, s.logger).With(zap.Int64("claim_id", claimID))

	if !approve {
		claim, err = s.repo.RejectClaim(ctx, claimID)
		if err != nil {
			return nil, err
		}
		util.ClaimsDecidedTotal.WithLabelValues("rejected").Inc()
		logger.Info("Claim rejected", zap.Int64("admin_id", actor.UserID))
		s.publishDecision(ctx, actor, claim, false)
		return claim, nil
	}

	claim, payment, err := s.repo.ApproveClaimTx(ctx, claimID, approvalPayout)
	if err != nil {
		return nil, err
	}

	util.ClaimsDecidedTotal.WithLabelValues("approved").Inc()
	util.PaymentsCreatedTotal.Inc()
	logger.Info("Claim approved",
		zap.Int64("admin_id", actor.UserID),
		zap.Int64("payment_id", payment.ID),
		zap.String("amount", payment.Amount.StringFixed(payout.Places)))

	s.publishDecision(ctx, actor, claim, true)

	paymentEvent := &models.PaymentEvent{
		PaymentID:  payment.ID,
		ClaimID:    payment.ClaimID,
		CampaignID: payment.CampaignID,
		AgentID:    payment.AgentID,
		Amount:     payment.Amount,
		Status:     payment.Status,
	}
	if err := s.eventPublisher.PublishPaymentCreated(ctx, paymentEvent); err != nil {
		logger.Error("Failed to publish PaymentCreated event", zap.Error(err))
	}

	return claim, nil
}

func approvalPayout(claim *models.Claim, campaign *models.Campaign) (decimal.Decimal, error) {
	return payout.Calculate(claim.ViewsCommitted, campaign.TargetViews, campaign.Price)
}

func (s *ClaimService) publishDecision(ctx context.Context, actor models.Actor, claim *models.Claim, approved bool) {
	event := &models.ClaimDecidedEvent{
		ClaimID:        claim.ID,
		CampaignID:     claim.CampaignID,
		AgentID:        claim.AgentID,
		ViewsDelivered: claim.ViewsDelivered,
		DecidedBy:      actor.UserID,
	}
	if err := s.eventPublisher.PublishClaimDecided(ctx, approved, event); err != nil {
		s.logger.Error("Failed to publish claim decision event", zap.Error(err))
	}
}

// ListClaims returns the claims visible to actor: an agent sees their own,
// a business owner sees claims on their campaigns, an admin sees all.
func (s *ClaimService) ListClaims(ctx context.Context, actor models.Actor, filter models.ClaimFilter) ([]models.ClaimView, error) {
	ctx, span := util.StartSpan(ctx, "ClaimService.ListClaims")
	defer span.End()

	switch filter.Status {
	case "", models.ClaimStatusActive, models.ClaimStatusPendingApproval,
		models.ClaimStatusApproved, models.ClaimStatusRejected:
	default:
		return nil, fmt.Errorf("unknown claim status %q: %w", filter.Status, models.ErrInvalidInput)
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleAgent:
		filter.AgentID = actor.UserID
	case models.RoleBusinessOwner:
		business, err := s.repo.GetBusinessByOwner(ctx, actor.UserID)
		if errors.Is(err, models.ErrNotFound) {
			return []models.ClaimView{}, nil
		}
		if err != nil {
			return nil, err
		}
		filter.BusinessID = business.ID
	default:
		return nil, fmt.Errorf("role %q cannot list claims: %w", actor.Role, models.ErrForbidden)
	}

	return s.repo.ListClaims(ctx, filter)
}
