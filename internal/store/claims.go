package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"claim-service/internal/fingerprint"
	"claim-service/internal/models"

	"github.com/shopspring/decimal"
)

// PayoutFunc computes the amount owed for a claim being approved
type PayoutFunc func(claim *models.Claim, campaign *models.Campaign) (decimal.Decimal, error)

// GetClaim retrieves a claim by ID
func (s *Store) GetClaim(ctx context.Context, id int64) (*models.Claim, error) {
	var claim models.Claim
	err := s.db.GetContext(ctx, &claim, "SELECT * FROM claims WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "claim", id)
	}
	return &claim, nil
}

// transitionError explains why a conditional claim update matched no row
func (s *Store) transitionError(ctx context.Context, claimID int64, to string) error {
	claim, err := s.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}
	return fmt.Errorf("claim %d is %s, cannot move to %s: %w",
		claimID, claim.Status, to, models.ErrInvalidTransition)
}

// SubmitClaim moves an active or rejected claim to pending_approval.
// A fingerprint is recorded only if the claim has none yet, so the first
// accepted fingerprint is the one that stays indexed.
func (s *Store) SubmitClaim(ctx context.Context, claimID int64, proofURL string, fp fingerprint.Fingerprint) (*models.Claim, error) {
	query := `
		UPDATE claims
		SET status = $2,
		    proof_url = COALESCE(NULLIF($3, ''), proof_url),
		    proof_hash = COALESCE(proof_hash, $4),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($5, $6)
		RETURNING *`

	var claim models.Claim
	err := s.db.GetContext(ctx, &claim, query,
		claimID, models.ClaimStatusPendingApproval, proofURL, fp,
		models.ClaimStatusActive, models.ClaimStatusRejected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.transitionError(ctx, claimID, models.ClaimStatusPendingApproval)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit claim: %w", err)
	}
	return &claim, nil
}

// RejectClaim moves a pending_approval claim to rejected
func (s *Store) RejectClaim(ctx context.Context, claimID int64) (*models.Claim, error) {
	var claim models.Claim
	err := s.db.GetContext(ctx, &claim,
		"UPDATE claims SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3 RETURNING *",
		claimID, models.ClaimStatusRejected, models.ClaimStatusPendingApproval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.transitionError(ctx, claimID, models.ClaimStatusRejected)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reject claim: %w", err)
	}
	return &claim, nil
}

// ApproveClaimTx approves a pending claim, records the payment owed and
// credits the delivered views to the campaign in one transaction.
// Locks are taken campaign first, then claim, the same order DeleteCampaign
// uses through its cascade.
func (s *Store) ApproveClaimTx(ctx context.Context, claimID int64, payout PayoutFunc) (*models.Claim, *models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var campaignID int64
	err = tx.GetContext(ctx, &campaignID, "SELECT campaign_id FROM claims WHERE id = $1", claimID)
	if err != nil {
		return nil, nil, notFound(err, "claim", claimID)
	}

	var campaign models.Campaign
	err = tx.GetContext(ctx, &campaign, "SELECT * FROM campaigns WHERE id = $1 FOR UPDATE", campaignID)
	if err != nil {
		return nil, nil, notFound(err, "campaign", campaignID)
	}

	var claim models.Claim
	err = tx.GetContext(ctx, &claim, "SELECT * FROM claims WHERE id = $1 FOR UPDATE", claimID)
	if err != nil {
		return nil, nil, notFound(err, "claim", claimID)
	}
	if claim.Status != models.ClaimStatusPendingApproval {
		return nil, nil, fmt.Errorf("claim %d is %s, cannot move to %s: %w",
			claimID, claim.Status, models.ClaimStatusApproved, models.ErrInvalidTransition)
	}

	err = tx.GetContext(ctx, &claim,
		"UPDATE claims SET status = $2, views_delivered = views_committed, updated_at = NOW() WHERE id = $1 RETURNING *",
		claimID, models.ClaimStatusApproved)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to approve claim: %w", err)
	}

	amount, err := payout(&claim, &campaign)
	if err != nil {
		return nil, nil, err
	}

	var payment models.Payment
	err = tx.GetContext(ctx, &payment, `
		INSERT INTO payments (claim_id, business_id, campaign_id, agent_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		claim.ID, campaign.BusinessID, campaign.ID, claim.AgentID, amount,
		models.DefaultCurrency, models.PaymentStatusPending)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create payment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaigns
		SET completed_views = completed_views + $1,
		    status = CASE WHEN completed_views + $1 >= target_views THEN $3 ELSE status END,
		    updated_at = NOW()
		WHERE id = $2`,
		claim.ViewsDelivered, campaign.ID, models.CampaignStatusCompleted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to credit campaign: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &claim, &payment, nil
}

// ListClaims returns claims joined with campaign, business and payment data.
// Claims without a payment report status "unpaid" and amount 0.
func (s *Store) ListClaims(ctx context.Context, filter models.ClaimFilter) ([]models.ClaimView, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.AgentID != 0 {
		add("c.agent_id = $%d", filter.AgentID)
	}
	if filter.BusinessID != 0 {
		add("cp.business_id = $%d", filter.BusinessID)
	}
	if filter.CampaignID != 0 {
		add("c.campaign_id = $%d", filter.CampaignID)
	}
	if filter.Status != "" {
		add("c.status = $%d", filter.Status)
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT c.*,
		       u.name AS agent_name,
		       u.email AS agent_email,
		       cp.title AS campaign_title,
		       cp.target_views,
		       cp.price,
		       cp.business_id,
		       b.company_name,
		       COALESCE(p.status, '` + models.PaymentStatusUnpaid + `') AS payment_status,
		       COALESCE(p.amount, 0) AS payment_amount
		FROM claims c
		JOIN users u ON u.id = c.agent_id
		JOIN campaigns cp ON cp.id = c.campaign_id
		JOIN businesses b ON b.id = cp.business_id
		LEFT JOIN payments p ON p.claim_id = c.id`)
	if len(where) > 0 {
		sb.WriteString("\n\t\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\n\t\tORDER BY c.created_at DESC, c.id DESC")

	views := []models.ClaimView{}
	if err := s.db.SelectContext(ctx, &views, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return views, nil
}

// ListFingerprints returns every recorded proof fingerprint
func (s *Store) ListFingerprints(ctx context.Context) ([]models.ProofFingerprint, error) {
	var prints []models.ProofFingerprint
	err := s.db.SelectContext(ctx, &prints,
		"SELECT id, proof_hash FROM claims WHERE proof_hash IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	return prints, nil
}
