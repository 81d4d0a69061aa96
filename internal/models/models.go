package models

import (
	"time"

	"claim-service/internal/fingerprint"

	"github.com/shopspring/decimal"
)

// User is an account of any role
type User struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Business is a company profile owned by a business_owner user
type Business struct {
	ID          int64     `db:"id" json:"id"`
	OwnerID     int64     `db:"owner_id" json:"owner_id"`
	CompanyName string    `db:"company_name" json:"company_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Campaign is a business's request for status views
type Campaign struct {
	ID             int64           `db:"id" json:"id"`
	BusinessID     int64           `db:"business_id" json:"business_id"`
	Title          string          `db:"title" json:"title"`
	Description    string          `db:"description" json:"description,omitempty"`
	Price          decimal.Decimal `db:"price" json:"price"`
	TargetViews    int64           `db:"target_views" json:"target_views"`
	PendingViews   int64           `db:"pending_views" json:"pending_views"`
	CompletedViews int64           `db:"completed_views" json:"completed_views"`
	Status         string          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Claim is an agent's commitment to deliver views for a campaign
type Claim struct {
	ID             int64                   `db:"id" json:"id"`
	AgentID        int64                   `db:"agent_id" json:"agent_id"`
	CampaignID     int64                   `db:"campaign_id" json:"campaign_id"`
	ViewsCommitted int64                   `db:"views_committed" json:"views_committed"`
	ViewsDelivered int64                   `db:"views_delivered" json:"views_delivered"`
	Status         string                  `db:"status" json:"status"`
	ProofURL       *string                 `db:"proof_url" json:"proof_url,omitempty"`
	ProofHash      fingerprint.Fingerprint `db:"proof_hash" json:"proof_hash,omitempty"`
	CreatedAt      time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time               `db:"updated_at" json:"updated_at"`
}

// HasProof reports whether a proof reference was attached
func (c *Claim) HasProof() bool {
	return c.ProofURL != nil && *c.ProofURL != ""
}

// Payment is the payout owed to an agent for an approved claim
type Payment struct {
	ID          int64           `db:"id" json:"id"`
	ClaimID     int64           `db:"claim_id" json:"claim_id"`
	BusinessID  int64           `db:"business_id" json:"business_id"`
	CampaignID  int64           `db:"campaign_id" json:"campaign_id"`
	AgentID     int64           `db:"agent_id" json:"agent_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Status      string          `db:"status" json:"payment_status"`
	PaymentMode *string         `db:"payment_mode" json:"payment_mode,omitempty"`
	MarkedAt    *time.Time      `db:"marked_at" json:"marked_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ClaimView is a claim joined with the campaign, business and payment it relates to
type ClaimView struct {
	Claim
	AgentName     string          `db:"agent_name" json:"agent_name"`
	AgentEmail    string          `db:"agent_email" json:"agent_email"`
	CampaignTitle string          `db:"campaign_title" json:"campaign_title"`
	TargetViews   int64           `db:"target_views" json:"target_views"`
	Price         decimal.Decimal `db:"price" json:"price"`
	BusinessID    int64           `db:"business_id" json:"business_id"`
	CompanyName   string          `db:"company_name" json:"company_name"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	PaymentAmount decimal.Decimal `db:"payment_amount" json:"payment_amount"`
}

// ClaimFilter narrows a claim listing
type ClaimFilter struct {
	AgentID    int64
	BusinessID int64
	CampaignID int64
	Status     string
}

// ProofFingerprint is an accepted fingerprint and the claim that owns it
type ProofFingerprint struct {
	ClaimID     int64                   `db:"id"`
	Fingerprint fingerprint.Fingerprint `db:"proof_hash"`
}

// Campaign statuses
const (
	CampaignStatusOpen      = "open"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// Claim statuses
const (
	ClaimStatusActive          = "active"
	ClaimStatusPendingApproval = "pending_approval"
	ClaimStatusApproved        = "approved"
	ClaimStatusRejected        = "rejected"
)

// ClaimStatusSubmitted is accepted as a requested status and means pending_approval
const ClaimStatusSubmitted = "submitted"

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"

	// PaymentStatusUnpaid is reported for claims without a payment record
	PaymentStatusUnpaid = "unpaid"
)

// DefaultCurrency for payments
const DefaultCurrency = "INR"

// Roles
const (
	RoleAgent         = "agent"
	RoleBusinessOwner = "business_owner"
	RoleAdmin         = "admin"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the actor holds admin privilege
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CommitRecord is what an idempotency key remembers about the reservation it created
type CommitRecord struct {
	ClaimID        int64 `json:"claim_id"`
	RemainingViews int64 `json:"remaining_views"`
}
