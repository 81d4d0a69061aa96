package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeClaimCreated         = "CLAIM_CREATED"
	EventTypeClaimSubmitted       = "CLAIM_SUBMITTED"
	EventTypeClaimApproved        = "CLAIM_APPROVED"
	EventTypeClaimRejected        = "CLAIM_REJECTED"
	EventTypePaymentCreated       = "PAYMENT_CREATED"
	EventTypePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
	EventTypeCampaignDeleted      = "CAMPAIGN_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin,omitempty"`
}

// ClaimCreatedEvent published when an agent reserves views
type ClaimCreatedEvent struct {
	BaseEvent
	ClaimID        int64 `json:"claim_id"`
	CampaignID     int64 `json:"campaign_id"`
	AgentID        int64 `json:"agent_id"`
	ViewsCommitted int64 `json:"views_committed"`
	RemainingViews int64 `json:"remaining_views"`
}

// ClaimSubmittedEvent published when proof is accepted for review
type ClaimSubmittedEvent struct {
	BaseEvent
	ClaimID     int64  `json:"claim_id"`
	CampaignID  int64  `json:"campaign_id"`
	AgentID     int64  `json:"agent_id"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ClaimDecidedEvent published when an admin approves or rejects a claim
type ClaimDecidedEvent struct {
	BaseEvent
	ClaimID        int64 `json:"claim_id"`
	CampaignID     int64 `json:"campaign_id"`
	AgentID        int64 `json:"agent_id"`
	ViewsDelivered int64 `json:"views_delivered"`
	DecidedBy      int64 `json:"decided_by"`
}

// PaymentEvent published when a payment is created or changes status
type PaymentEvent struct {
	BaseEvent
	PaymentID  int64           `json:"payment_id"`
	ClaimID    int64           `json:"claim_id"`
	CampaignID int64           `json:"campaign_id"`
	AgentID    int64           `json:"agent_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Channel    string          `json:"channel,omitempty"`
}

// CampaignDeletedEvent published when a campaign and its claims are removed
type CampaignDeletedEvent struct {
	BaseEvent
	CampaignID int64   `json:"campaign_id"`
	ClaimIDs   []int64 `json:"claim_ids"`
}
