// Package servicetest provides in-memory fakes of the service dependencies.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
	"claim-service/internal/store"

	"github.com/shopspring/decimal"
)

// MemRepo is an in-memory service.Repository. One mutex stands in for the row
// locks and conditional updates of the Postgres store.
type MemRepo struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]*models.User
	businesses map[int64]*models.Business
	campaigns  map[int64]*models.Campaign
	claims     map[int64]*models.Claim
	payments   map[int64]*models.Payment
}

// NewMemRepo creates an empty repository
func NewMemRepo() *MemRepo {
	return &MemRepo{
		nextID:     100,
		users:      make(map[int64]*models.User),
		businesses: make(map[int64]*models.Business),
		campaigns:  make(map[int64]*models.Campaign),
		claims:     make(map[int64]*models.Claim),
		payments:   make(map[int64]*models.Payment),
	}
}

func (r *MemRepo) id() int64 {
	r.nextID++
	return r.nextID
}

// AddUser seeds a user account
func (r *MemRepo) AddUser(id int64, name, email, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &models.User{ID: id, Name: name, Email: email, Role: role, CreatedAt: time.Now()}
}

// AddBusiness seeds a business profile
func (r *MemRepo) AddBusiness(id, ownerID int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[id] = &models.Business{ID: id, OwnerID: ownerID, CompanyName: name, CreatedAt: time.Now()}
}

func (r *MemRepo) GetBusinessByOwner(_ context.Context, ownerID int64) (*models.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.businesses {
		if b.OwnerID == ownerID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("business for owner %d: %w", ownerID, models.ErrNotFound)
}

func (r *MemRepo) CreateCampaign(_ context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	c.PendingViews = c.TargetViews
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *MemRepo) GetCampaign(_ context.Context, id int64) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, models.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// SetCampaignStatus forces a campaign status
func (r *MemRepo) SetCampaignStatus(id int64, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].Status = status
}

func (r *MemRepo) DeleteCampaign(_ context.Context, id int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[id]; !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, models.ErrNotFound)
	}
	removed := []int64{}
	for cid, c := range r.claims {
		if c.CampaignID == id {
			removed = append(removed, cid)
			delete(r.claims, cid)
		}
	}
	delete(r.campaigns, id)
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, nil
}

func (r *MemRepo) ReserveViewsTx(_ context.Context, campaignID, agentID, views int64) (*models.Claim, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil, 0, fmt.Errorf("campaign %d: %w", campaignID, models.ErrNotFound)
	}
	if c.Status == models.CampaignStatusPaused || c.Status == models.CampaignStatusCompleted {
		return nil, 0, models.ErrCampaignClosed
	}
	if c.PendingViews < views {
		return nil, 0, fmt.Errorf("available=%d, requested=%d: %w", c.PendingViews, views, models.ErrInsufficientInventory)
	}
	c.PendingViews -= views

	claim := &models.Claim{
		ID:             r.id(),
		AgentID:        agentID,
		CampaignID:     campaignID,
		ViewsCommitted: views,
		Status:         models.ClaimStatusActive,
		CreatedAt:      time.Now(),
	}
	r.claims[claim.ID] = claim
	cp := *claim
	return &cp, c.PendingViews, nil
}

func (r *MemRepo) GetClaim(_ context.Context, id int64) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return nil, fmt.Errorf("claim %d: %w", id, models.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (r *MemRepo) SubmitClaim(_ context.Context, claimID int64, proofURL string, fp fingerprint.Fingerprint) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("claim %d: %w", claimID, models.ErrNotFound)
	}
	if c.Status != models.ClaimStatusActive && c.Status != models.ClaimStatusRejected {
		return nil, models.ErrInvalidTransition
	}
	c.Status = models.ClaimStatusPendingApproval
	if proofURL != "" {
		c.ProofURL = &proofURL
	}
	if c.ProofHash.IsZero() {
		c.ProofHash = fp
	}
	cp := *c
	return &cp, nil
}

func (r *MemRepo) RejectClaim(_ context.Context, claimID int64) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("claim %d: %w", claimID, models.ErrNotFound)
	}
	if c.Status != models.ClaimStatusPendingApproval {
		return nil, models.ErrInvalidTransition
	}
	c.Status = models.ClaimStatusRejected
	cp := *c
	return &cp, nil
}

func (r *MemRepo) ApproveClaimTx(_ context.Context, claimID int64, payout store.PayoutFunc) (*models.Claim, *models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return nil, nil, fmt.Errorf("claim %d: %w", claimID, models.ErrNotFound)
	}
	campaign, ok := r.campaigns[c.CampaignID]
	if !ok {
		return nil, nil, fmt.Errorf("campaign %d: %w", c.CampaignID, models.ErrNotFound)
	}
	if c.Status != models.ClaimStatusPendingApproval {
		return nil, nil, models.ErrInvalidTransition
	}

	approved := *c
	approved.Status = models.ClaimStatusApproved
	approved.ViewsDelivered = approved.ViewsCommitted

	amount, err := payout(&approved, campaign)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range r.payments {
		if p.ClaimID == claimID {
			return nil, nil, fmt.Errorf("payment for claim %d already exists", claimID)
		}
	}

	payment := &models.Payment{
		ID:         r.id(),
		ClaimID:    claimID,
		BusinessID: campaign.BusinessID,
		CampaignID: campaign.ID,
		AgentID:    c.AgentID,
		Amount:     amount,
		Currency:   models.DefaultCurrency,
		Status:     models.PaymentStatusPending,
		CreatedAt:  time.Now(),
	}
	r.payments[payment.ID] = payment
	*c = approved

	campaign.CompletedViews += approved.ViewsDelivered
	if campaign.CompletedViews >= campaign.TargetViews {
		campaign.Status = models.CampaignStatusCompleted
	}

	pcp := *payment
	return &approved, &pcp, nil
}

func (r *MemRepo) ListClaims(_ context.Context, filter models.ClaimFilter) ([]models.ClaimView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := []models.ClaimView{}
	for _, c := range r.claims {
		campaign := r.campaigns[c.CampaignID]
		switch {
		case filter.AgentID != 0 && c.AgentID != filter.AgentID,
			filter.BusinessID != 0 && campaign.BusinessID != filter.BusinessID,
			filter.CampaignID != 0 && c.CampaignID != filter.CampaignID,
			filter.Status != "" && c.Status != filter.Status:
			continue
		}
		v := models.ClaimView{
			Claim:         *c,
			CampaignTitle: campaign.Title,
			TargetViews:   campaign.TargetViews,
			Price:         campaign.Price,
			BusinessID:    campaign.BusinessID,
			CompanyName:   r.businesses[campaign.BusinessID].CompanyName,
			PaymentStatus: models.PaymentStatusUnpaid,
			PaymentAmount: decimal.Zero,
		}
		if u, ok := r.users[c.AgentID]; ok {
			v.AgentName, v.AgentEmail = u.Name, u.Email
		}
		for _, p := range r.payments {
			if p.ClaimID == c.ID {
				v.PaymentStatus, v.PaymentAmount = p.Status, p.Amount
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return views, nil
}

func (r *MemRepo) ListFingerprints(context.Context) ([]models.ProofFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prints []models.ProofFingerprint
	for id, c := range r.claims {
		if !c.ProofHash.IsZero() {
			prints = append(prints, models.ProofFingerprint{ClaimID: id, Fingerprint: c.ProofHash})
		}
	}
	return prints, nil
}

func (r *MemRepo) GetPayment(_ context.Context, id int64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *MemRepo) ListPayments(_ context.Context, filter store.PaymentFilter) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payments := []models.Payment{}
	for _, p := range r.payments {
		if (filter.BusinessID == 0 || p.BusinessID == filter.BusinessID) &&
			(filter.AgentID == 0 || p.AgentID == filter.AgentID) {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID > payments[j].ID })
	return payments, nil
}

func (r *MemRepo) MarkPayment(_ context.Context, id int64, status, mode string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, models.ErrNotFound)
	}
	if p.Status != models.PaymentStatusPending {
		return nil, models.ErrInvalidTransition
	}
	p.Status = status
	if mode != "" {
		p.PaymentMode = &mode
	}
	if status == models.PaymentStatusPaid && p.MarkedAt == nil {
		now := time.Now()
		p.MarkedAt = &now
	}
	cp := *p
	return &cp, nil
}

// RecordingPublisher keeps the types of published events in order
type RecordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *RecordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

// Types returns the recorded event types
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *RecordingPublisher) PublishClaimCreated(context.Context, *models.ClaimCreatedEvent) error {
	return p.record(models.EventTypeClaimCreated)
}

func (p *RecordingPublisher) PublishClaimSubmitted(context.Context, *models.ClaimSubmittedEvent) error {
	return p.record(models.EventTypeClaimSubmitted)
}

func (p *RecordingPublisher) PublishClaimDecided(_ context.Context, approved bool, _ *models.ClaimDecidedEvent) error {
	if approved {
		return p.record(models.EventTypeClaimApproved)
	}
	return p.record(models.EventTypeClaimRejected)
}

func (p *RecordingPublisher) PublishPaymentCreated(context.Context, *models.PaymentEvent) error {
	return p.record(models.EventTypePaymentCreated)
}

func (p *RecordingPublisher) PublishPaymentStatusChanged(context.Context, *models.PaymentEvent) error {
	return p.record(models.EventTypePaymentStatusChanged)
}

func (p *RecordingPublisher) PublishCampaignDeleted(context.Context, *models.CampaignDeletedEvent) error {
	return p.record(models.EventTypeCampaignDeleted)
}
