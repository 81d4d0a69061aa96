package service

import (
	"context"
	"fmt"
	"sync"

	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
	"claim-service/internal/store"
)

// CampaignRepository is the campaign side of the store
type CampaignRepository interface {
	GetBusinessByOwner(ctx context.Context, ownerID int64) (*models.Business, error)
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	DeleteCampaign(ctx context.Context, id int64) ([]int64, error)
}

// ClaimRepository is the claim ledger side of the store
type ClaimRepository interface {
	ReserveViewsTx(ctx context.Context, campaignID, agentID, views int64) (*models.Claim, int64, error)
	GetClaim(ctx context.Context, id int64) (*models.Claim, error)
	SubmitClaim(ctx context.Context, claimID int64, proofURL string, fp fingerprint.Fingerprint) (*models.Claim, error)
	RejectClaim(ctx context.Context, claimID int64) (*models.Claim, error)
	ApproveClaimTx(ctx context.Context, claimID int64, payout store.PayoutFunc) (*models.Claim, *models.Payment, error)
	ListClaims(ctx context.Context, filter models.ClaimFilter) ([]models.ClaimView, error)
	ListFingerprints(ctx context.Context) ([]models.ProofFingerprint, error)
}

// PaymentRepository is the payment side of the store
type PaymentRepository interface {
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	ListPayments(ctx context.Context, filter store.PaymentFilter) ([]models.Payment, error)
	MarkPayment(ctx context.Context, id int64, status, mode string) (*models.Payment, error)
}

// Repository is everything the services need from persistence.
// *store.Store implements it.
type Repository interface {
	CampaignRepository
	ClaimRepository
	PaymentRepository
}

var _ Repository = (*store.Store)(nil)

// EventPublisher emits domain events. *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishClaimCreated(ctx context.Context, event *models.ClaimCreatedEvent) error
	PublishClaimSubmitted(ctx context.Context, event *models.ClaimSubmittedEvent) error
	PublishClaimDecided(ctx context.Context, approved bool, event *models.ClaimDecidedEvent) error
	PublishPaymentCreated(ctx context.Context, event *models.PaymentEvent) error
	PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentEvent) error
	PublishCampaignDeleted(ctx context.Context, event *models.CampaignDeletedEvent) error
}

// Locker provides mutual exclusion by key. Lock blocks until the key is
// held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// IdempotencyStore maps client idempotency keys to the reservation they created
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (models.CommitRecord, bool, error)
	Put(ctx context.Context, key string, record models.CommitRecord) error
}

// LocalLocker is an in-process Locker for single-replica deployments and tests
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
	}
}

// LocalIdempotencyStore keeps idempotency keys in memory without expiry
type LocalIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]models.CommitRecord
}

func NewLocalIdempotencyStore() *LocalIdempotencyStore {
	return &LocalIdempotencyStore{keys: make(map[string]models.CommitRecord)}
}

func (s *LocalIdempotencyStore) Get(_ context.Context, key string) (models.CommitRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[key]
	return rec, ok, nil
}

func (s *LocalIdempotencyStore) Put(_ context.Context, key string, record models.CommitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; !ok {
		s.keys[key] = record
	}
	return nil
}
