package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"claim-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpen, maxIdle int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the readiness probe
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, models.ErrNotFound)
	}
	return err
}

// GetBusinessByOwner retrieves the business profile of a business_owner user
func (s *Store) GetBusinessByOwner(ctx context.Context, ownerID int64) (*models.Business, error) {
	var b models.Business
	err := s.db.GetContext(ctx, &b, "SELECT * FROM businesses WHERE owner_id = $1", ownerID)
	if err != nil {
		return nil, notFound(err, "business for owner", ownerID)
	}
	return &b, nil
}

// GetBusiness retrieves a business by ID
func (s *Store) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	var b models.Business
	err := s.db.GetContext(ctx, &b, "SELECT * FROM businesses WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "business", id)
	}
	return &b, nil
}

// CreateCampaign inserts a campaign with its full target available
func (s *Store) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	query := `
		INSERT INTO campaigns (business_id, title, description, price, target_views, pending_views, status)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		RETURNING *`

	return s.db.GetContext(ctx, c, query,
		c.BusinessID, c.Title, c.Description, c.Price, c.TargetViews, c.Status)
}

// GetCampaign retrieves a campaign by ID
func (s *Store) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.GetContext(ctx, &c, "SELECT * FROM campaigns WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "campaign", id)
	}
	return &c, nil
}

// DeleteCampaign removes a campaign and, by cascade, its claims.
// It returns the IDs of the removed claims.
func (s *Store) DeleteCampaign(ctx context.Context, id int64) ([]int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var locked int64
	err = tx.GetContext(ctx, &locked, "SELECT id FROM campaigns WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "campaign", id)
	}

	claimIDs := []int64{}
	err = tx.SelectContext(ctx, &claimIDs, "SELECT id FROM claims WHERE campaign_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign claims: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM campaigns WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("failed to delete campaign: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return claimIDs, nil
}

// ReserveViewsTx deducts views from a campaign and records the claim in one
// transaction. The campaign row is locked FOR UPDATE so concurrent
// reservations serialize on it.
func (s *Store) ReserveViewsTx(ctx context.Context, campaignID, agentID, views int64) (*models.Claim, int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var campaign struct {
		PendingViews int64  `db:"pending_views"`
		Status       string `db:"status"`
	}
	err = tx.GetContext(ctx, &campaign,
		"SELECT pending_views, status FROM campaigns WHERE id = $1 FOR UPDATE", campaignID)
	if err != nil {
		return nil, 0, notFound(err, "campaign", campaignID)
	}

	if campaign.Status == models.CampaignStatusPaused || campaign.Status == models.CampaignStatusCompleted {
		return nil, 0, fmt.Errorf("campaign %d is %s: %w", campaignID, campaign.Status, models.ErrCampaignClosed)
	}
	if campaign.PendingViews < views {
		return nil, 0, fmt.Errorf("available=%d, requested=%d: %w",
			campaign.PendingViews, views, models.ErrInsufficientInventory)
	}

	var remaining int64
	err = tx.GetContext(ctx, &remaining,
		"UPDATE campaigns SET pending_views = pending_views - $1, updated_at = NOW() WHERE id = $2 RETURNING pending_views",
		views, campaignID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reserve views: %w", err)
	}

	var claim models.Claim
	err = tx.GetContext(ctx, &claim, `
		INSERT INTO claims (agent_id, campaign_id, views_committed, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		agentID, campaignID, views, models.ClaimStatusActive)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create claim: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, 0, err
	}
	return &claim, remaining, nil
}
