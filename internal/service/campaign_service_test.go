package service

import (
	"context"
	"testing"

	"claim-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := h.campaign(t, 500, "250.50")
	assert.Equal(t, int64(500), c.PendingViews)
	assert.Equal(t, models.CampaignStatusOpen, c.Status)
	assert.Equal(t, int64(1), c.BusinessID)

	got, err := h.campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Title, got.Title)

	_, err = h.campaigns.GetCampaign(ctx, 424242)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateCampaign_Invalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	valid := func() *CreateCampaignRequest {
		return &CreateCampaignRequest{Title: "Sale", Price: decimal.NewFromInt(10), TargetViews: 10}
	}

	_, err := h.campaigns.CreateCampaign(ctx, agentA, valid())
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = h.campaigns.CreateCampaign(ctx, nobody, valid())
	assert.ErrorIs(t, err, models.ErrForbidden)

	req := valid()
	req.Title = "   "
	_, err = h.campaigns.CreateCampaign(ctx, owner, req)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	req = valid()
	req.Price = decimal.Zero
	_, err = h.campaigns.CreateCampaign(ctx, owner, req)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	req = valid()
	req.TargetViews = 0
	_, err = h.campaigns.CreateCampaign(ctx, owner, req)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestDeleteCampaign_ReleasesFingerprints(t *testing.T) {
	h := newHarness(t, withBKTree)
	ctx := context.Background()

	doomed := h.campaign(t, 100, "100")
	claim := h.commit(t, agentA, doomed.ID, 10)
	proof := pngDataURL(t, screenshot(31))
	_, err := h.claims.SubmitClaim(ctx, agentA, claim.ID, proof)
	require.NoError(t, err)

	err = h.campaigns.DeleteCampaign(ctx, rival, doomed.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	err = h.campaigns.DeleteCampaign(ctx, agentA, doomed.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	require.NoError(t, h.campaigns.DeleteCampaign(ctx, owner, doomed.ID))

	_, err = h.repo.GetClaim(ctx, claim.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, h.events.Types(), models.EventTypeCampaignDeleted)

	// the same screenshot is usable again once its claim is gone
	next := h.campaign(t, 100, "100")
	fresh := h.commit(t, agentB, next.ID, 10)
	_, err = h.claims.SubmitClaim(ctx, agentB, fresh.ID, proof)
	require.NoError(t, err)

	err = h.campaigns.DeleteCampaign(ctx, admin, next.ID)
	require.NoError(t, err)
	err = h.campaigns.DeleteCampaign(ctx, admin, next.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
