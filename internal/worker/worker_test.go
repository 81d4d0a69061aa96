package worker

import (
	"context"
	"testing"

	"claim-service/internal/dedup"
	"claim-service/internal/fingerprint"
	"claim-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexWorker_AppliesEvents(t *testing.T) {
	ctx := context.Background()
	tree := dedup.NewBKTree(fingerprint.NewComparator(fingerprint.DefaultThreshold))
	w := NewIndexWorker(nil, tree, "replica-a")

	require.NoError(t, w.HandleClaimSubmitted(ctx, &models.ClaimSubmittedEvent{
		ClaimID:     5,
		Fingerprint: "00000000000000ff",
	}))
	// submissions without a fingerprint are ignored
	require.NoError(t, w.HandleClaimSubmitted(ctx, &models.ClaimSubmittedEvent{ClaimID: 6}))
	assert.Equal(t, 1, tree.Len())

	query, err := fingerprint.Parse("00000000000000fe")
	require.NoError(t, err)
	m, found, err := tree.Nearest(ctx, query, 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), m.ClaimID)

	require.NoError(t, w.HandleCampaignDeleted(ctx, &models.CampaignDeletedEvent{CampaignID: 1, ClaimIDs: []int64{5}}))
	assert.Equal(t, 0, tree.Len())
}

func TestIndexWorker_BadFingerprint(t *testing.T) {
	tree := dedup.NewBKTree(fingerprint.NewComparator(fingerprint.DefaultThreshold))
	w := NewIndexWorker(nil, tree, "")

	err := w.HandleClaimSubmitted(context.Background(), &models.ClaimSubmittedEvent{ClaimID: 1, Fingerprint: "zz"})
	assert.ErrorIs(t, err, fingerprint.ErrInvalidFingerprint)

	require.NoError(t, w.HandleClaimSubmitted(context.Background(), &models.ClaimSubmittedEvent{ClaimID: 2, Fingerprint: "ff"}))
	err = w.HandleClaimSubmitted(context.Background(), &models.ClaimSubmittedEvent{ClaimID: 3, Fingerprint: "00000000000000ff"})
	assert.ErrorIs(t, err, fingerprint.ErrLengthMismatch)
}
