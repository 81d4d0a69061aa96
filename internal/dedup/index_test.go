package dedup

import (
	"context"
	"encoding/binary"
	"errors"
	"math/bits"
	"math/rand"
	"testing"

	"claim-service/internal/fingerprint"
	"claim-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	prints []models.ProofFingerprint
	err    error
}

func (s *sliceSource) ListFingerprints(context.Context) ([]models.ProofFingerprint, error) {
	return s.prints, s.err
}

func fp64(v uint64) fingerprint.Fingerprint {
	b := make(fingerprint.Fingerprint, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func newIndexes(source Source) map[string]Index {
	comparator := fingerprint.NewComparator(fingerprint.DefaultThreshold)
	tree := NewBKTree(comparator)
	_, _ = tree.Load(context.Background(), source)
	return map[string]Index{
		KindScan:   NewScanIndex(source, comparator),
		KindBKTree: tree,
	}
}

func TestIndex_Nearest(t *testing.T) {
	source := &sliceSource{prints: []models.ProofFingerprint{
		{ClaimID: 1, Fingerprint: fp64(0xF0F0F0F0F0F0F0F0)},
		{ClaimID: 2, Fingerprint: fp64(0x0F0F0F0F0F0F0F0F)},
		{ClaimID: 3, Fingerprint: fp64(0xF0F0F0F0F0F0F0F7)},
	}}

	for name, idx := range newIndexes(source) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			m, ok, err := idx.Nearest(ctx, fp64(0xF0F0F0F0F0F0F0F1), 99)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(1), m.ClaimID)
			assert.Equal(t, 1, m.Distance)

			// excluding the closest leaves claim 3 at distance 2
			m, ok, err = idx.Nearest(ctx, fp64(0xF0F0F0F0F0F0F0F1), 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(3), m.ClaimID)

			// five differing bits is not a duplicate
			_, ok, err = idx.Nearest(ctx, fp64(0xF0F0F0F0F0F0F00F), 99)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestScanIndex_SkipsOtherLengths(t *testing.T) {
	source := &sliceSource{prints: []models.ProofFingerprint{
		{ClaimID: 1, Fingerprint: fingerprint.Fingerprint{0xAA}},
		{ClaimID: 2, Fingerprint: fp64(42)},
	}}
	idx := NewScanIndex(source, fingerprint.NewComparator(5))

	m, ok, err := idx.Nearest(context.Background(), fp64(42), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), m.ClaimID)
	assert.Equal(t, 0, m.Distance)
}

func TestScanIndex_SourceError(t *testing.T) {
	boom := errors.New("db down")
	idx := NewScanIndex(&sliceSource{err: boom}, fingerprint.NewComparator(5))

	_, _, err := idx.Nearest(context.Background(), fp64(1), 0)
	assert.ErrorIs(t, err, boom)
}

func TestBKTree_AddRemove(t *testing.T) {
	ctx := context.Background()
	tree := NewBKTree(fingerprint.NewComparator(5))

	require.NoError(t, tree.Add(ctx, 1, fp64(0)))
	require.NoError(t, tree.Add(ctx, 1, fp64(0)))
	require.NoError(t, tree.Add(ctx, 2, fp64(0xFFFF)))
	assert.Equal(t, 2, tree.Len())

	err := tree.Add(ctx, 3, fingerprint.Fingerprint{0x01})
	assert.ErrorIs(t, err, fingerprint.ErrLengthMismatch)

	_, ok, err := tree.Nearest(ctx, fp64(1), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	tree.Remove(1)
	assert.Equal(t, 1, tree.Len())
	_, ok, err = tree.Nearest(ctx, fp64(1), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// removed claims are not resurrected by replayed events
	require.NoError(t, tree.Add(ctx, 1, fp64(0)))
	assert.Equal(t, 1, tree.Len())
}

func TestBKTree_MatchesScan(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(5))
	comparator := fingerprint.NewComparator(fingerprint.DefaultThreshold)

	var prints []models.ProofFingerprint
	for i := int64(1); i <= 500; i++ {
		prints = append(prints, models.ProofFingerprint{ClaimID: i, Fingerprint: fp64(r.Uint64())})
	}
	source := &sliceSource{prints: prints}

	tree := NewBKTree(comparator)
	skipped, err := tree.Load(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	scan := NewScanIndex(source, comparator)

	for i := 0; i < 200; i++ {
		base := binary.BigEndian.Uint64(prints[r.Intn(len(prints))].Fingerprint)
		flips := r.Intn(8)
		q := base
		for j := 0; j < flips; j++ {
			q ^= 1 << uint(r.Intn(64))
		}
		query := fp64(q)

		want, wantOK, err := scan.Nearest(ctx, query, 0)
		require.NoError(t, err)
		got, gotOK, err := tree.Nearest(ctx, query, 0)
		require.NoError(t, err)

		require.Equal(t, wantOK, gotOK, "query %x (flipped %d bits of %x)", q, bits.OnesCount64(q^base), base)
		if wantOK {
			assert.Equal(t, want.Distance, got.Distance)
		}
	}
}
