package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"claim-service/internal/fingerprint"
)

type bkNode struct {
	claimID  int64
	fp       fingerprint.Fingerprint
	children map[int]*bkNode
}

// BKTree is an in-memory Burkhard-Keller tree keyed by Hamming distance.
// Lookups only visit subtrees whose edge distance is within the search
// radius of the query, so they stay well below a full scan.
type BKTree struct {
	mu         sync.RWMutex
	comparator fingerprint.Comparator
	root       *bkNode
	bitLen     int
	live       map[int64]struct{}
	removed    map[int64]struct{}
}

// NewBKTree creates an empty tree
func NewBKTree(comparator fingerprint.Comparator) *BKTree {
	return &BKTree{
		comparator: comparator,
		live:       make(map[int64]struct{}),
		removed:    make(map[int64]struct{}),
	}
}

// Load inserts every fingerprint from source and returns how many were
// skipped for having a different bit length.
func (t *BKTree) Load(ctx context.Context, source Source) (int, error) {
	existing, err := source.ListFingerprints(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list fingerprints: %w", err)
	}

	skipped := 0
	for _, e := range existing {
		if err := t.Add(ctx, e.ClaimID, e.Fingerprint); err != nil {
			if errors.Is(err, fingerprint.ErrLengthMismatch) {
				skipped++
				continue
			}
			return skipped, err
		}
	}
	return skipped, nil
}

// Len returns the number of live fingerprints
func (t *BKTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// Add inserts a fingerprint; re-adding a known claim is a no-op
func (t *BKTree) Add(_ context.Context, claimID int64, fp fingerprint.Fingerprint) error {
	if fp.IsZero() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.live[claimID]; ok {
		return nil
	}
	if _, ok := t.removed[claimID]; ok {
		return nil
	}

	n := &bkNode{claimID: claimID, fp: fp}
	if t.root == nil {
		t.root = n
		t.bitLen = fp.Len()
		t.live[claimID] = struct{}{}
		return nil
	}
	if fp.Len() != t.bitLen {
		return fmt.Errorf("%w: tree holds %d bits, got %d", fingerprint.ErrLengthMismatch, t.bitLen, fp.Len())
	}

	cur := t.root
	for {
		d, err := fingerprint.Distance(cur.fp, fp)
		if err != nil {
			return err
		}
		child, ok := cur.children[d]
		if !ok {
			if cur.children == nil {
				cur.children = make(map[int]*bkNode)
			}
			cur.children[d] = n
			break
		}
		cur = child
	}

	t.live[claimID] = struct{}{}
	return nil
}

// Remove tombstones the given claims; their nodes stay as routing points.
// A claim removed before it was ever added stays out, since events from
// different partitions can arrive in either order.
func (t *BKTree) Remove(claimIDs ...int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range claimIDs {
		delete(t.live, id)
		t.removed[id] = struct{}{}
	}
}

// Nearest searches within radius threshold-1 of fp
func (t *BKTree) Nearest(_ context.Context, fp fingerprint.Fingerprint, excludeClaimID int64) (Match, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.root == nil {
		return Match{}, false, nil
	}
	if fp.Len() != t.bitLen {
		return Match{}, false, fmt.Errorf("%w: tree holds %d bits, got %d", fingerprint.ErrLengthMismatch, t.bitLen, fp.Len())
	}

	radius := t.comparator.Threshold - 1
	best := Match{Distance: -1}
	stack := []*bkNode{t.root}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d, err := fingerprint.Distance(n.fp, fp)
		if err != nil {
			return Match{}, false, err
		}

		if _, dead := t.removed[n.claimID]; !dead && n.claimID != excludeClaimID && t.comparator.IsDuplicate(d) {
			if best.Distance < 0 || d < best.Distance {
				best = Match{ClaimID: n.claimID, Distance: d}
			}
		}

		for k, child := range n.children {
			if k >= d-radius && k <= d+radius {
				stack = append(stack, child)
			}
		}
	}

	return best, best.Distance >= 0, nil
}
