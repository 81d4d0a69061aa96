// Package dedup finds previously accepted proof fingerprints that are close
// enough to a new one to count as the same screenshot.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
)

// Index kinds
const (
	KindScan   = "scan"
	KindBKTree = "bktree"
)

// Match is the closest accepted fingerprint under the duplicate threshold
type Match struct {
	ClaimID  int64
	Distance int
}

// Index looks up near-duplicate fingerprints
type Index interface {
	// Nearest returns the closest fingerprint of a claim other than
	// excludeClaimID whose distance is below the duplicate threshold.
	Nearest(ctx context.Context, fp fingerprint.Fingerprint, excludeClaimID int64) (Match, bool, error)
	// Add records a fingerprint accepted for claimID
	Add(ctx context.Context, claimID int64, fp fingerprint.Fingerprint) error
	// Remove forgets fingerprints of deleted claims
	Remove(claimIDs ...int64)
}

// Source lists every accepted fingerprint
type Source interface {
	ListFingerprints(ctx context.Context) ([]models.ProofFingerprint, error)
}

// ScanIndex compares against every stored fingerprint on each lookup
type ScanIndex struct {
	source     Source
	comparator fingerprint.Comparator
}

// NewScanIndex creates a linear-scan index over source
func NewScanIndex(source Source, comparator fingerprint.Comparator) *ScanIndex {
	return &ScanIndex{source: source, comparator: comparator}
}

// Nearest scans all stored fingerprints. Stored fingerprints of a different
// bit length come from another hash configuration and are skipped.
func (s *ScanIndex) Nearest(ctx context.Context, fp fingerprint.Fingerprint, excludeClaimID int64) (Match, bool, error) {
	existing, err := s.source.ListFingerprints(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to list fingerprints: %w", err)
	}

	best := Match{Distance: -1}
	for _, e := range existing {
		if e.ClaimID == excludeClaimID || e.Fingerprint.IsZero() {
			continue
		}
		d, err := fingerprint.Distance(fp, e.Fingerprint)
		if errors.Is(err, fingerprint.ErrLengthMismatch) {
			continue
		}
		if err != nil {
			return Match{}, false, err
		}
		if !s.comparator.IsDuplicate(d) {
			continue
		}
		if best.Distance < 0 || d < best.Distance {
			best = Match{ClaimID: e.ClaimID, Distance: d}
			if d == 0 {
				break
			}
		}
	}

	return best, best.Distance >= 0, nil
}

// Add is a no-op; the store is the source of truth
func (s *ScanIndex) Add(context.Context, int64, fingerprint.Fingerprint) error {
	return nil
}

// Remove is a no-op; deleted claims disappear from the store
func (s *ScanIndex) Remove(...int64) {}
