// Package fingerprint computes perceptual hashes of proof screenshots and
// compares them by Hamming distance.
package fingerprint

import (
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
)

// DefaultThreshold is the distance below which two fingerprints are treated
// as the same screenshot.
const DefaultThreshold = 5

var (
	ErrDecode             = errors.New("image decode failed")
	ErrLengthMismatch     = errors.New("fingerprint length mismatch")
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
)

// Fingerprint is a fixed-length bit string. A nil Fingerprint means "none".
type Fingerprint []byte

// Len returns the length in bits
func (f Fingerprint) Len() int {
	return len(f) * 8
}

// IsZero reports whether the fingerprint is absent
func (f Fingerprint) IsZero() bool {
	return len(f) == 0
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f)
}

// Parse decodes the hex form produced by String
func Parse(s string) (Fingerprint, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	return Fingerprint(b), nil
}

// MarshalText implements encoding.TextMarshaler
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Scan implements sql.Scanner; fingerprints are stored as hex TEXT
func (f *Fingerprint) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case string:
		return f.UnmarshalText([]byte(v))
	case []byte:
		return f.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrInvalidFingerprint, src)
	}
}

// Value implements driver.Valuer
func (f Fingerprint) Value() (driver.Value, error) {
	if f.IsZero() {
		return nil, nil
	}
	return f.String(), nil
}

// Distance returns the number of differing bits between a and b
func Distance(a, b Fingerprint) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d bits vs %d bits", ErrLengthMismatch, a.Len(), b.Len())
	}
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d, nil
}

// Comparator turns distances into duplicate verdicts
type Comparator struct {
	Threshold int
}

// NewComparator returns a comparator; a non-positive threshold means DefaultThreshold
func NewComparator(threshold int) Comparator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Comparator{Threshold: threshold}
}

// IsDuplicate reports whether a distance is close enough to be the same image
func (c Comparator) IsDuplicate(distance int) bool {
	return distance < c.Threshold
}

// Compare returns the distance between a and b and the duplicate verdict
func (c Comparator) Compare(a, b Fingerprint) (int, bool, error) {
	d, err := Distance(a, b)
	if err != nil {
		return 0, false, err
	}
	return d, c.IsDuplicate(d), nil
}
