package fingerprint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Kind selects the perceptual hash algorithm
type Kind string

const (
	KindPerception Kind = "phash"
	KindDifference Kind = "dhash"
	KindAverage    Kind = "ahash"
)

// DefaultMaxPixels rejects images larger than a 50 megapixel screenshot
const DefaultMaxPixels = 50_000_000

// ParseKind validates a configured hash kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPerception, KindDifference, KindAverage:
		return k, nil
	case "":
		return KindPerception, nil
	default:
		return "", fmt.Errorf("unknown fingerprint kind %q", s)
	}
}

// Hasher produces a fingerprint from raw image bytes
type Hasher interface {
	Fingerprint(data []byte) (Fingerprint, error)
}

// Engine decodes images and hashes them with goimagehash
type Engine struct {
	kind      Kind
	maxPixels int
}

// Option configures an Engine
type Option func(*Engine)

// WithKind sets the hash algorithm
func WithKind(kind Kind) Option {
	return func(e *Engine) {
		e.kind = kind
	}
}

// WithMaxPixels bounds width*height of accepted images; zero disables the check
func WithMaxPixels(n int) Option {
	return func(e *Engine) {
		e.maxPixels = n
	}
}

// NewEngine creates a fingerprint engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		kind:      KindPerception,
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kind returns the configured algorithm
func (e *Engine) Kind() Kind {
	return e.kind
}

// Fingerprint decodes data as a raster image and returns its 64-bit perceptual hash
func (e *Engine) Fingerprint(data []byte) (Fingerprint, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if e.maxPixels > 0 && cfg.Width*cfg.Height > e.maxPixels {
		return nil, fmt.Errorf("%w: image %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, e.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	hash, err := e.hash(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	fp := make(Fingerprint, 8)
	binary.BigEndian.PutUint64(fp, hash.GetHash())
	return fp, nil
}

func (e *Engine) hash(img image.Image) (*goimagehash.ImageHash, error) {
	switch e.kind {
	case KindDifference:
		return goimagehash.DifferenceHash(img)
	case KindAverage:
		return goimagehash.AverageHash(img)
	default:
		return goimagehash.PerceptionHash(img)
	}
}
