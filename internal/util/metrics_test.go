package util

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterFingerprintCacheHitRate(t *testing.T) {
	rate := 0.0
	gauge := RegisterFingerprintCacheHitRate(func() float64 { return rate })

	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))

	rate = 0.75
	assert.Equal(t, 0.75, testutil.ToFloat64(gauge))
}
