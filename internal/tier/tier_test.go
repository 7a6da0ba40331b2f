package tier

import (
	"testing"

	"github.com/eamaze/shopcore/internal/shop"
	"github.com/stretchr/testify/assert"
)

func rules(thresholds ...int) []shop.TierRule {
	out := make([]shop.TierRule, 0, len(thresholds))
	for i, th := range thresholds {
		out = append(out, shop.TierRule{RoleID: int64(i + 1), ThresholdCents: th})
	}
	return out
}

func TestEarnedNone(t *testing.T) {
	assert.Empty(t, Earned(rules(1000, 5000), 999))
	assert.Empty(t, Earned(nil, 100000))
}

func TestEarnedExactThreshold(t *testing.T) {
	got := Earned(rules(1000, 5000), 1000)
	assert.Equal(t, []int64{1}, got)
}

func TestEarnedMultiple(t *testing.T) {
	// Crossing several thresholds at once grants every tier passed.
	got := Earned(rules(1000, 5000, 10000), 7500)
	assert.Equal(t, []int64{1, 2}, got)
}

func TestEarnedAll(t *testing.T) {
	got := Earned(rules(1000, 5000, 10000), 10000)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestEarnedZeroThresholdAlwaysGranted(t *testing.T) {
	got := Earned(rules(0), 0)
	assert.Equal(t, []int64{1}, got)
}
