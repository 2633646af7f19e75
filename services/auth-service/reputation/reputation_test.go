package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBadgeForPointsThresholds(t *testing.T) {
	tests := []struct {
		points int
		badge  string
	}{
		{0, BadgeBronze},
		{199, BadgeBronze},
		{200, BadgeSilver},
		{499, BadgeSilver},
		{500, BadgeGold},
		{999, BadgeGold},
		{1000, BadgePlatinum},
		{5000, BadgePlatinum},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.badge, BadgeForPoints(tt.points), "points=%d", tt.points)
	}
}

func TestBadgeForPointsMonotone(t *testing.T) {
	rank := map[string]int{BadgeBronze: 0, BadgeSilver: 1, BadgeGold: 2, BadgePlatinum: 3}

	prev := BadgeForPoints(0)
	for points := 1; points <= 1200; points++ {
		badge := BadgeForPoints(points)
		assert.GreaterOrEqual(t, rank[badge], rank[prev], "badge regressed at %d points", points)
		prev = badge
	}
}
