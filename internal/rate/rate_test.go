package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_AllowsUnderLimit(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(1000, 0)
	for i := 0; i < 8; i++ {
		ok := tr.Allow("10.0.0.1", 2, now.Add(time.Duration(i)*100*time.Millisecond))
		require.True(t, ok, "accept %d should be allowed", i)
	}
}

func TestTracker_RejectsOverLimit(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(2000, 0)
	allowed := 0
	for i := 0; i < 40; i++ {
		if tr.Allow("10.0.0.2", 2, now.Add(time.Duration(i)*50*time.Millisecond)) {
			allowed++
		}
	}
	// spec.md §8 testable property: accepts in a 4s window <= 4*connect_freq+3
	assert.LessOrEqual(t, allowed, 4*2+3)
}

func TestTracker_WindowExpires(t *testing.T) {
	tr := NewTracker()
	base := time.Unix(3000, 0)
	for i := 0; i < 8; i++ {
		tr.Allow("10.0.0.3", 2, base)
	}
	later := base.Add(5 * time.Second)
	assert.True(t, tr.Allow("10.0.0.3", 2, later))
}

func TestAccount_AddsOnePlusBytesOverFifty(t *testing.T) {
	points := 0
	require.NoError(t, Account(&points, 100, 50))
	assert.Equal(t, 2, points) // 1 + 50/50

	require.NoError(t, Account(&points, 100, 40))
	assert.Equal(t, 3, points) // + 1 + 40/50 (integer division truncates to 0)
}

func TestAccount_ReportsFloodingOverLimit(t *testing.T) {
	points := 90
	err := Account(&points, 100, 500) // + 1 + 500/50 = 11 -> 101
	assert.ErrorIs(t, err, ErrFlooding)
	assert.Equal(t, 101, points)
}

func TestAccount_ZeroLimitDisablesFlooding(t *testing.T) {
	points := 0
	for i := 0; i < 1000; i++ {
		require.NoError(t, Account(&points, 0, 1000))
	}
}

func TestDecay_DrainsOnePointPerCallSaturatingAtZero(t *testing.T) {
	points := 2
	Decay(&points)
	assert.Equal(t, 1, points)
	Decay(&points)
	assert.Equal(t, 0, points)
	Decay(&points)
	assert.Equal(t, 0, points)
}
