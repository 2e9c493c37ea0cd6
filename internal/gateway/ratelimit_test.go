package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIPRateLimiterAllowsUpToBurst(t *testing.T) {
	l := NewIPRateLimiter()
	for i := 0; i < RateLimitRequests; i++ {
		require.True(t, l.Allow("1.2.3.4"), "request %d should be allowed", i+1)
	}
	require.False(t, l.Allow("1.2.3.4"), "request beyond burst should be rejected")
}

func TestIPRateLimiterTracksIPsIndependently(t *testing.T) {
	l := NewIPRateLimiter()
	for i := 0; i < RateLimitRequests; i++ {
		require.True(t, l.Allow("1.2.3.4"))
	}
	require.True(t, l.Allow("5.6.7.8"))
}

func TestIPRateLimiterEvictIdle(t *testing.T) {
	l := NewIPRateLimiter()
	l.Allow("1.2.3.4")
	require.Len(t, l.limiters, 1)

	l.EvictIdle(time.Now().Add(RateLimitWindow + time.Minute))
	require.Len(t, l.limiters, 0)
}
