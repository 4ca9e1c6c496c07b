package resilience_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/madukaneranga/Kixora-sub000/internal/resilience"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := resilience.NewBreaker(3, 50*time.Millisecond, "script", zerolog.Nop())

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.Report(false)
	}
	require.False(t, b.Allow(), "breaker must open after the threshold")

	time.Sleep(60 * time.Millisecond)
	require.True(t, b.Allow(), "half-open after the cool-off")

	// a failed probe reopens immediately
	b.Report(false)
	require.False(t, b.Allow())
}

func TestBreakerRecoversOnProbeSuccess(t *testing.T) {
	b := resilience.NewBreaker(2, 30*time.Millisecond, "script", zerolog.Nop())
	b.Report(false)
	b.Report(false)
	require.False(t, b.Allow())

	time.Sleep(40 * time.Millisecond)
	require.True(t, b.Allow())
	b.Report(true)

	for i := 0; i < 5; i++ {
		require.True(t, b.Allow())
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := resilience.NewBreaker(3, time.Second, "script", zerolog.Nop())
	b.Report(false)
	b.Report(false)
	b.Report(true)
	b.Report(false)
	b.Report(false)
	require.True(t, b.Allow(), "non-consecutive failures must not open the breaker")
}
