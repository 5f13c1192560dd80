package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllow_UnderLimit(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		d := l.Allow("1.2.3.4")
		require.True(t, d.Allowed, "request %d", i+1)
		require.Equal(t, 3, d.Limit)
		require.Equal(t, 2-i, d.Remaining)
	}
}

func TestAllow_SixteenthOfFifteenDenied(t *testing.T) {
	l := New(DefaultLimit, DefaultWindow)

	for i := 0; i < 15; i++ {
		require.True(t, l.Allow("client").Allowed)
	}
	d := l.Allow("client")
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)

	require.True(t, l.Allow("a").Allowed)
	require.False(t, l.Allow("a").Allowed)
	require.True(t, l.Allow("b").Allowed)
}

func TestAllow_WindowRollover(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a").Allowed)
	require.False(t, l.Allow("a").Allowed)

	now = now.Add(time.Minute)
	require.True(t, l.Allow("a").Allowed, "fresh window must reset the count")
}

func TestNew_DefaultsApplied(t *testing.T) {
	l := New(0, 0)
	require.Equal(t, DefaultLimit, l.limit)
	require.Equal(t, DefaultWindow, l.window)
}
