package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowsUpToMaxThenBlocks(t *testing.T) {
	l := New(map[Class]Limit{ClassBooking: {Max: 3, Window: time.Minute}})

	for i := 0; i < 3; i++ {
		d := l.Allow(ClassBooking, "client-a")
		require.True(t, d.Allowed)
	}
	d := l.Allow(ClassBooking, "client-a")
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
}

func TestWindowKeysAreIndependentPerClient(t *testing.T) {
	l := New(map[Class]Limit{ClassBooking: {Max: 1, Window: time.Minute}})

	require.True(t, l.Allow(ClassBooking, "client-a").Allowed)
	require.False(t, l.Allow(ClassBooking, "client-a").Allowed)
	require.True(t, l.Allow(ClassBooking, "client-b").Allowed)
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	fakeNow := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(map[Class]Limit{ClassBooking: {Max: 1, Window: time.Minute}})
	l.now = func() time.Time { return fakeNow }

	require.True(t, l.Allow(ClassBooking, "client-a").Allowed)
	require.False(t, l.Allow(ClassBooking, "client-a").Allowed)

	fakeNow = fakeNow.Add(61 * time.Second)
	require.True(t, l.Allow(ClassBooking, "client-a").Allowed)
}

func TestUnknownClassAlwaysAllowed(t *testing.T) {
	l := New(nil)
	d := l.Allow(Class("unused"), "anyone")
	require.True(t, d.Allowed)
}

func TestDefaultLimitsMatchSpecifiedAllowances(t *testing.T) {
	require.Equal(t, Limit{Max: 10, Window: 60 * time.Second}, DefaultLimits[ClassBooking])
	require.Equal(t, Limit{Max: 30, Window: 60 * time.Second}, DefaultLimits[ClassAvailability])
	require.Equal(t, Limit{Max: 5, Window: 60 * time.Second}, DefaultLimits[ClassOAuth])
}
