package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowFlags(start, end string) *Flags {
	return &Flags{Start: &start, End: &end}
}

func TestWindow_DefaultsToTrailingYear(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	start, end, err := windowFlags("", "").Window(now)
	require.NoError(t, err)

	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(-1, 0, 0), start)
}

func TestWindow_EndDateIsInclusive(t *testing.T) {
	start, end, err := windowFlags("2024-01-01", "2024-03-01").Window(time.Now())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, int(999*time.Millisecond), time.UTC), end)
}

func TestWindow_RejectsBadDates(t *testing.T) {
	_, _, err := windowFlags("01/02/2024", "").Window(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestWindow_RejectsInvertedRange(t *testing.T) {
	_, _, err := windowFlags("2024-03-01", "2024-01-01").Window(time.Now())
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT"}, splitList("", "BTCUSDT"))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, splitList("BTCUSDT, ETHUSDT,", "ignored"))
	assert.Empty(t, splitList("", ""))
}
