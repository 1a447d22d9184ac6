package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusCompleted, false},
		{StatusAccepted, StatusPending, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusAccepted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminal(t *testing.T) {
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusAccepted.Terminal())
	require.False(t, StatusInProgress.Terminal())
}

func TestStatusValid(t *testing.T) {
	for _, s := range []RequestStatus{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled} {
		require.True(t, s.Valid())
	}
	require.False(t, RequestStatus("done").Valid())
	require.False(t, RequestStatus("").Valid())
}

func TestNewMechanicCode(t *testing.T) {
	code := NewMechanicCode(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.Regexp(t, regexp.MustCompile(`^MCH-2026-\d{4}$`), code)
}

func TestFinalCost(t *testing.T) {
	req := ServiceRequest{EstimatedCost: 450}
	require.Equal(t, 450.0, req.FinalCost())

	actual := 500.0
	req.ActualCost = &actual
	require.Equal(t, 500.0, req.FinalCost())
}
