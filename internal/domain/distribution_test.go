package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistributionStatus_AdvanceForward(t *testing.T) {
	s := DistributionNotOffered

	s, err := s.Advance(DistributionSignalDetected)
	require.NoError(t, err)
	require.Equal(t, DistributionSignalDetected, s)

	s, err = s.Advance(DistributionOffered)
	require.NoError(t, err)
	require.Equal(t, DistributionOffered, s)

	s, err = s.Advance(DistributionSent)
	require.NoError(t, err)
	require.Equal(t, DistributionSent, s)
}

func TestDistributionStatus_SkippingStatesIsAllowed(t *testing.T) {
	// An explicit document request jumps straight to Sent.
	s, err := DistributionNotOffered.Advance(DistributionSent)
	require.NoError(t, err)
	require.Equal(t, DistributionSent, s)
}

func TestDistributionStatus_RegressionRejected(t *testing.T) {
	_, err := DistributionSent.Advance(DistributionOffered)
	require.Error(t, err)

	_, err = DistributionOffered.Advance(DistributionNotOffered)
	require.Error(t, err)
}

func TestDistributionStatus_SameValueIsNoOp(t *testing.T) {
	s, err := DistributionOffered.Advance(DistributionOffered)
	require.NoError(t, err)
	require.Equal(t, DistributionOffered, s)

	s, err = DistributionSent.Advance(DistributionSent)
	require.NoError(t, err)
	require.Equal(t, DistributionSent, s)
}

func TestDistributionStatus_Terminal(t *testing.T) {
	require.True(t, DistributionSent.Terminal())
	require.False(t, DistributionOffered.Terminal())
}

func TestParseDistributionStatus_Roundtrip(t *testing.T) {
	for _, s := range []DistributionStatus{DistributionNotOffered, DistributionSignalDetected, DistributionOffered, DistributionSent} {
		require.Equal(t, s, ParseDistributionStatus(s.String()))
	}
}

func TestParseDistributionStatus_UnknownFallsToNotOffered(t *testing.T) {
	require.Equal(t, DistributionNotOffered, ParseDistributionStatus("garbage"))
	require.Equal(t, DistributionNotOffered, ParseDistributionStatus(""))
}
