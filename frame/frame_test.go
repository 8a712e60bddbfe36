package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextFrameIndexCyclesThroughAllSlots(t *testing.T) {
	require.Equal(t, 1, nextFrameIndex(0))
	require.Equal(t, 0, nextFrameIndex(1))
}

func TestMaxFramesInFlightIsTwo(t *testing.T) {
	require.Equal(t, 2, MaxFramesInFlight)
}

func TestMaxLightsMatchesShadowMapSlotCount(t *testing.T) {
	require.Equal(t, 10, MaxLights)
	var f Frame
	require.Len(t, f.ShadowMaps2D, MaxLights)
	require.Len(t, f.ShadowCubeFaces, MaxLights)
}
