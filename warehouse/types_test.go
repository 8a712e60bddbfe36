package warehouse

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/handle"
)

func TestMaterialToGPUPacksHandleIndices(t *testing.T) {
	m := Material{
		Type:             MaterialPBR,
		Features:         FeatureAlbedoTexture | FeatureSkinning,
		AlbedoTexture:    handle.Handle{Index: 7, Generation: 1},
		MetallicFactor:   0.5,
		RoughnessFactor:  0.8,
		BaseColorFactor:  mgl32.Vec4{1, 1, 1, 1},
		EmissiveFactor:   mgl32.Vec3{0, 0, 0},
	}
	g := m.ToGPU()
	require.EqualValues(t, 7, g.AlbedoIndex)
	require.EqualValues(t, 0, g.MetalRoughIndex)
	require.Equal(t, FeatureAlbedoTexture|FeatureSkinning, g.Features)
	require.EqualValues(t, MaterialPBR, g.MaterialType)
	require.InDelta(t, 0.5, g.MetallicFactor, 1e-6)
}

func TestCameraProjectionSwitchesOnOrthographic(t *testing.T) {
	persp := Camera{Position: mgl32.Vec3{0, 0, 5}, Forward: mgl32.Vec3{0, 0, -1}, Up: mgl32.Vec3{0, 1, 0}, FovYRadians: DegToRad(60), Near: 0.1, Far: 100, Aspect: 16.0 / 9.0}
	ortho := persp
	ortho.IsOrthographic = true
	ortho.OrthoWidth, ortho.OrthoHeight = 10, 10

	require.NotEqual(t, persp.Projection(), ortho.Projection())
}

func TestCameraFrustumHasSixPlanes(t *testing.T) {
	c := Camera{Position: mgl32.Vec3{0, 0, 5}, Forward: mgl32.Vec3{0, 0, -1}, Up: mgl32.Vec3{0, 1, 0}, FovYRadians: DegToRad(60), Near: 0.1, Far: 100, Aspect: 1}
	f := c.Frustum()
	require.Len(t, f, 6)
}

func TestDegToRad(t *testing.T) {
	require.InDelta(t, 3.14159265, DegToRad(180), 1e-4)
}
