package shadow

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/scene"
)

func lightNode(kind scene.LightKind, pos mgl32.Vec3) scene.LightNode {
	return scene.LightNode{
		Node:          handle.Handle{Index: uint32(pos.X()), Generation: 1},
		WorldPosition: pos,
		WorldForward:  mgl32.Vec3{0, 0, -1},
		Light:         &scene.LightAttachment{Kind: kind},
	}
}

func TestPrioritizeLightsAlwaysIncludesSun(t *testing.T) {
	lights := []scene.LightNode{
		lightNode(scene.LightDirectional, mgl32.Vec3{0, 0, 0}),
		lightNode(scene.LightPoint, mgl32.Vec3{10, 0, 0}),
	}
	offset := 0
	indices := PrioritizeLights(lights, mgl32.Vec3{0, 0, 0}, 4, 2, &offset)
	require.Contains(t, indices, 0)
}

func TestPrioritizeLightsOrdersByDistance(t *testing.T) {
	lights := []scene.LightNode{
		lightNode(scene.LightDirectional, mgl32.Vec3{0, 0, 0}),
		lightNode(scene.LightPoint, mgl32.Vec3{50, 0, 0}),
		lightNode(scene.LightPoint, mgl32.Vec3{5, 0, 0}),
	}
	offset := 0
	indices := PrioritizeLights(lights, mgl32.Vec3{0, 0, 0}, 1, 0, &offset)
	require.Equal(t, []int{0, 2}, indices)
}

func TestPrioritizeLightsRoundRobinsRemainder(t *testing.T) {
	lights := make([]scene.LightNode, 6) // index 0 is the sun, 1-5 are non-prioritized
	lights[0] = lightNode(scene.LightDirectional, mgl32.Vec3{0, 0, 0})
	for i := 1; i < 6; i++ {
		lights[i] = lightNode(scene.LightPoint, mgl32.Vec3{float32(i * 100), 0, 0})
	}

	offset := 0
	first := PrioritizeLights(lights, mgl32.Vec3{0, 0, 0}, 0, 2, &offset)
	second := PrioritizeLights(lights, mgl32.Vec3{0, 0, 0}, 0, 2, &offset)

	require.Len(t, first, 3)  // sun + 2 round-robin
	require.Len(t, second, 3)
	require.NotEqual(t, first[1:], second[1:])
}

func TestPrioritizeLightsHandlesNoLights(t *testing.T) {
	offset := 0
	require.Nil(t, PrioritizeLights(nil, mgl32.Vec3{}, 4, 2, &offset))
}

func TestDirectionalViewProjectionCentersOnScene(t *testing.T) {
	vp := DirectionalViewProjection(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, 0}, 50, 0.1, 200)
	origin := vp.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	require.InDelta(t, 0, origin.X(), 1e-4)
	require.InDelta(t, 0, origin.Y(), 1e-4)
}

func TestSpotViewProjectionClampsDegenerateCone(t *testing.T) {
	vp := SpotViewProjection(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, 0, 0.1, 50)
	require.False(t, anyNaN(vp))
}

func TestPointCubeViewProjectionsCoverSixFaces(t *testing.T) {
	vps := PointCubeViewProjections(mgl32.Vec3{1, 2, 3}, 0.1, 100)
	for _, vp := range vps {
		require.False(t, anyNaN(vp))
	}
}

func anyNaN(m mgl32.Mat4) bool {
	for _, v := range m {
		if v != v {
			return true
		}
	}
	return false
}
