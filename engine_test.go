package engine

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/batch"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/postprocess"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/shadow"
)

// These tests exercise the facade methods that only touch the scene
// graph and post-process stack, neither of which needs a live GPU
// device, by constructing an Engine with its graph/postFX fields set
// directly rather than going through New (which requires a device).
func newTestEngine() *Engine {
	return &Engine{
		graph:  scene.NewGraph(0),
		postFX: postprocess.NewStack(),
	}
}

func TestAttachAndFreeNodeRoundTrips(t *testing.T) {
	e := newTestEngine()
	h, err := e.AttachNode(e.Graph().Root(), scene.Identity(), scene.Attachment{}, "child")
	require.NoError(t, err)

	_, ok := e.Graph().Get(h)
	require.True(t, ok)

	e.FreeNode(h)
	_, ok = e.Graph().Get(h)
	require.False(t, ok)
}

func TestSetNodeCullingTogglesFlag(t *testing.T) {
	e := newTestEngine()
	h, err := e.AttachNode(e.Graph().Root(), scene.Identity(), scene.Attachment{}, "child")
	require.NoError(t, err)

	e.SetNodeCulling(h, true)
	n, ok := e.Graph().Get(h)
	require.True(t, ok)
	require.True(t, n.CullingEnabled)

	e.SetNodeCulling(h, false)
	n, _ = e.Graph().Get(h)
	require.False(t, n.CullingEnabled)
}

func TestPostprocessStackAddAndClearThroughFacade(t *testing.T) {
	e := newTestEngine()
	e.AddPostprocessEffect(postprocess.Entry{Effect: postprocess.EffectGrayscale})
	require.Len(t, e.postFX.Entries(), 1)

	e.ClearPostprocessEffects()
	entries := e.postFX.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, postprocess.EffectNone, entries[0].Effect)
}

func TestSetCameraIsZeroBeforeFirstCall(t *testing.T) {
	e := newTestEngine()
	require.True(t, e.camera.IsZero())
}

func TestPackLightsCarriesKindPositionAndShadowFlag(t *testing.T) {
	lights := []scene.LightNode{
		{
			WorldPosition: mgl32.Vec3{1, 2, 3},
			WorldForward:  mgl32.Vec3{0, 0, -1},
			Light: &scene.LightAttachment{
				Kind:      scene.LightSpot,
				ColorRGB:  mgl32.Vec3{1, 0.5, 0.25},
				Intensity: 4,
				Radius:    20,
				HasShadow: true,
			},
		},
	}
	vps := lightViewProjections(lights)
	packed := packLights(lights, vps)
	require.Len(t, packed, 1)
	require.Equal(t, vps[0], packed[0].ViewProj)
	require.Equal(t, [4]float32{1, 2, 3, 20}, packed[0].PositionRange)
	require.Equal(t, [4]float32{1, 0.5, 0.25, 4}, packed[0].ColorIntensity)
	require.EqualValues(t, scene.LightSpot, packed[0].KindShadow[0])
	require.EqualValues(t, 1, packed[0].KindShadow[1])
}

type fakeMeshBounds struct{ aabb geom.AABB }

func (f fakeMeshBounds) MeshLocalAABB(h handle.Handle) (geom.AABB, bool) {
	return f.aabb, true
}

func TestShadowCastersFiltersByFlagAndFrustum(t *testing.T) {
	// A spot light at the origin looking down -Z: boxes behind the light
	// must be rejected even when flagged as casters.
	vp := shadow.SpotViewProjection(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, 0.5, 0.1, 100)
	frustum := geom.ExtractFrustum(vp)
	bounds := fakeMeshBounds{aabb: geom.UnitBox()}

	inFront := batch.Instance{WorldMatrix: mgl32.Translate3D(0, 0, -5), CastShadow: true}
	behind := batch.Instance{WorldMatrix: mgl32.Translate3D(0, 0, 5), CastShadow: true}
	noShadow := batch.Instance{WorldMatrix: mgl32.Translate3D(0, 0, -5), CastShadow: false}

	batches := []batch.Batch{{Instances: []batch.Instance{inFront, behind, noShadow}}}
	casters := shadowCasters(batches, frustum, bounds)

	require.Len(t, casters, 1)
	require.Len(t, casters[0].Instances, 1)
	require.Equal(t, inFront.WorldMatrix, casters[0].Instances[0].WorldMatrix)
}

func TestShadowCastersDropsEmptyBatches(t *testing.T) {
	vp := shadow.SpotViewProjection(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, 0.5, 0.1, 100)
	frustum := geom.ExtractFrustum(vp)
	batches := []batch.Batch{{Instances: []batch.Instance{{CastShadow: false}}}}
	require.Empty(t, shadowCasters(batches, frustum, fakeMeshBounds{aabb: geom.UnitBox()}))
}
