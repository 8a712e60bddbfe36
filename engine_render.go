package engine

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/talon3d/engine/batch"
	"github.com/talon3d/engine/cull"
	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/frame"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/shadow"
	"github.com/talon3d/engine/warehouse"
)

// Shadow projection extents shared by the shadow passes and the light
// records fragment shading projects with. pointShadowNear must match
// the POINT_SHADOW_NEAR constant in main_forward.wgsl's cube depth
// reconstruction.
const (
	shadowSceneRadius = 50
	shadowNear        = 0.1
	shadowFar         = 200
	pointShadowNear   = 0.01
)

// RenderFrame runs the per-frame sequence: propagate dirty world
// matrices, recycle/spawn particles, dispatch culling, record
// shadow/main/particle/post-process passes, submit and present.
// rebuildSwapchain is true when the caller must reconfigure its surface
// before the next call.
func (e *Engine) RenderFrame(dt float32) (rebuildSwapchain bool, err error) {
	if e.camera.IsZero() {
		return false, diag.NewError(diag.InitializationFailed, "engine: RenderFrame called before SetCamera")
	}

	e.graph.UpdateWorldMatrices()
	e.particles.Recycle()
	e.particles.Spawn(e.graph.CollectEmitters(), dt, e.rng)

	return e.frames.RenderFrame(func(encoder *wgpu.CommandEncoder, f *frame.Frame, swapchainView *wgpu.TextureView) error {
		return e.recordFrame(encoder, f, swapchainView, dt)
	})
}

func (e *Engine) recordFrame(encoder *wgpu.CommandEncoder, f *frame.Frame, swapchainView *wgpu.TextureView, dt float32) error {
	frustum := e.lastCamera.Frustum()
	boneSliceOffset := uint32(e.frames.Current()) * e.warehouse.BoneSliceStride()

	slots := e.graph.CullingSlots(e.warehouse)
	if err := e.cull.Dispatch(encoder, slots, frustum); err != nil {
		return err
	}
	if visibility, ready := e.cull.Readback(); ready {
		e.lastVisibility = visibility
	} else if e.lastVisibility == nil {
		e.lastVisibility = cull.CPUFallback(slots, frustum)
	}

	visible := e.graph.CollectVisibleMeshes(e.lastVisibility)
	batches := e.batches.Build(visible)

	lights := e.graph.CollectLights()
	lightVPs := lightViewProjections(lights)
	e.warehouse.WriteLights(packLights(lights, lightVPs))

	bonesBG, err := e.warehouse.BonesBindGroup()
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "engine: bones bind group")
	}

	lightIndices := shadow.PrioritizeLights(lights, e.lastCamera.Position, e.cfg.ShadowPrioritized, e.cfg.ShadowPerFrame, &e.cullUpdateOffset)
	if err := e.renderShadows(encoder, f, lights, lightVPs, lightIndices, bonesBG, boneSliceOffset, batches); err != nil {
		return err
	}

	sceneBG, err := e.warehouse.SceneBindGroup(f.ShadowArray2D, f.ShadowArrayCube)
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "engine: scene bind group")
	}
	cameraBG, err := e.warehouse.CameraBindGroup()
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "engine: camera bind group")
	}
	materialBG, err := e.warehouse.MaterialBindGroup()
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "engine: material bind group")
	}
	textureBG, err := e.warehouse.TextureArrayBindGroup()
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "engine: texture bind group")
	}
	cameraOffset := e.warehouse.CameraDynamicOffset(e.camera)

	e.main.Render(encoder, f.MainColor, f.MainDepth, cameraBG, materialBG, textureBG, sceneBG, cameraOffset, boneSliceOffset, batches)

	forceFields := e.graph.CollectForceFields()
	if err := e.particles.Dispatch(encoder, forceFields, dt); err != nil {
		return err
	}
	e.particles.Readback()
	if err := e.particles.Draw(encoder, f.MainColor, cameraBG, cameraOffset); err != nil {
		return err
	}

	if err := e.post.Render(encoder, e.postFX, f.MainColor, f.PingPongA, f.PingPongB, swapchainView); err != nil {
		return err
	}

	return nil
}

// lightViewProjections derives each light's shadow-pass matrix:
// orthographic around the light's world position for directional,
// perspective from the light's position for spot, identity for point lights (their six cube
// faces each get their own matrix at render time, and fragment shading
// reconstructs cube depth analytically instead of projecting).
func lightViewProjections(lights []scene.LightNode) []mgl32.Mat4 {
	out := make([]mgl32.Mat4, len(lights))
	for i, l := range lights {
		switch l.Light.Kind {
		case scene.LightDirectional:
			out[i] = shadow.DirectionalViewProjection(l.WorldForward, l.WorldPosition, shadowSceneRadius, shadowNear, shadowFar)
		case scene.LightSpot:
			out[i] = shadow.SpotViewProjection(l.WorldPosition, l.WorldForward, l.Light.ConeAngleRadian, shadowNear, l.Light.Radius)
		default:
			out[i] = mgl32.Ident4()
		}
	}
	return out
}

// packLights converts collected light nodes into the light SSBO layout
// the main pass's fragment shading loops over. vps must be the same
// matrices the lights' shadow passes render with.
func packLights(lights []scene.LightNode, vps []mgl32.Mat4) []warehouse.LightGPU {
	out := make([]warehouse.LightGPU, len(lights))
	for i, l := range lights {
		hasShadow := float32(0)
		if l.Light.HasShadow {
			hasShadow = 1
		}
		out[i] = warehouse.LightGPU{
			ViewProj:       vps[i],
			PositionRange:  [4]float32{l.WorldPosition.X(), l.WorldPosition.Y(), l.WorldPosition.Z(), l.Light.Radius},
			ColorIntensity: [4]float32{l.Light.ColorRGB.X(), l.Light.ColorRGB.Y(), l.Light.ColorRGB.Z(), l.Light.Intensity},
			DirectionAngle: [4]float32{l.WorldForward.X(), l.WorldForward.Y(), l.WorldForward.Z(), l.Light.ConeAngleRadian},
			KindShadow:     [4]float32{float32(l.Light.Kind), hasShadow, 0, 0},
		}
	}
	return out
}

// shadowCasters filters batches down to cast_shadow instances whose
// world AABB intersects the light's frustum, so a light's depth pass
// draws only geometry that can actually occlude it. The test is the
// same conservative p-vertex rejection the camera culling pass uses.
func shadowCasters(batches []batch.Batch, frustum geom.Frustum, bounds scene.MeshBoundsProvider) []batch.Batch {
	out := make([]batch.Batch, 0, len(batches))
	for _, b := range batches {
		var kept []batch.Instance
		for _, inst := range b.Instances {
			if !inst.CastShadow {
				continue
			}
			if local, ok := bounds.MeshLocalAABB(inst.Mesh); ok {
				if !geom.AABBInFrustum(local.Transform(inst.WorldMatrix), frustum) {
					continue
				}
			}
			kept = append(kept, inst)
		}
		if len(kept) > 0 {
			out = append(out, batch.Batch{Key: b.Key, Instances: kept})
		}
	}
	return out
}

// renderShadows refreshes the shadow maps for lightIndices this frame:
// one depth pass for directional/spot lights, six cube-face passes for
// point lights, each filtered to shadow casters inside that pass's
// frustum and writing its view-projection into the shadow UBO slot
// light*6+face. A pass with no casters still records, clearing any
// stale depth from earlier frames.
func (e *Engine) renderShadows(encoder *wgpu.CommandEncoder, f *frame.Frame, lights []scene.LightNode, lightVPs []mgl32.Mat4, lightIndices []int, bonesBG *wgpu.BindGroup, boneSliceOffset uint32, batches []batch.Batch) error {
	for _, idx := range lightIndices {
		if idx >= len(lights) || idx >= frame.MaxLights {
			continue
		}
		l := lights[idx]
		if !l.Light.HasShadow {
			continue
		}

		switch l.Light.Kind {
		case scene.LightDirectional, scene.LightSpot:
			vp := lightVPs[idx]
			casters := shadowCasters(batches, geom.ExtractFrustum(vp), e.warehouse)
			if err := e.shadow.RenderLight(encoder, f.ShadowMaps2D[idx], idx*6, vp, bonesBG, boneSliceOffset, casters); err != nil {
				return err
			}
		case scene.LightPoint:
			vps := shadow.PointCubeViewProjections(l.WorldPosition, pointShadowNear, l.Light.Radius)
			for face := 0; face < 6; face++ {
				casters := shadowCasters(batches, geom.ExtractFrustum(vps[face]), e.warehouse)
				if err := e.shadow.RenderLight(encoder, f.ShadowCubeFaces[idx][face], idx*6+face, vps[face], bonesBG, boneSliceOffset, casters); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
