package engine

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/talon3d/engine/frame"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/warehouse"
)

// UploadMesh hands the asset loader's geometry to the warehouse,
// returning the mesh handle scene nodes attach. skin is nil for static
// meshes.
func (e *Engine) UploadMesh(vertexData []byte, vertexStride uint32, indexData []uint32, aabb geom.AABB, skin *warehouse.SkinUpload, debugName string) (handle.Handle, error) {
	return e.warehouse.UploadMesh(vertexData, vertexStride, indexData, aabb, skin, debugName)
}

// UploadMaterial pools a material and uploads its GPU mirror.
func (e *Engine) UploadMaterial(mat warehouse.Material) (handle.Handle, error) {
	return e.warehouse.UploadMaterial(mat)
}

// UploadTexture2D uploads a decoded image as a bindless 2D texture. A
// nil img yields a valid placeholder slot.
func (e *Engine) UploadTexture2D(img image.Image, debugName string) (handle.Handle, error) {
	return e.warehouse.UploadTexture2D(img, warehouse.TextureImage2D, debugName)
}

// UploadTextureCube uploads six faces as one bindless cube texture.
func (e *Engine) UploadTextureCube(faces [6]image.Image, debugName string) (handle.Handle, error) {
	return e.warehouse.UploadTextureCube(faces, debugName)
}

// FreeMesh, FreeMaterial, FreeTexture2D and FreeTextureCube release
// warehouse resources; stale handles are no-ops.
func (e *Engine) FreeMesh(h handle.Handle) bool        { return e.warehouse.FreeMesh(h) }
func (e *Engine) FreeMaterial(h handle.Handle) bool    { return e.warehouse.FreeMaterial(h) }
func (e *Engine) FreeTexture2D(h handle.Handle) bool   { return e.warehouse.FreeTexture2D(h) }
func (e *Engine) FreeTextureCube(h handle.Handle) bool { return e.warehouse.FreeTextureCube(h) }

// AllocBoneRange reserves boneCount matrix slots in the bone slab for a
// skinned node; the returned offset goes into the node's mesh
// attachment (scene.MeshSkinning.BoneMatrixOffset).
func (e *Engine) AllocBoneRange(boneCount uint32) (uint32, error) {
	return e.warehouse.AllocBoneRange(boneCount)
}

// FreeBoneRange returns a bone range to its slab class.
func (e *Engine) FreeBoneRange(offset uint32) bool {
	return e.warehouse.FreeBoneRange(offset)
}

// SetBoneMatrices writes a skinned node's palette into every frame
// slice at once — the right call for a bind pose or any palette that
// should apply regardless of which frame is recording. Per-frame
// animation playback writes only the recording frame's slice via
// SetBoneMatricesForFrame.
func (e *Engine) SetBoneMatrices(offset uint32, matrices []mgl32.Mat4) {
	for i := 0; i < frame.MaxFramesInFlight; i++ {
		e.warehouse.WriteBoneMatrices(i, offset, matrices)
	}
}

// SetBoneMatricesForFrame writes one frame slice's palette; frameIndex
// should be CurrentFrame() during the update preceding RenderFrame.
func (e *Engine) SetBoneMatricesForFrame(frameIndex int, offset uint32, matrices []mgl32.Mat4) {
	e.warehouse.WriteBoneMatrices(frameIndex, offset, matrices)
}

// CurrentFrame returns the frame slot index the next RenderFrame call
// records with, for callers staging per-frame bone palettes.
func (e *Engine) CurrentFrame() int { return e.frames.Current() }

// Warehouse exposes the resource warehouse's read-only lookups for
// application code that needs to inspect uploaded resources.
func (e *Engine) Warehouse() *warehouse.Warehouse { return e.warehouse }
