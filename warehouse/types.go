package warehouse

import (
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/handle"
)

// Range is a sub-allocated span within one of the warehouse's global
// vertex/index buffers: (offset, count) in elements.
type Range struct {
	Offset uint32
	Count  uint32
}

// StandardVertexStride is the byte stride of the position/normal/uv vertex
// format the main and shadow render pipelines' vertex buffer layouts
// assume every uploaded mesh uses.
const StandardVertexStride = 32

// Bone is one entry of a skinned mesh's bone list.
type Bone struct {
	Name            string
	InverseBindPose mgl32.Mat4
}

// MeshSkinning is present on a Mesh only when it carries per-vertex bone
// weights.
type MeshSkinning struct {
	SkinVertexRange Range
	Bones           []Bone
	RootBoneIndex   uint32
}

// SkinUpload is the caller-side skinning payload for UploadMesh:
// VertexData holds one SkinVertexStride record (4x u32 joints + 4x f32
// weights) per mesh vertex.
type SkinUpload struct {
	VertexData    []byte
	Bones         []Bone
	RootBoneIndex uint32
}

// Mesh is a warehouse-pooled geometry entry: an AABB plus sub-allocated
// ranges into the global vertex/index buffers, and an optional skinning
// block. Mesh data itself lives in the two global buffers, not here.
type Mesh struct {
	AABB        geom.AABB
	IndexRange  Range
	VertexRange Range
	HasSkinning bool
	Skinning    MeshSkinning
	DebugName   string
}

// MaterialType selects the shading model a material's feature bits and
// factors are interpreted against.
type MaterialType uint8

const (
	MaterialPBR MaterialType = iota
	MaterialUnlit
	MaterialWireframe
)

// Material feature bits, used directly as the Features half of the batch
// builder's batch key.
const (
	FeatureAlbedoTexture uint32 = 1 << iota
	FeatureMetallicRoughnessTexture
	FeatureNormalTexture
	FeatureEmissiveTexture
	FeatureSkinning
)

// Material is pure data: shaders dereference its texture handles via
// bindless indexing rather than the material owning a descriptor set.
type Material struct {
	Type     MaterialType
	Features uint32

	AlbedoTexture            handle.Handle
	MetallicRoughnessTexture handle.Handle
	NormalTexture            handle.Handle
	EmissiveTexture          handle.Handle

	BaseColorFactor  mgl32.Vec4
	MetallicFactor   float32
	RoughnessFactor  float32
	EmissiveFactor   mgl32.Vec3

	DebugName string
}

// MaterialGPU is the tightly packed, std430-compatible mirror of
// Material uploaded to the bindless MaterialGPU[] SSBO.
type MaterialGPU struct {
	BaseColorFactor  [4]float32
	EmissiveFactor   [4]float32 // xyz factor, w unused padding
	AlbedoIndex      uint32
	MetalRoughIndex  uint32
	NormalIndex      uint32
	EmissiveIndex    uint32
	MetallicFactor   float32
	RoughnessFactor  float32
	Features         uint32
	MaterialType     uint32
}

func (m Material) ToGPU() MaterialGPU {
	return MaterialGPU{
		BaseColorFactor: m.BaseColorFactor,
		EmissiveFactor:  [4]float32{m.EmissiveFactor.X(), m.EmissiveFactor.Y(), m.EmissiveFactor.Z(), 0},
		AlbedoIndex:     m.AlbedoTexture.Index,
		MetalRoughIndex: m.MetallicRoughnessTexture.Index,
		NormalIndex:     m.NormalTexture.Index,
		EmissiveIndex:   m.EmissiveTexture.Index,
		MetallicFactor:  m.MetallicFactor,
		RoughnessFactor: m.RoughnessFactor,
		Features:        m.Features,
		MaterialType:    uint32(m.Type),
	}
}

// TextureKind distinguishes the two texture shapes the warehouse pools.
type TextureKind uint8

const (
	TextureImage2D TextureKind = iota
	TextureImageCube
)

// Texture2D is one bindless sampler2D[] slot. The pixel data lives in
// the warehouse's shared 2D-array texture at the layer matching this
// entry's handle index; Width/Height record the source image's
// dimensions before it was rescaled into the array.
type Texture2D struct {
	Width, Height uint32
	Format        wgpu.TextureFormat
	DebugName     string
}

// TextureCube is one bindless samplerCube[] slot, with a 2D view of each
// face.
type TextureCube struct {
	Width, Height uint32
	Format        wgpu.TextureFormat
	Image         *wgpu.Texture
	View          *wgpu.TextureView
	FaceViews     [6]*wgpu.TextureView
	DebugName     string
}

// Camera holds perspective/orthographic parameters and derives view,
// projection and frustum.
type Camera struct {
	IsOrthographic bool

	Position mgl32.Vec3
	Forward  mgl32.Vec3
	Up       mgl32.Vec3

	FovYRadians float32 // perspective
	Near, Far   float32
	Aspect      float32

	OrthoWidth, OrthoHeight float32 // orthographic extent

	DebugName string
}

func (c Camera) View() mgl32.Mat4 {
	target := c.Position.Add(c.Forward)
	return mgl32.LookAtV(c.Position, target, c.Up)
}

func (c Camera) Projection() mgl32.Mat4 {
	if c.IsOrthographic {
		hw, hh := c.OrthoWidth/2, c.OrthoHeight/2
		return mgl32.Ortho(-hw, hw, -hh, hh, c.Near, c.Far)
	}
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(c.FovYRadians, aspect, c.Near, c.Far)
}

func (c Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}

func (c Camera) Frustum() geom.Frustum {
	return geom.ExtractFrustum(c.ViewProjection())
}

// CameraGPU mirrors Camera for the bindless Camera[] UBO array.
type CameraGPU struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   [4]float32
}

func (c Camera) ToGPU() CameraGPU {
	return CameraGPU{
		View:       c.View(),
		Projection: c.Projection(),
		Position:   [4]float32{c.Position.X(), c.Position.Y(), c.Position.Z(), 0},
	}
}

// DegToRad converts degrees to radians, a convenience for building
// camera and light FOVs.
func DegToRad(deg float32) float32 { return deg * float32(math.Pi) / 180 }
