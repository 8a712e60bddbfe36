package warehouse

import (
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/slab"
)

// Config bounds the warehouse's fixed-size pools and global buffers. Every
// limit maps directly to a bindless array length the shaders index into,
// so growing one means rebuilding the corresponding bind group.
type Config struct {
	MaxMeshes        int
	MaxMaterials     int
	MaxTextures2D    int
	MaxTexturesCube  int
	MaxCameras       int
	MaxLights        int
	VertexBufferSize uint64 // bytes
	IndexBufferSize  uint64 // bytes

	// TextureArraySize is the square resolution of each layer of the
	// bindless texture array; uploads are rescaled to it. Memory cost is
	// TextureArraySize^2 * 4 * MaxTextures2D bytes.
	TextureArraySize uint32

	// SkinVertexBufferSize bounds the global joint/weight vertex buffer
	// skinned meshes sub-allocate from.
	SkinVertexBufferSize uint64

	// BoneClasses configures the bone-matrix slab's size classes; the
	// bone SSBO holds BoneFrameSlices slices of the resulting capacity so
	// each frame in flight owns a disjoint region.
	BoneClasses     []slab.ClassConfig
	BoneFrameSlices int
}

// DefaultConfig returns reasonable caps for a single mid-size scene.
func DefaultConfig() Config {
	return Config{
		MaxMeshes:            4096,
		MaxMaterials:         1024,
		MaxTextures2D:        256,
		MaxTexturesCube:      64,
		MaxCameras:           8,
		MaxLights:            10,
		VertexBufferSize:     256 << 20,
		IndexBufferSize:      64 << 20,
		TextureArraySize:     512,
		SkinVertexBufferSize: 64 << 20,
		BoneClasses:          DefaultBoneClasses(),
		BoneFrameSlices:      2,
	}
}

// Warehouse owns every GPU-resident resource pool: meshes, materials,
// textures and cameras, plus the global vertex/index buffers meshes are
// sub-allocated from and the bind group shaders use to dereference them
// bindlessly. Handles into these pools are the only thing the scene graph
// and batch builder carry around; the actual GPU objects never leave this
// package.
type Warehouse struct {
	ctx *gpu.Context
	log diag.Logger

	cfg Config

	meshes       *handle.Pool[Mesh]
	materials    *handle.Pool[Material]
	textures2D   *handle.Pool[Texture2D]
	texturesCube *handle.Pool[TextureCube]
	cameras      *handle.Pool[Camera]

	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer
	vertexCursor uint64
	indexCursor  uint64

	skinVertexBuffer      *wgpu.Buffer
	skinCursor            uint64
	dummySkinVertexBuffer *wgpu.Buffer

	boneSlab   *slab.Allocator
	boneBuffer *wgpu.Buffer

	// textureArray is the bindless sampler2D[] realization: one shared
	// 2D-array texture whose layer index equals the texture handle's
	// pool index. dummyLayerPix is the magenta/black checker payload a
	// layer is (re)filled with at init and on free.
	textureArray     *wgpu.Texture
	textureArrayView *wgpu.TextureView
	dummyLayerPix    []byte

	sampler        *wgpu.Sampler
	compareSampler *wgpu.Sampler

	materialLayout *wgpu.BindGroupLayout
	textureLayout  *wgpu.BindGroupLayout
	cameraLayout   *wgpu.BindGroupLayout
	bonesLayout    *wgpu.BindGroupLayout
	sceneLayout    *wgpu.BindGroupLayout

	materialBuffer *wgpu.Buffer
	cameraBuffer   *wgpu.Buffer
	lightBuffer    *wgpu.Buffer

	meshOverflow     diag.OnceWarner
	materialOverflow diag.OnceWarner
	textureOverflow  diag.OnceWarner
	cameraOverflow   diag.OnceWarner
	lightOverflow    diag.OnceWarner
}

// New allocates every warehouse pool and the two global geometry buffers,
// then builds the dummy skin buffer and fallback texture every mesh/
// material falls back to before its real upload completes.
func New(ctx *gpu.Context, cfg Config, log diag.Logger) (*Warehouse, error) {
	if log == nil {
		log = diag.NewNopLogger()
	}
	if len(cfg.BoneClasses) == 0 {
		cfg.BoneClasses = DefaultBoneClasses()
	}
	if cfg.BoneFrameSlices <= 0 {
		cfg.BoneFrameSlices = 2
	}
	if cfg.MaxLights <= 0 {
		cfg.MaxLights = 10
	}
	if cfg.SkinVertexBufferSize == 0 {
		cfg.SkinVertexBufferSize = 64 << 20
	}
	if cfg.TextureArraySize == 0 {
		cfg.TextureArraySize = 512
	}

	vbuf, err := ctx.CreateBuffer("warehouse.vertex", wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, cfg.VertexBufferSize)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: global vertex buffer")
	}
	ibuf, err := ctx.CreateBuffer("warehouse.index", wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, cfg.IndexBufferSize)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: global index buffer")
	}

	materialBuf, err := ctx.CreateBuffer("warehouse.materials", wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, uint64(cfg.MaxMaterials)*materialGPUStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: material SSBO")
	}
	cameraBuf, err := ctx.CreateBuffer("warehouse.cameras", wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, uint64(cfg.MaxCameras)*cameraSlotStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: camera UBO")
	}
	lightBuf, err := ctx.CreateBuffer("warehouse.lights", wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, lightHeaderSize+uint64(cfg.MaxLights)*lightGPUStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: light SSBO")
	}

	dummySkin, err := ctx.CreateBuffer("warehouse.dummy-skin", wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, 256)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: dummy skin vertex buffer")
	}

	sampler, err := ctx.Device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: sampler")
	}

	compareSampler, err := ctx.Device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		Compare:      wgpu.CompareFunctionLessEqual,
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "warehouse: shadow compare sampler")
	}

	w := &Warehouse{
		ctx: ctx,
		log: log,
		cfg: cfg,

		meshes:       handle.NewWithCapacity[Mesh](cfg.MaxMeshes),
		materials:    handle.NewWithCapacity[Material](cfg.MaxMaterials),
		textures2D:   handle.NewWithCapacity[Texture2D](cfg.MaxTextures2D),
		texturesCube: handle.NewWithCapacity[TextureCube](cfg.MaxTexturesCube),
		cameras:      handle.NewWithCapacity[Camera](cfg.MaxCameras),

		vertexBuffer:          vbuf,
		indexBuffer:           ibuf,
		dummySkinVertexBuffer: dummySkin,
		materialBuffer:        materialBuf,
		cameraBuffer:          cameraBuf,
		lightBuffer:           lightBuf,
		sampler:               sampler,
		compareSampler:        compareSampler,
	}

	if err := w.initBoneStore(); err != nil {
		return nil, err
	}
	if err := w.buildTextureArray(); err != nil {
		return nil, err
	}
	if err := w.buildLayouts(); err != nil {
		return nil, err
	}
	if err := w.buildSceneLayout(); err != nil {
		return nil, err
	}
	return w, nil
}

// fallbackCheckerPix is the 2x2 magenta/black RGBA payload the dummy
// layer pattern and the nil-image upload path are built from.
var fallbackCheckerPix = []byte{
	0xff, 0, 0xff, 0xff, 0, 0, 0, 0xff,
	0, 0, 0, 0xff, 0xff, 0, 0xff, 0xff,
}

// buildTextureArray allocates the shared 2D-array texture backing the
// bindless sampler2D[] slots (layer index == handle index), scales the
// magenta/black checker up to a full dummy layer, fills slot 0 with it
// and reserves that slot in the pool, so shaders reading index 0 — the
// unused-index convention — always land on a valid, obviously-wrong
// texel rather than trapping.
func (w *Warehouse) buildTextureArray() error {
	size := w.cfg.TextureArraySize
	tex, err := w.ctx.Device.CreateTexture(&wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: size, Height: size, DepthOrArrayLayers: uint32(w.cfg.MaxTextures2D)},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: bindless texture array")
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2DArray,
		BaseArrayLayer:  0,
		ArrayLayerCount: uint32(w.cfg.MaxTextures2D),
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: bindless texture array view")
	}
	w.textureArray = tex
	w.textureArrayView = view

	checker := image.NewRGBA(image.Rect(0, 0, 2, 2))
	copy(checker.Pix, fallbackCheckerPix)
	dummy := image.NewRGBA(image.Rect(0, 0, int(size), int(size)))
	draw.NearestNeighbor.Scale(dummy, dummy.Bounds(), checker, checker.Bounds(), draw.Src, nil)
	w.dummyLayerPix = dummy.Pix

	h, slot, ok := w.textures2D.Alloc()
	if !ok {
		return diag.NewError(diag.InitializationFailed, "warehouse: texture pool too small for the dummy slot")
	}
	*slot = Texture2D{Width: size, Height: size, Format: wgpu.TextureFormatRGBA8Unorm, DebugName: "dummy"}
	w.writeTextureLayer(h.Index, w.dummyLayerPix)
	return nil
}

// writeTextureLayer uploads one full layer's RGBA payload into the
// bindless array at the given layer index.
func (w *Warehouse) writeTextureLayer(layer uint32, pix []byte) {
	size := w.cfg.TextureArraySize
	dst := w.textureArray.AsImageCopy()
	dst.Origin = wgpu.Origin3D{X: 0, Y: 0, Z: layer}
	w.ctx.Queue.WriteTexture(
		dst,
		pix,
		&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: size * 4, RowsPerImage: size},
		&wgpu.Extent3D{Width: size, Height: size, DepthOrArrayLayers: 1},
	)
}

// buildLayouts creates the three bind group layouts the rest of the
// engine binds against every frame: one storage buffer of packed
// materials, one texture array standing in for a bindless sampler2D[]
// (cogentcore/webgpu's BindGroupLayoutEntry carries no binding-array
// Count field, so a single 2D-array texture plays that role here instead
// of a literal descriptor-indexing array), and one uniform buffer of
// packed cameras.
func (w *Warehouse) buildLayouts() error {
	var err error
	w.materialLayout, err = w.ctx.CreateBindGroupLayout("warehouse.materials.layout", []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type: wgpu.BufferBindingTypeReadOnlyStorage,
			},
		},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: material bind group layout")
	}

	w.textureLayout, err = w.ctx.CreateBindGroupLayout("warehouse.textures.layout", []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2DArray,
			},
		},
		{
			Binding:    1,
			Visibility: wgpu.ShaderStageFragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
		},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: texture bind group layout")
	}

	w.cameraLayout, err = w.ctx.CreateBindGroupLayout("warehouse.cameras.layout", []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
			},
		},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: camera bind group layout")
	}
	return nil
}

const (
	// materialGPUStride is sizeof(MaterialGPU): two 16-byte vec4 factors
	// plus eight 4-byte scalar/index fields.
	materialGPUStride = 64
	cameraGPUStride   = 144
	// cameraSlotStride pads each camera's UBO slot out to the minimum
	// uniform-buffer dynamic-offset alignment.
	cameraSlotStride = 256
)

// allocVertexRange and allocIndexRange sub-allocate from the tail of the
// global vertex or index buffer. The warehouse never frees or compacts these
// ranges: a mesh's storage is reclaimed only when the whole warehouse is
// torn down, matching the arena-style lifetime the rest of the engine
// assumes for geometry.
func (w *Warehouse) allocVertexRange(count, stride uint32) (Range, error) {
	byteLen := uint64(count) * uint64(stride)
	if w.vertexCursor+byteLen > w.cfg.VertexBufferSize {
		return Range{}, diag.NewError(diag.OutOfMemory, "warehouse: vertex buffer exhausted (%d + %d > %d)", w.vertexCursor, byteLen, w.cfg.VertexBufferSize)
	}
	r := Range{Offset: uint32(w.vertexCursor / uint64(stride)), Count: count}
	w.vertexCursor += byteLen
	return r, nil
}

func (w *Warehouse) allocIndexRange(count uint32) (Range, error) {
	const stride = 4 // uint32 indices
	byteLen := uint64(count) * stride
	if w.indexCursor+byteLen > w.cfg.IndexBufferSize {
		return Range{}, diag.NewError(diag.OutOfMemory, "warehouse: index buffer exhausted (%d + %d > %d)", w.indexCursor, byteLen, w.cfg.IndexBufferSize)
	}
	r := Range{Offset: uint32(w.indexCursor / stride), Count: count}
	w.indexCursor += byteLen
	return r, nil
}

// UploadMesh sub-allocates vertex/index storage, copies vertexData and
// indexData into the global buffers, and pools a Mesh entry describing
// the result. vertexStride is the byte size of one vertex; indexData is
// always treated as uint32 indices regardless of the source format. For
// a skinned mesh, skin carries one SkinVertexStride record per vertex
// plus the bone list; its data is sub-allocated from the global skin
// vertex buffer the same way.
func (w *Warehouse) UploadMesh(vertexData []byte, vertexStride uint32, indexData []uint32, aabb geom.AABB, skin *SkinUpload, debugName string) (handle.Handle, error) {
	h, m, ok := w.meshes.Alloc()
	if !ok {
		w.meshOverflow.Warn(w.log, "warehouse: mesh pool capacity %d exceeded, dropping %q", w.cfg.MaxMeshes, debugName)
		return handle.Handle{}, diag.NewError(diag.CapacityExceeded, "warehouse: mesh pool exhausted")
	}

	vertCount := uint32(len(vertexData)) / vertexStride
	vr, err := w.allocVertexRange(vertCount, vertexStride)
	if err != nil {
		w.meshes.Free(h)
		return handle.Handle{}, err
	}
	ir, err := w.allocIndexRange(uint32(len(indexData)))
	if err != nil {
		w.meshes.Free(h)
		return handle.Handle{}, err
	}

	w.ctx.WriteBuffer(w.vertexBuffer, uint64(vr.Offset)*uint64(vertexStride), vertexData)
	w.ctx.WriteBuffer(w.indexBuffer, uint64(ir.Offset)*4, wgpu.ToBytes(indexData))

	if debugName == "" {
		debugName = "mesh-" + uuid.NewString()[:8]
	}
	m.AABB = aabb
	m.VertexRange = vr
	m.IndexRange = ir
	m.DebugName = debugName

	if skin != nil {
		sr, err := w.allocSkinRange(uint32(len(skin.VertexData)) / SkinVertexStride)
		if err != nil {
			w.meshes.Free(h)
			return handle.Handle{}, err
		}
		w.ctx.WriteBuffer(w.skinVertexBuffer, uint64(sr.Offset)*SkinVertexStride, skin.VertexData)
		m.HasSkinning = true
		m.Skinning = MeshSkinning{
			SkinVertexRange: sr,
			Bones:           skin.Bones,
			RootBoneIndex:   skin.RootBoneIndex,
		}
	}
	return h, nil
}

// FreeMesh releases a mesh's pool slot. Its vertex/index/skin ranges stay
// allocated in the arena buffers (see allocVertexRange); only the handle
// stops resolving.
func (w *Warehouse) FreeMesh(h handle.Handle) bool {
	_, freed := w.meshes.Free(h)
	return freed
}

// FreeMaterial releases a material's pool slot and zeroes its GPU mirror
// so a stale bindless index reads an all-zero material rather than the
// recycled slot's new occupant mid-frame.
func (w *Warehouse) FreeMaterial(h handle.Handle) bool {
	_, freed := w.materials.Free(h)
	if freed {
		w.writeMaterialGPU(h.Index, MaterialGPU{})
	}
	return freed
}

// FreeTexture2D releases a 2D texture's pool slot and overwrites its
// array layer with the magenta checker, so materials still holding the
// stale handle render obviously-wrong texels rather than the freed
// slot's old contents or a later upload's.
func (w *Warehouse) FreeTexture2D(h handle.Handle) bool {
	_, freed := w.textures2D.Free(h)
	if freed {
		w.writeTextureLayer(h.Index, w.dummyLayerPix)
	}
	return freed
}

// FreeTextureCube releases a cube texture's pool slot and GPU objects.
func (w *Warehouse) FreeTextureCube(h handle.Handle) bool {
	t, freed := w.texturesCube.Free(h)
	if freed && t.Image != nil {
		t.Image.Release()
		t.Image = nil
		t.View = nil
		t.FaceViews = [6]*wgpu.TextureView{}
	}
	return freed
}

// FreeCamera releases a camera's pool slot; its UBO slot keeps the last
// uploaded matrices until the slot is recycled.
func (w *Warehouse) FreeCamera(h handle.Handle) bool {
	_, freed := w.cameras.Free(h)
	return freed
}

// UploadMaterial pools a Material and uploads its packed GPU mirror into
// the material SSBO at the slot matching the returned handle's index.
func (w *Warehouse) UploadMaterial(mat Material) (handle.Handle, error) {
	h, slot, ok := w.materials.Alloc()
	if !ok {
		w.materialOverflow.Warn(w.log, "warehouse: material pool capacity %d exceeded, dropping %q", w.cfg.MaxMaterials, mat.DebugName)
		return handle.Handle{}, diag.NewError(diag.CapacityExceeded, "warehouse: material pool exhausted")
	}
	if mat.DebugName == "" {
		mat.DebugName = "material-" + uuid.NewString()[:8]
	}
	*slot = mat
	w.writeMaterialGPU(h.Index, mat.ToGPU())
	return h, nil
}

func (w *Warehouse) writeMaterialGPU(slot uint32, g MaterialGPU) {
	w.ctx.WriteBuffer(w.materialBuffer, uint64(slot)*materialGPUStride, wgpu.ToBytes([]MaterialGPU{g}))
}

// UploadTexture2D decodes img into one layer of the bindless texture
// array (layer index == the returned handle's index), rescaling it to
// the array's layer resolution, and pools a Texture2D entry recording
// the source dimensions. A nil img fills the layer with the magenta
// checker, so a caller reserving a texture slot before its bytes arrive
// still gets a valid, obviously-placeholder handle.
func (w *Warehouse) UploadTexture2D(img image.Image, kind TextureKind, debugName string) (handle.Handle, error) {
	h, slot, ok := w.textures2D.Alloc()
	if !ok {
		w.textureOverflow.Warn(w.log, "warehouse: texture2d pool capacity %d exceeded, dropping %q", w.cfg.MaxTextures2D, debugName)
		return handle.Handle{}, diag.NewError(diag.CapacityExceeded, "warehouse: texture2d pool exhausted")
	}
	if debugName == "" {
		debugName = "texture2d-" + uuid.NewString()[:8]
	}

	size := w.cfg.TextureArraySize
	if img == nil {
		*slot = Texture2D{Width: size, Height: size, Format: wgpu.TextureFormatRGBA8Unorm, DebugName: debugName}
		w.writeTextureLayer(h.Index, w.dummyLayerPix)
		return h, nil
	}

	bounds := img.Bounds()
	layer := image.NewRGBA(image.Rect(0, 0, int(size), int(size)))
	draw.ApproxBiLinear.Scale(layer, layer.Bounds(), img, bounds, draw.Src, nil)

	*slot = Texture2D{Width: uint32(bounds.Dx()), Height: uint32(bounds.Dy()), Format: wgpu.TextureFormatRGBA8Unorm, DebugName: debugName}
	w.writeTextureLayer(h.Index, layer.Pix)
	return h, nil
}

// UploadTextureCube uploads six equally sized faces (+X,-X,+Y,-Y,+Z,-Z,
// in that order) into one cube texture, building both the cube view used
// for sampling and six individual 2D face views. The shadow renderer does
// not use these; it renders into the frame's own shadow cube faces.
func (w *Warehouse) UploadTextureCube(faces [6]image.Image, debugName string) (handle.Handle, error) {
	bounds := faces[0].Bounds()
	width, height := uint32(bounds.Dx()), uint32(bounds.Dy())

	tex, err := w.ctx.Device.CreateTexture(&wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 6},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return handle.Handle{}, diag.WrapError(diag.InitializationFailed, err, "warehouse: texturecube %q", debugName)
	}

	for i, face := range faces {
		rgba := image.NewRGBA(face.Bounds())
		draw.Draw(rgba, rgba.Bounds(), face, face.Bounds().Min, draw.Src)
		copyDst := tex.AsImageCopy()
		copyDst.Origin = wgpu.Origin3D{X: 0, Y: 0, Z: uint32(i)}
		w.ctx.Queue.WriteTexture(
			copyDst,
			rgba.Pix,
			&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: width * 4, RowsPerImage: height},
			&wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		)
	}

	cubeView, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimensionCube,
		BaseArrayLayer:  0,
		ArrayLayerCount: 6,
	})
	if err != nil {
		return handle.Handle{}, diag.WrapError(diag.InitializationFailed, err, "warehouse: texturecube view %q", debugName)
	}

	h, slot, ok := w.texturesCube.Alloc()
	if !ok {
		w.textureOverflow.Warn(w.log, "warehouse: texturecube pool capacity %d exceeded, dropping %q", w.cfg.MaxTexturesCube, debugName)
		return handle.Handle{}, diag.NewError(diag.CapacityExceeded, "warehouse: texturecube pool exhausted")
	}
	if debugName == "" {
		debugName = "texturecube-" + uuid.NewString()[:8]
	}
	entry := TextureCube{Width: width, Height: height, Format: wgpu.TextureFormatRGBA8Unorm, Image: tex, View: cubeView, DebugName: debugName}
	for i := 0; i < 6; i++ {
		faceView, ferr := tex.CreateView(&wgpu.TextureViewDescriptor{
			Dimension:       wgpu.TextureViewDimension2D,
			BaseArrayLayer:  uint32(i),
			ArrayLayerCount: 1,
		})
		if ferr != nil {
			return handle.Handle{}, diag.WrapError(diag.InitializationFailed, ferr, "warehouse: texturecube face view %q[%d]", debugName, i)
		}
		entry.FaceViews[i] = faceView
	}
	*slot = entry
	return h, nil
}

// UploadCamera pools a Camera and uploads its packed GPU mirror into the
// camera UBO at the matching dynamic-offset slot.
func (w *Warehouse) UploadCamera(cam Camera) (handle.Handle, error) {
	h, slot, ok := w.cameras.Alloc()
	if !ok {
		w.cameraOverflow.Warn(w.log, "warehouse: camera pool capacity %d exceeded", w.cfg.MaxCameras)
		return handle.Handle{}, diag.NewError(diag.CapacityExceeded, "warehouse: camera pool exhausted")
	}
	*slot = cam
	w.UpdateCamera(h, cam)
	return h, nil
}

// UpdateCamera re-derives and re-uploads an existing camera's GPU mirror,
// for a camera that moves every frame (e.g. a player-controlled view).
func (w *Warehouse) UpdateCamera(h handle.Handle, cam Camera) {
	if slot, ok := w.cameras.Get(h); ok {
		*slot = cam
	}
	w.ctx.WriteBuffer(w.cameraBuffer, uint64(h.Index)*cameraSlotStride, wgpu.ToBytes([]CameraGPU{cam.ToGPU()}))
}

// MeshLocalAABB implements scene.MeshBoundsProvider.
func (w *Warehouse) MeshLocalAABB(h handle.Handle) (geom.AABB, bool) {
	m, ok := w.meshes.Get(h)
	if !ok {
		return geom.AABB{}, false
	}
	return m.AABB, true
}

// Mesh resolves a mesh handle for the batch builder and main renderer.
func (w *Warehouse) Mesh(h handle.Handle) (*Mesh, bool) { return w.meshes.Get(h) }

// Material resolves a material handle for the batch builder.
func (w *Warehouse) Material(h handle.Handle) (*Material, bool) { return w.materials.Get(h) }

// Texture2D resolves a 2D texture handle.
func (w *Warehouse) Texture2D(h handle.Handle) (*Texture2D, bool) { return w.textures2D.Get(h) }

// TextureCube resolves a cube texture handle.
func (w *Warehouse) TextureCube(h handle.Handle) (*TextureCube, bool) { return w.texturesCube.Get(h) }

// VertexBuffer and IndexBuffer expose the two global geometry buffers for
// the main renderer and shadow renderer to bind once per frame.
func (w *Warehouse) VertexBuffer() *wgpu.Buffer          { return w.vertexBuffer }
func (w *Warehouse) IndexBuffer() *wgpu.Buffer           { return w.indexBuffer }
func (w *Warehouse) DummySkinVertexBuffer() *wgpu.Buffer { return w.dummySkinVertexBuffer }
func (w *Warehouse) Sampler() *wgpu.Sampler              { return w.sampler }

// MaterialLayout, TextureLayout and CameraLayout expose the three bind
// group layouts so the main/shadow renderers can build pipeline layouts
// that include them.
func (w *Warehouse) MaterialLayout() *wgpu.BindGroupLayout { return w.materialLayout }
func (w *Warehouse) TextureLayout() *wgpu.BindGroupLayout  { return w.textureLayout }
func (w *Warehouse) CameraLayout() *wgpu.BindGroupLayout   { return w.cameraLayout }

// MaterialBindGroup and CameraBindGroup build bind groups pointing at the
// warehouse's material SSBO and camera UBO; callers bind these once per
// frame alongside the texture array bind group, which is built
// separately (TextureArrayBindGroup).
func (w *Warehouse) MaterialBindGroup() (*wgpu.BindGroup, error) {
	return w.ctx.CreateBindGroup("warehouse.materials.bg", w.materialLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: w.materialBuffer, Size: wgpu.WholeSize},
	})
}

func (w *Warehouse) CameraBindGroup() (*wgpu.BindGroup, error) {
	return w.ctx.CreateBindGroup("warehouse.cameras.bg", w.cameraLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: w.cameraBuffer, Size: cameraGPUStride},
	})
}

// CameraDynamicOffset returns the byte offset into the camera UBO h's
// slot sits at, for binding CameraBindGroup with a dynamic offset.
func (w *Warehouse) CameraDynamicOffset(h handle.Handle) uint32 {
	return h.Index * uint32(cameraSlotStride)
}

// TextureArrayBindGroup builds the bind group backing the bindless
// texture array: shaders index its layers directly by the texture
// handle's index resolved through the material SSBO.
func (w *Warehouse) TextureArrayBindGroup() (*wgpu.BindGroup, error) {
	return w.ctx.CreateBindGroup("warehouse.textures.bg", w.textureLayout, []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: w.textureArrayView},
		{Binding: 1, Sampler: w.sampler},
	})
}
