package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/handle"
)

// AttachmentKind tags the closed, small set of things a Node can carry.
// This is modeled as a tagged union rather than an interface: the
// renderer switches on Kind instead of doing vtable dispatch over a
// dynamic attachment type.
type AttachmentKind uint8

const (
	AttachmentNone AttachmentKind = iota
	AttachmentMesh
	AttachmentPointLight
	AttachmentDirectionalLight
	AttachmentSpotLight
	AttachmentEmitter
	AttachmentForceField
	AttachmentParticleSystem
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentMesh:
		return "Mesh"
	case AttachmentPointLight:
		return "PointLight"
	case AttachmentDirectionalLight:
		return "DirectionalLight"
	case AttachmentSpotLight:
		return "SpotLight"
	case AttachmentEmitter:
		return "Emitter"
	case AttachmentForceField:
		return "ForceField"
	case AttachmentParticleSystem:
		return "ParticleSystem"
	default:
		return "None"
	}
}

// MeshSkinning is present on a MeshAttachment only for skinned meshes; the
// bone-matrix offset addresses this node's slice of the global bone slab
// (see the slab package).
type MeshSkinning struct {
	BoneMatrixOffset uint32
	BoneCount        uint32
}

// MeshAttachment attaches a warehouse mesh+material pair to a node.
type MeshAttachment struct {
	Mesh        handle.Handle
	Material    handle.Handle
	CastShadow  bool
	HasSkinning bool
	Skinning    MeshSkinning
}

// LightKind distinguishes the three light shapes the shadow renderer
// derives view/projection matrices for.
type LightKind uint8

const (
	LightPoint LightKind = iota
	LightDirectional
	LightSpot
)

// LightAttachment is the static configuration for a light-carrying node.
// World position/direction are derived from the node's world transform at
// collection time (see Graph.CollectLights), not stored here.
type LightAttachment struct {
	Kind LightKind

	ColorRGB  mgl32.Vec3
	Intensity float32

	Radius          float32 // point/spot falloff radius
	ConeAngleRadian float32 // spot half-angle

	HasShadow bool
	// ShadowMap is a shadow-map texture handle slot for this light (a 2D
	// handle for directional/spot, a cube handle for point). Nothing in the
	// engine assigns or reads it: shadow passes render into the frame's
	// per-light-index shadow layers.
	ShadowMap handle.Handle
}

// EmitterAttachment is the CPU-side particle emitter configuration that
// drives the particle engine's spawn step.
type EmitterAttachment struct {
	EmissionRate float32 // particles / second
	Lifetime     float32 // seconds
	Enabled      bool

	PositionSpread mgl32.Vec3
	VelocitySpread mgl32.Vec3
	InitialVelocity mgl32.Vec3

	Weight      float32
	WeightSpread float32

	ColorStart mgl32.Vec4
	ColorEnd   mgl32.Vec4
	SizeStart  float32
	SizeEnd    float32

	// TimeAccumulator tracks fractional emission intervals between frames;
	// owned by the particle engine's spawn step. The scene graph never
	// resets it, so it carries over when the node is reparented.
	TimeAccumulator float32
}

// ForceFieldBehavior selects how a force field perturbs nearby particles.
type ForceFieldBehavior uint8

const (
	ForceAttract ForceFieldBehavior = iota
	ForceRepel
	ForceOrbit
)

// ForceFieldAttachment is the static configuration for a force-field node.
type ForceFieldAttachment struct {
	Behavior     ForceFieldBehavior
	Strength     float32
	AreaOfEffect float32
	Fade         float32
}

// ParticleSystemAttachment marks a node as the origin of a renderable
// particle system and carries its own bounds for culling.
type ParticleSystemAttachment struct {
	AABB geom.AABB
}

// Attachment is the tagged union stored on every Node. Exactly one of the
// pointer fields matching Kind is non-nil; the rest are nil.
type Attachment struct {
	Kind AttachmentKind

	Mesh           *MeshAttachment
	Light          *LightAttachment
	Emitter        *EmitterAttachment
	ForceField     *ForceFieldAttachment
	ParticleSystem *ParticleSystemAttachment
}

func MeshAttach(m MeshAttachment) Attachment {
	return Attachment{Kind: AttachmentMesh, Mesh: &m}
}

func LightAttach(l LightAttachment) Attachment {
	kind := AttachmentPointLight
	switch l.Kind {
	case LightDirectional:
		kind = AttachmentDirectionalLight
	case LightSpot:
		kind = AttachmentSpotLight
	}
	return Attachment{Kind: kind, Light: &l}
}

func EmitterAttach(e EmitterAttachment) Attachment {
	return Attachment{Kind: AttachmentEmitter, Emitter: &e}
}

func ForceFieldAttach(f ForceFieldAttachment) Attachment {
	return Attachment{Kind: AttachmentForceField, ForceField: &f}
}

func ParticleSystemAttach(p ParticleSystemAttachment) Attachment {
	return Attachment{Kind: AttachmentParticleSystem, ParticleSystem: &p}
}
