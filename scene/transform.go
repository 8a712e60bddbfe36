package scene

import "github.com/go-gl/mathgl/mgl32"

// Transform is a node's local TRS (translate, rotate, scale) plus its
// derived world matrix. Dirty is set whenever the local fields change and
// cleared once UpdateWorldMatrices has folded it into World.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Dirty    bool

	World mgl32.Mat4
}

// Identity returns a Transform at the origin with unit scale, already
// marked dirty so the first world-matrix pass picks it up.
func Identity() Transform {
	return Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
		Dirty:    true,
		World:    mgl32.Ident4(),
	}
}

// Local composes this transform's T*R*S matrix.
func (t *Transform) Local() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(rotate).Mul4(scale)
}

// SetPosition marks the transform dirty along with mutating Position, so
// callers never forget to flag a change for the next propagation pass.
func (t *Transform) SetPosition(p mgl32.Vec3) {
	t.Position = p
	t.Dirty = true
}

func (t *Transform) SetRotation(r mgl32.Quat) {
	t.Rotation = r
	t.Dirty = true
}

func (t *Transform) SetScale(s mgl32.Vec3) {
	t.Scale = s
	t.Dirty = true
}
