// Package geom holds the small set of math types shared across the scene,
// culling, shadow and warehouse packages: axis-aligned bounding boxes and
// view-frustum planes.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box in whatever space it was computed
// in (local or world, depending on caller).
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Empty returns an AABB primed for accumulation via Extend: Min is +inf,
// Max is -inf, so the very first extended point becomes both corners.
func Empty() AABB {
	inf := float32(math.MaxFloat32)
	return AABB{Min: mgl32.Vec3{inf, inf, inf}, Max: mgl32.Vec3{-inf, -inf, -inf}}
}

func (b AABB) Extend(p mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{min32(b.Min.X(), p.X()), min32(b.Min.Y(), p.Y()), min32(b.Min.Z(), p.Z())},
		Max: mgl32.Vec3{max32(b.Max.X(), p.X()), max32(b.Max.Y(), p.Y()), max32(b.Max.Z(), p.Z())},
	}
}

// Transform conservatively transforms the AABB's 8 corners by m and
// re-derives an axis-aligned box around the result.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	corners := [8]mgl32.Vec3{
		{b.Min.X(), b.Min.Y(), b.Min.Z()},
		{b.Max.X(), b.Min.Y(), b.Min.Z()},
		{b.Min.X(), b.Max.Y(), b.Min.Z()},
		{b.Max.X(), b.Max.Y(), b.Min.Z()},
		{b.Min.X(), b.Min.Y(), b.Max.Z()},
		{b.Max.X(), b.Min.Y(), b.Max.Z()},
		{b.Min.X(), b.Max.Y(), b.Max.Z()},
		{b.Max.X(), b.Max.Y(), b.Max.Z()},
	}
	out := Empty()
	for _, c := range corners {
		wc := m.Mul4x1(c.Vec4(1.0)).Vec3()
		out = out.Extend(wc)
	}
	return out
}

func (b AABB) Center() mgl32.Vec3 { return b.Min.Add(b.Max).Mul(0.5) }
func (b AABB) Extent() mgl32.Vec3 { return b.Max.Sub(b.Min).Mul(0.5) }

// UnitBox is the default local AABB for attachments with no intrinsic
// bounds (emitters).
func UnitBox() AABB {
	return AABB{Min: mgl32.Vec3{-0.5, -0.5, -0.5}, Max: mgl32.Vec3{0.5, 0.5, 0.5}}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Frustum is six half-space planes in Ax+By+Cz+D=0 form whose normals
// point into the frustum (a point is inside a plane when Ax+By+Cz+D >= 0),
// ordered Left, Right, Bottom, Top, Near, Far.
type Frustum [6]mgl32.Vec4

// ExtractFrustum derives the 6 frustum planes from a combined
// view-projection matrix.
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	var f Frustum
	f[0] = mgl32.Vec4{vp.At(3, 0) + vp.At(0, 0), vp.At(3, 1) + vp.At(0, 1), vp.At(3, 2) + vp.At(0, 2), vp.At(3, 3) + vp.At(0, 3)}
	f[1] = mgl32.Vec4{vp.At(3, 0) - vp.At(0, 0), vp.At(3, 1) - vp.At(0, 1), vp.At(3, 2) - vp.At(0, 2), vp.At(3, 3) - vp.At(0, 3)}
	f[2] = mgl32.Vec4{vp.At(3, 0) + vp.At(1, 0), vp.At(3, 1) + vp.At(1, 1), vp.At(3, 2) + vp.At(1, 2), vp.At(3, 3) + vp.At(1, 3)}
	f[3] = mgl32.Vec4{vp.At(3, 0) - vp.At(1, 0), vp.At(3, 1) - vp.At(1, 1), vp.At(3, 2) - vp.At(1, 2), vp.At(3, 3) - vp.At(1, 3)}
	f[4] = mgl32.Vec4{vp.At(3, 0) + vp.At(2, 0), vp.At(3, 1) + vp.At(2, 1), vp.At(3, 2) + vp.At(2, 2), vp.At(3, 3) + vp.At(2, 3)}
	f[5] = mgl32.Vec4{vp.At(3, 0) - vp.At(2, 0), vp.At(3, 1) - vp.At(2, 1), vp.At(3, 2) - vp.At(2, 2), vp.At(3, 3) - vp.At(2, 3)}
	for i := range f {
		n := mgl32.Vec3{f[i][0], f[i][1], f[i][2]}
		l := n.Len()
		if l > 0 {
			f[i] = f[i].Mul(1.0 / l)
		}
	}
	return f
}

// AABBInFrustum implements the p-vertex test: for each
// plane, the AABB corner furthest along the plane's positive normal is
// tested; if that corner is outside, the whole box is outside. This is
// conservative (over-approximating) by design — a box straddling or just
// outside a plane near a corner may still pass.
func AABBInFrustum(b AABB, planes Frustum) bool {
	for _, plane := range planes {
		var p mgl32.Vec3
		if plane[0] > 0 {
			p[0] = b.Max.X()
		} else {
			p[0] = b.Min.X()
		}
		if plane[1] > 0 {
			p[1] = b.Max.Y()
		} else {
			p[1] = b.Min.Y()
		}
		if plane[2] > 0 {
			p[2] = b.Max.Z()
		} else {
			p[2] = b.Min.Z()
		}
		dist := plane[0]*p[0] + plane[1]*p[1] + plane[2]*p[2] + plane[3]
		if dist < 0 {
			return false
		}
	}
	return true
}
