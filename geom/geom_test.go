package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestAABBInFrustumRejectsBehindCamera(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1.0, 0.1, 100.0)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	planes := ExtractFrustum(proj.Mul4(view))

	inFront := AABB{Min: mgl32.Vec3{-0.5, -0.5, -11}, Max: mgl32.Vec3{0.5, 0.5, -9}}
	require.True(t, AABBInFrustum(inFront, planes))

	behind := AABB{Min: mgl32.Vec3{-0.5, -0.5, 9}, Max: mgl32.Vec3{0.5, 0.5, 11}}
	require.False(t, AABBInFrustum(behind, planes))
}

func TestAABBTransform(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	m := mgl32.Translate3D(5, 0, 0)
	out := box.Transform(m)
	require.InDelta(t, 4.0, out.Min.X(), 1e-5)
	require.InDelta(t, 6.0, out.Max.X(), 1e-5)
}
