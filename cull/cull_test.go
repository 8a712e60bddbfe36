package cull

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/scene"
)

func TestCPUFallbackRejectsDisabledSlots(t *testing.T) {
	frustum := geom.ExtractFrustum(mgl32.Ident4())
	slots := []scene.CullingSlot{
		{AABB: geom.UnitBox(), Enabled: false},
	}
	vis := CPUFallback(slots, frustum)
	require.False(t, vis[0])
}

func TestPackSlotsTruncatesAndWarnsOnce(t *testing.T) {
	e := &Engine{capacity: 2, log: diag.NewNopLogger()}
	slots := make([]scene.CullingSlot, 5)
	for i := range slots {
		slots[i] = scene.CullingSlot{AABB: geom.UnitBox(), Enabled: true}
	}

	packed := e.packSlots(slots)
	require.Len(t, packed, 2)
	require.True(t, e.overflow.Warned())

	packed2 := e.packSlots(slots[:2])
	require.Len(t, packed2, 2)
}

func TestPackFrustumRoundTripsPlaneValues(t *testing.T) {
	f := geom.ExtractFrustum(mgl32.Perspective(1, 1, 0.1, 100))
	buf := packFrustum(f)
	require.Len(t, buf, frustumPlanesStride)
	for i, plane := range f {
		for j := 0; j < 4; j++ {
			got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*16+j*4:]))
			require.Equal(t, plane[j], got)
		}
	}
}
