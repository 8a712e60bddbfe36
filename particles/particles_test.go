package particles

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/scene"
)

func TestSpawnCountAccumulatesFractionalIntervals(t *testing.T) {
	var acc float32
	// rate=1000/s, dt=1/60s -> ~16.67 particles/frame on average
	total := 0
	for i := 0; i < 60; i++ {
		total += spawnCount(&acc, 1000, 1.0/60.0, 1<<30)
	}
	require.InDelta(t, 1000, total, 100)
}

func TestSpawnCountNeverExceedsFreeAvailable(t *testing.T) {
	var acc float32
	n := spawnCount(&acc, 1000, 1.0, 3)
	require.Equal(t, 3, n)
}

func TestSpawnCountZeroRateSpawnsNothing(t *testing.T) {
	var acc float32
	require.Equal(t, 0, spawnCount(&acc, 0, 1.0, 100))
}

func TestRecycleReclaimsExpiredSlots(t *testing.T) {
	alive := []bool{true, true, false, true}
	life := []float32{0, 5, 0, -1}
	free := recycle(alive, life, nil)
	require.ElementsMatch(t, []uint32{0, 3}, free)
	require.True(t, alive[1])
	require.False(t, alive[0])
	require.False(t, alive[3])
}

func TestSpawnParticleAppliesSpreadWithinBounds(t *testing.T) {
	em := &scene.EmitterAttachment{
		Lifetime:        2,
		PositionSpread:  mgl32.Vec3{1, 1, 1},
		VelocitySpread:  mgl32.Vec3{2, 2, 2},
		InitialVelocity: mgl32.Vec3{0, 5, 0},
		Weight:          1,
		ColorStart:      mgl32.Vec4{1, 0, 0, 1},
		ColorEnd:        mgl32.Vec4{0, 0, 1, 0},
		SizeStart:       1,
		SizeEnd:         0.1,
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := spawnParticle(em, mgl32.Vec3{10, 0, 0}, rng)
		require.InDelta(t, 10, p.PositionAndLife[0], 1.0)
		require.Equal(t, float32(2), p.PositionAndLife[3])
		require.Greater(t, p.VelocityAndWeight[3], float32(0))
	}
}

func TestPackForceFieldsTruncatesToCapacity(t *testing.T) {
	fields := make([]scene.ForceFieldNode, 5)
	for i := range fields {
		fields[i] = scene.ForceFieldNode{ForceField: &scene.ForceFieldAttachment{Strength: float32(i)}}
	}
	packed := packForceFields(fields, 2)
	require.Len(t, packed, 2)
}

func TestEngineActiveAndFreeCountConserveCapacity(t *testing.T) {
	e := &Engine{cpu: make([]ParticleGPU, 10), alive: make([]bool, 10)}
	for i := 0; i < 10; i++ {
		e.free = append(e.free, uint32(i))
	}
	e.free = e.free[:6] // pretend 4 are in use
	for i := 0; i < 4; i++ {
		e.alive[i] = true
	}
	require.Equal(t, len(e.cpu), e.ActiveCount()+e.FreeCount())
}
