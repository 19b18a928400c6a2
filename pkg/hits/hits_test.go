package hits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

func rawEvent() *common.RawEvent {
	return &common.RawEvent{
		EventID: 9,
		Hits: []common.HitRecord{
			{HitID: 30, X: 3, Y: 4, Z: 0, LayerID: 2},
			{HitID: 10, X: 1, Y: 0, Z: 1, LayerID: 0},
			{HitID: 20, X: 0, Y: 2, Z: 0, LayerID: 1},
		},
		Tubes: []common.TubeRecord{
			{HitID: 10, Isochrone: 0.1, SectorID: 4},
			{HitID: 20, Isochrone: 0.2, SectorID: 5},
			{HitID: 30, Isochrone: 0.3, SectorID: 6},
		},
		Particles: []common.ParticleRecord{
			{ParticleID: 1, VX: 0.5, PDGCode: 13},
			{ParticleID: 2, VY: 0.5, PDGCode: 211},
		},
		Truth: []common.TruthRecord{
			{HitID: 10, Particle: common.Particle(1), TPX: 3, TPY: 4, TPZ: 0, TT: 1},
			{HitID: 20, Particle: common.Particle(2), TPX: 1, TPY: 0, TPZ: 1, TT: 2},
			{HitID: 30, Particle: common.Particle(1), TPX: 3, TPY: 4, TPZ: 0, TT: 3},
		},
	}
}

func TestAssembleKeepsRawOrder(t *testing.T) {
	raw := rawEvent()
	// shuffle the tables that are joined onto the hits
	raw.Tubes[0], raw.Tubes[2] = raw.Tubes[2], raw.Tubes[0]
	raw.Truth[0], raw.Truth[1] = raw.Truth[1], raw.Truth[0]

	table, err := Assemble(raw, Options{EventID: 9})
	require.NoError(t, err)

	assert.Equal(t, int64(9), table.EventID)
	assert.Equal(t, []int64{30, 10, 20}, table.HitID)
	assert.Equal(t, []float64{0.3, 0.1, 0.2}, table.Isochrone)
	assert.Equal(t, []int64{6, 4, 5}, table.SectorID)
	assert.Equal(t, []common.ParticleRef{common.Particle(1), common.Particle(1), common.Particle(2)}, table.Particle)
	assert.Equal(t, []int64{13, 13, 211}, table.PDGCode)
	assert.Equal(t, []float64{3, 1, 2}, table.TT)
}

func TestAssembleDerivedQuantities(t *testing.T) {
	table, err := Assemble(rawEvent(), Options{})
	require.NoError(t, err)

	// hit 30 at (3, 4, 0)
	assert.InDelta(t, 5, table.R[0], 1e-12)
	assert.InDelta(t, math.Atan2(4, 3), table.Phi[0], 1e-12)
	assert.InDelta(t, math.Pi/2, table.Theta[0], 1e-12)
	assert.InDelta(t, 0, table.Eta[0], 1e-12)

	// hit 10 at (1, 0, 1)
	assert.InDelta(t, math.Pi/4, table.Theta[1], 1e-12)
	assert.InDelta(t, -math.Log(math.Tan(math.Pi/8)), table.Eta[1], 1e-12)

	// truth of hit 10: p = (3, 4, 0)
	assert.InDelta(t, 5, table.PT[1], 1e-12)
	assert.InDelta(t, math.Pi/2, table.PTheta[1], 1e-12)
	assert.InDelta(t, math.Atan2(4, 3), table.PPhi[1], 1e-12)

	// truth of hit 20: p = (1, 0, 1)
	assert.InDelta(t, 1, table.PT[2], 1e-12)
	assert.InDelta(t, math.Pi/4, table.PTheta[2], 1e-12)
	assert.InDelta(t, 0, table.PPhi[2], 1e-12)

	assert.Equal(t, 0.5, table.VX[0])
	assert.Equal(t, 0.5, table.VY[2])
}

func TestAssembleSingularities(t *testing.T) {
	raw := rawEvent()
	raw.Hits[0] = common.HitRecord{HitID: 30, LayerID: 2}
	raw.Truth[2].TPX, raw.Truth[2].TPY, raw.Truth[2].TPZ = 0, 0, 1

	table, err := Assemble(raw, Options{})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(table.Theta[0]))
	assert.True(t, math.IsNaN(table.Eta[0]))
	assert.Zero(t, table.PT[0])
	assert.False(t, isFinite(table.PEta[0]))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func TestAssembleNoise(t *testing.T) {
	raw := rawEvent()
	raw.Truth[1].Particle = common.Particle(99)
	raw.Truth[2].Particle = common.ParticleRef{}

	inner, err := Assemble(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, inner.HitID)

	left, err := Assemble(raw, Options{Noise: true})
	require.NoError(t, err)
	require.Equal(t, []int64{30, 10, 20}, left.HitID)
	assert.Equal(t, common.ParticleRef{}, left.Particle[0])
	assert.Equal(t, common.Particle(99), left.Particle[2])
	for _, i := range []int{0, 2} {
		assert.True(t, math.IsNaN(left.VX[i]))
		assert.True(t, math.IsNaN(left.VY[i]))
		assert.True(t, math.IsNaN(left.VZ[i]))
		assert.Zero(t, left.PDGCode[i])
	}
}

func TestAssembleSkewed(t *testing.T) {
	raw := rawEvent()
	raw.Tubes[1].Skewed = 1

	table, err := Assemble(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10}, table.HitID)

	table, err = Assemble(raw, Options{Skewed: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10, 20}, table.HitID)
	assert.Equal(t, []int64{0, 0, 1}, table.Skewed)
}

func TestAssembleMultipleMatches(t *testing.T) {
	raw := rawEvent()
	raw.Tubes = append(raw.Tubes, common.TubeRecord{HitID: 10, Isochrone: 0.9})

	table, err := Assemble(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10, 10, 20}, table.HitID)
	assert.Equal(t, []float64{0.3, 0.1, 0.9, 0.2}, table.Isochrone)
}

func TestAssembleSelectPDG(t *testing.T) {
	table, err := Assemble(rawEvent(), Options{SelectPDG: []int64{211}})
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, table.HitID)
}

func TestAssembleMissingTables(t *testing.T) {
	tests := []struct {
		name  string
		strip func(*common.RawEvent)
	}{
		{"hits", func(r *common.RawEvent) { r.Hits = nil }},
		{"tubes", func(r *common.RawEvent) { r.Tubes = nil }},
		{"particles", func(r *common.RawEvent) { r.Particles = nil }},
		{"truth", func(r *common.RawEvent) { r.Truth = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawEvent()
			tt.strip(raw)
			_, err := Assemble(raw, Options{})
			assert.ErrorIs(t, err, ErrMissingTable)
		})
	}

	_, err := Assemble(nil, Options{})
	assert.ErrorIs(t, err, ErrMissingTable)
}

func TestAssembleEmptyTables(t *testing.T) {
	raw := &common.RawEvent{
		Hits:      []common.HitRecord{},
		Tubes:     []common.TubeRecord{},
		Particles: []common.ParticleRecord{},
		Truth:     []common.TruthRecord{},
	}
	table, err := Assemble(raw, Options{})
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestCountParticleHits(t *testing.T) {
	got := countParticleHits([]common.ParticleRecord{
		{ParticleID: 4, PDGCode: 11},
		{ParticleID: 5},
		{ParticleID: 4, PDGCode: 22},
		{ParticleID: 4},
	})
	require.Len(t, got, 2)
	assert.Equal(t, common.ParticleRecord{ParticleID: 4, PDGCode: 11, NHits: 3}, got[0])
	assert.Equal(t, common.ParticleRecord{ParticleID: 5, NHits: 1}, got[1])
}
