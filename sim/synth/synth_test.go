package synth

import (
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/snana-sim/specsim/sim"
	"github.com/snana-sim/specsim/sim/internal/testutil"
	"github.com/snana-sim/specsim/sim/spectrograph"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func solvedTable(t *testing.T, nbins int) *spectrograph.Table {
	t.Helper()
	fx := testutil.NewFixture(nbins, 100, 1000)
	tbl, err := spectrograph.ReadText(strings.NewReader(fx.Text()), "fx", spectrograph.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, tbl.Solve())
	return tbl
}

// stubTable returns fixed lookups so noise components can be isolated.
type stubTable struct {
	n   int
	res spectrograph.SNRResult
}

func (s stubTable) NumBins() int                { return s.n }
func (s stubTable) Bin(l int) spectrograph.Bin { return spectrograph.Bin{LamAvg: 4000 + float64(l)} }
func (s stubTable) SNR(int, float64, float64, float64) (spectrograph.SNRResult, error) {
	return s.res, nil
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	tbl := solvedTable(t, 5)
	obs := Observation{TexposeSearch: 300, TexposeTemplate: 1000}
	mags := FlatMags(5, 21)

	a, err := NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(9))).Generate(1, obs, mags)
	require.NoError(t, err)
	b, err := NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(9))).Generate(1, obs, mags)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(10))).Generate(1, obs, mags)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bins[0].Flux, c.Bins[0].Flux)
}

func TestGenerate_TrueFluxAndErrors(t *testing.T) {
	tbl := solvedTable(t, 3)
	g := NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(1)))

	spec, err := g.Generate(0, Observation{TexposeSearch: 100}, []float64{20, 21, 22})
	require.NoError(t, err)
	require.Len(t, spec.Bins, 3)
	for l, b := range spec.Bins {
		res, err := tbl.SNR(l, 100, 0, b.Mag)
		require.NoError(t, err)
		assert.Equal(t, res.Flux, b.SimFlux)
		assert.Equal(t, res.FluxErr, b.FluxErr)
		assert.Equal(t, tbl.Bin(l).LamAvg, b.LamAvg)
		assert.Zero(t, b.ErrFracTemplate)
	}
}

func TestGenerate_TemplateNoiseIsCorrelated(t *testing.T) {
	// GIVEN lookups whose entire error comes from the template
	stub := stubTable{n: 4, res: spectrograph.SNRResult{Flux: 100, FluxErr: 5, ErrFracTemplate: 1, SNR: 20}}
	g := NewGenerator(stub, sim.NewPartitionedRNG(sim.NewSimulationKey(3)))

	// WHEN a spectrum is drawn
	spec, err := g.Generate(0, Observation{TexposeSearch: 100, TexposeTemplate: 100}, FlatMags(4, 20))
	require.NoError(t, err)

	// THEN every bin shifts by the same template draw
	for _, b := range spec.Bins {
		assert.InDelta(t, 5*spec.TemplateDraw, b.Flux-b.SimFlux, 1e-9)
	}
}

func TestGenerate_SearchNoiseIsUnitNormal(t *testing.T) {
	stub := stubTable{n: 50, res: spectrograph.SNRResult{Flux: 100, FluxErr: 4, SNR: 25}}
	g := NewGenerator(stub, sim.NewPartitionedRNG(sim.NewSimulationKey(11)))

	var pulls []float64
	for id := 0; id < 100; id++ {
		spec, err := g.Generate(id, Observation{TexposeSearch: 100}, FlatMags(50, 20))
		require.NoError(t, err)
		for _, b := range spec.Bins {
			pulls = append(pulls, (b.Flux-b.SimFlux)/b.FluxErr)
		}
	}
	mean, std := stat.MeanStdDev(pulls, nil)
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, std, 0.05)
}

func TestGenerate_Errors(t *testing.T) {
	tbl := solvedTable(t, 2)
	g := NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(1)))

	_, err := g.Generate(0, Observation{TexposeSearch: 100}, FlatMags(3, 20))
	assert.Error(t, err)

	_, err = g.Generate(0, Observation{TexposeSearch: 5000}, FlatMags(2, 20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, spectrograph.ErrRange))
}

func TestRows(t *testing.T) {
	spectra := []Spectrum{
		{ID: 1, Bins: []Bin{{LamIndex: 0, Flux: 1, FluxErr: 0.5, SimFlux: 1.5}, {LamIndex: 1, Flux: 2}}},
		{ID: 2, Bins: []Bin{{LamIndex: 0, Flux: math.Pi}}},
	}
	rows := Rows(spectra)
	require.Len(t, rows, 3)
	assert.Equal(t, int32(2), rows[2].SpecID)
	assert.Equal(t, float32(math.Pi), rows[2].Flux)
	assert.Equal(t, float32(1.5), rows[0].SimFlux)
}

func TestGenerate_NegativeSkyVarianceTable(t *testing.T) {
	// GIVEN a table whose solved sky variances are negative
	tbl, err := spectrograph.ReadText(strings.NewReader(testutil.ScenarioText), "scenario", spectrograph.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, tbl.Solve())
	gen := NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(3)))
	obs := Observation{TexposeSearch: 100, TexposeTemplate: 1000}

	// WHEN a bright source is simulated with a template
	spec, err := gen.Generate(1, obs, []float64{20})

	// THEN every flux is finite
	require.NoError(t, err)
	for _, b := range spec.Bins {
		assert.False(t, math.IsNaN(b.Flux) || math.IsInf(b.Flux, 0))
		assert.False(t, math.IsNaN(b.FluxErr))
		assert.Zero(t, b.ErrFracTemplate)
	}

	// WHEN the source is too faint for a positive noise variance
	_, err = gen.Generate(2, obs, []float64{25})

	// THEN the spectrum is rejected
	assert.True(t, errors.Is(err, spectrograph.ErrPhysics))
}
