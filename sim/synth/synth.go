// Package synth draws noisy spectra from a solved spectrograph table, the
// way a light-curve simulator consumes it.
//
// Search noise is independent per bin. Template noise is correlated across
// the spectrum: one normal draw per spectrum, scaled per bin by the
// template error fraction.
package synth

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/snana-sim/specsim/sim"
	"github.com/snana-sim/specsim/sim/kcor"
	"github.com/snana-sim/specsim/sim/spectrograph"
)

// Observation holds the exposure times of one spectrum.
type Observation struct {
	TexposeSearch   float64
	TexposeTemplate float64 // 0 means no template
}

// Bin is one simulated wavelength bin.
type Bin struct {
	LamIndex        int
	LamAvg          float64
	Mag             float64
	SNR             float64
	SimFlux         float64 // true flux
	Flux            float64 // observed flux
	FluxErr         float64
	ErrFracTemplate float64
}

// Spectrum is one simulated spectrum.
type Spectrum struct {
	ID int
	Observation
	TemplateDraw float64
	Bins         []Bin
}

// SNRQuerier answers SNR lookups; *spectrograph.Table implements it.
type SNRQuerier interface {
	NumBins() int
	Bin(l int) spectrograph.Bin
	SNR(lamIndex int, texposeS, texposeT, mag float64) (spectrograph.SNRResult, error)
}

// Generator draws spectra. Not safe for concurrent use.
type Generator struct {
	table SNRQuerier
	rng   *sim.PartitionedRNG
}

// NewGenerator returns a Generator drawing from rng.
func NewGenerator(table SNRQuerier, rng *sim.PartitionedRNG) *Generator {
	return &Generator{table: table, rng: rng}
}

// Generate draws spectrum id for per-bin source magnitudes mags.
// len(mags) must equal the number of wavelength bins.
func (g *Generator) Generate(id int, obs Observation, mags []float64) (Spectrum, error) {
	nb := g.table.NumBins()
	if len(mags) != nb {
		return Spectrum{}, fmt.Errorf("got %d magnitudes for %d wavelength bins", len(mags), nb)
	}

	search := g.rng.ForSubsystem(sim.SubsystemSpectrum)
	spec := Spectrum{
		ID:           id,
		Observation:  obs,
		TemplateDraw: g.rng.ForSubsystem(sim.SubsystemTemplate).NormFloat64(),
		Bins:         make([]Bin, nb),
	}
	for l := 0; l < nb; l++ {
		res, err := g.table.SNR(l, obs.TexposeSearch, obs.TexposeTemplate, mags[l])
		if err != nil {
			return Spectrum{}, fmt.Errorf("spectrum %d bin %d: %w", id, l, err)
		}
		errT := res.ErrFracTemplate * res.FluxErr
		errS := math.Sqrt(math.Max(res.FluxErr*res.FluxErr-errT*errT, 0))

		spec.Bins[l] = Bin{
			LamIndex:        l,
			LamAvg:          g.table.Bin(l).LamAvg,
			Mag:             mags[l],
			SNR:             res.SNR,
			SimFlux:         res.Flux,
			Flux:            res.Flux + errS*search.NormFloat64() + errT*spec.TemplateDraw,
			FluxErr:         res.FluxErr,
			ErrFracTemplate: res.ErrFracTemplate,
		}
	}
	logrus.Debugf("spectrum %d: %d bins, template draw %.3f", id, nb, spec.TemplateDraw)
	return spec, nil
}

// FlatMags returns n copies of mag.
func FlatMags(n int, mag float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mag
	}
	return out
}

// Rows flattens spectra into rows for kcor.WriteSpectraFile.
func Rows(spectra []Spectrum) []kcor.SpectrumRow {
	var rows []kcor.SpectrumRow
	for _, s := range spectra {
		for _, b := range s.Bins {
			rows = append(rows, kcor.SpectrumRow{
				SpecID:   int32(s.ID),
				LamIndex: int32(b.LamIndex),
				Flux:     float32(b.Flux),
				FluxErr:  float32(b.FluxErr),
				SimFlux:  float32(b.SimFlux),
			})
		}
	}
	return rows
}
