package spectrograph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// templateTexposeMin: template exposures at or below this disable template noise.
	templateTexposeMin = 0.01

	transLamStep    = 5.0  // approximate transmission bin width (Å)
	transMinBins    = 10   // minimum interior transmission bins
	transMinZP      = 0.001
	transMinFluxMax = 1.0e-9
)

// SNRResult is the outcome of an SNR lookup. Fluxes and variances are in
// photo-electrons.
type SNRResult struct {
	SNR             float64
	Flux            float64
	FluxErr         float64
	ZPSearch        float64
	SkyVarSearch    float64
	SkyVarTemplate  float64 // already scaled to the search zero point
	ErrFracTemplate float64 // sqrt(SkyVarTemplate)/FluxErr
}

// SNR returns the signal-to-noise for a source of magnitude mag in
// wavelength bin lamIndex, observed with a search exposure texposeS and an
// optional template exposure texposeT (0 disables template noise).
// Both exposure times must lie within the tabulated grid. A non-positive
// total noise variance, possible when the solved sky variance is negative,
// is an ErrPhysics error.
func (t *Table) SNR(lamIndex int, texposeS, texposeT, mag float64) (SNRResult, error) {
	const fn = "SNR"
	if !t.solved {
		return SNRResult{}, fatalf(ErrConfig, fn, "table is not solved", "call Solve or LoadCalibration first")
	}
	if lamIndex < 0 || lamIndex >= len(t.bins) {
		return SNRResult{}, fatalf(ErrRange, fn, fmt.Sprintf("invalid wavelength index %d", lamIndex),
			fmt.Sprintf("valid range: 0 to %d", len(t.bins)-1))
	}
	if err := t.checkTexpose(fn, "TEXPOSE_S", texposeS); err != nil {
		return SNRResult{}, err
	}

	res := SNRResult{
		ZPSearch:     t.zpCurve[lamIndex].at(texposeS),
		SkyVarSearch: t.skyCurve[lamIndex].at(texposeS),
	}
	if texposeT > templateTexposeMin {
		if err := t.checkTexpose(fn, "TEXPOSE_T", texposeT); err != nil {
			return SNRResult{}, err
		}
		zpT := t.zpCurve[lamIndex].at(texposeT)
		skyT := t.skyCurve[lamIndex].at(texposeT)
		// template noise scaled to the search zero point: (flux scale)^2
		res.SkyVarTemplate = skyT * math.Pow(10, 0.8*(res.ZPSearch-zpT))
	}

	res.Flux = magToFlux(mag, res.ZPSearch)
	variance := res.SkyVarSearch + res.SkyVarTemplate + res.Flux
	if !(variance > 0) {
		return SNRResult{}, fatalf(ErrPhysics, fn,
			fmt.Sprintf("non-positive noise variance %g (SQSIGSKY_S=%g SQSIGSKY_T=%g FLUX=%g)",
				variance, res.SkyVarSearch, res.SkyVarTemplate, res.Flux),
			fmt.Sprintf("ILAM=%d TEXPOSE_S=%g TEXPOSE_T=%g MAG=%.3f", lamIndex, texposeS, texposeT, mag))
	}
	res.FluxErr = math.Sqrt(variance)
	res.SNR = res.Flux / res.FluxErr
	// a negative template variance lowers the total but contributes no template noise
	res.ErrFracTemplate = math.Sqrt(math.Max(res.SkyVarTemplate, 0)) / res.FluxErr
	return res, nil
}

func (t *Table) checkTexpose(fn, name string, texpose float64) error {
	lo, hi := t.TexposeMin(), t.TexposeMax()
	if texpose < lo || texpose > hi || math.IsNaN(texpose) {
		return fatalf(ErrRange, fn, fmt.Sprintf("invalid %s = %f", name, texpose),
			fmt.Sprintf("valid %s range: %.2f to %.2f", name, lo, hi))
	}
	return nil
}

// Transmission is a synthetic filter curve on a regular wavelength grid.
// The first and last bins have zero transmission; the peak is 1.
type Transmission struct {
	LamMin float64 // extended by one step below the requested range
	LamMax float64 // extended by one step above the requested range
	Step   float64
	Lam    []float64 // bin centers
	Trans  []float64
}

// FilterTransmission builds a transmission curve proportional to the flux
// of a MAGREF[0] source over [lamMin, lamMax]. The zero-point curve at the
// first exposure time is used; wavelengths outside the tabulated bins
// clamp to the nearest tabulated zero point. maxBins > 0 bounds the
// number of output bins.
func (t *Table) FilterTransmission(lamMin, lamMax float64, maxBins int) (Transmission, error) {
	const fn = "FilterTransmission"
	if !t.solved {
		return Transmission{}, fatalf(ErrConfig, fn, "table is not solved", "call Solve or LoadCalibration first")
	}
	if t.lamErr != nil {
		return Transmission{}, fatalf(ErrConfig, fn, fmt.Sprintf("cannot interpolate ZP vs wavelength: %v", t.lamErr),
			"wavelength bins must be in increasing order")
	}
	if !(lamMax > lamMin) {
		return Transmission{}, fatalf(ErrConfig, fn, fmt.Sprintf("invalid filter range %.1f to %.1f", lamMin, lamMax),
			"LAMMAX must exceed LAMMIN")
	}

	lamRange := lamMax - lamMin
	nbin := int(lamRange / transLamStep)
	if nbin < transMinBins {
		nbin = transMinBins
	}
	step := lamRange / float64(nbin)

	// one zero-transmission bin on each side
	tr := Transmission{LamMin: lamMin - step, LamMax: lamMax + step, Step: step}
	nbin += 2
	if maxBins > 0 && nbin >= maxBins {
		return Transmission{}, fatalf(ErrRange, fn, fmt.Sprintf("NBL_TRANS=%d exceeds bound %d", nbin, maxBins),
			fmt.Sprintf("filter lambda range %.1f to %.1f, lamstep=%.3f", tr.LamMin, tr.LamMax, step))
	}

	tr.Lam = make([]float64, nbin)
	flux := make([]float64, nbin)
	m0 := t.magRef[0]
	for l := 0; l < nbin; l++ {
		tr.Lam[l] = tr.LamMin + step*(float64(l)+0.5)
		if l == 0 || l == nbin-1 {
			continue
		}
		zp := t.lamCurve.at(tr.Lam[l])
		if zp > transMinZP {
			flux[l] = magToFlux(m0, zp)
		}
	}

	fluxMax := floats.Max(flux)
	if fluxMax < transMinFluxMax {
		return Transmission{}, fatalf(ErrPhysics, fn, fmt.Sprintf("synthetic FLUX_MAX=%g", fluxMax),
			fmt.Sprintf("LAMFILT_MIN/MAX=%.1f/%.1f NBL_TRANS=%d", tr.LamMin, tr.LamMax, nbin))
	}
	floats.Scale(1/fluxMax, flux)
	tr.Trans = flux
	return tr, nil
}

// TransmissionFor builds the transmission curve of a named synthetic filter.
func (t *Table) TransmissionFor(name string, maxBins int) (Transmission, error) {
	f, ok := t.SyntheticFilter(name)
	if !ok {
		return Transmission{}, fatalf(ErrConfig, "TransmissionFor",
			fmt.Sprintf("unknown synthetic filter %q", name), fmt.Sprintf("defined bands: %q", t.filterBands))
	}
	return t.FilterTransmission(f.LamMin, f.LamMax, maxBins)
}
