package spectrograph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

const (
	// MaxLambdaBins bounds the number of SPECBIN rows in a text table.
	MaxLambdaBins = 4000
	// MaxExposureTimes bounds the TEXPOSE_LIST length.
	MaxExposureTimes = 20

	// binWidthTolerance (Å) separates fixed-width from variable-width binning.
	binWidthTolerance = 0.001
)

// Format tells downstream writers how to serialize wavelength bins.
type Format int

const (
	// FormatLamCenter: all bins have the same width, bin centers suffice.
	FormatLamCenter Format = 1
	// FormatLamMinMax: variable bin width, both edges are written.
	FormatLamMinMax Format = 2
)

// Bin is one wavelength bin. LamAvg and LamBin are derived from the edges.
type Bin struct {
	LamMin   float64
	LamMax   float64
	LamAvg   float64
	LamBin   float64
	LamSigma float64
}

func newBin(lamMin, lamMax, lamSigma float64) Bin {
	return Bin{
		LamMin:   lamMin,
		LamMax:   lamMax,
		LamAvg:   0.5 * (lamMin + lamMax),
		LamBin:   lamMax - lamMin,
		LamSigma: lamSigma,
	}
}

// SyntheticFilter is a named wavelength range used to build a
// transmission curve from the zero-point curve.
type SyntheticFilter struct {
	Name   string
	LamMin float64
	LamMax float64
}

// Table holds the spectrograph calibration for one simulation run.
// Index order is [wavelength bin][exposure time].
type Table struct {
	instrument  string
	magRef      [2]float64
	texpose     []float64
	bins        []Bin
	rebin       int
	rawBinCount int

	snr    [][][2]float64 // text path only
	zp     [][]float64
	skyVar [][]float64

	filterBands      string
	syntheticFilters []SyntheticFilter
	format           Format

	solved   bool
	zpCurve  []curve // per bin, vs exposure time
	skyCurve []curve // per bin, vs exposure time
	lamCurve curve   // ZP at first exposure time vs lamAvg
	lamErr   error
}

func newTable(instrument string, magRef [2]float64, texpose []float64, nbins int) *Table {
	return &Table{
		instrument: instrument,
		magRef:     magRef,
		texpose:    texpose,
		bins:       make([]Bin, 0, nbins),
		rebin:      1,
	}
}

// Instrument returns the instrument name.
func (t *Table) Instrument() string { return t.instrument }

// MagRef returns the two reference magnitudes.
func (t *Table) MagRef() [2]float64 { return t.magRef }

// NumBins returns the number of (rebinned) wavelength bins.
func (t *Table) NumBins() int { return len(t.bins) }

// NumTexpose returns the number of exposure times.
func (t *Table) NumTexpose() int { return len(t.texpose) }

// RebinFactor returns the wavelength rebin factor applied at load.
func (t *Table) RebinFactor() int { return t.rebin }

// RawBinCount is the number of SPECBIN rows read before rebinning.
func (t *Table) RawBinCount() int { return t.rawBinCount }

// Texpose returns a copy of the exposure-time grid.
func (t *Table) Texpose() []float64 {
	out := make([]float64, len(t.texpose))
	copy(out, t.texpose)
	return out
}

// TexposeMin returns the shortest tabulated exposure time.
func (t *Table) TexposeMin() float64 { return t.texpose[0] }

// TexposeMax returns the longest tabulated exposure time.
func (t *Table) TexposeMax() float64 { return t.texpose[len(t.texpose)-1] }

// Bin returns wavelength bin l.
func (t *Table) Bin(l int) Bin { return t.bins[l] }

// Bins returns a copy of the wavelength bins.
func (t *Table) Bins() []Bin {
	out := make([]Bin, len(t.bins))
	copy(out, t.bins)
	return out
}

// LamMin is the lower edge of the first bin.
func (t *Table) LamMin() float64 {
	if len(t.bins) == 0 {
		return 0
	}
	return t.bins[0].LamMin
}

// LamMax is the upper edge of the last bin.
func (t *Table) LamMax() float64 {
	if len(t.bins) == 0 {
		return 0
	}
	return t.bins[len(t.bins)-1].LamMax
}

// Format reports fixed vs variable bin width.
func (t *Table) Format() Format { return t.format }

// HasInputSNR is true for tables loaded from text (SNR pairs available).
func (t *Table) HasInputSNR() bool { return t.snr != nil }

// InputSNR returns the raw SNR pair for bin l and exposure index e.
func (t *Table) InputSNR(l, e int) [2]float64 { return t.snr[l][e] }

// Solved reports whether zero points and sky noise are available.
func (t *Table) Solved() bool { return t.solved }

// ZeroPoint returns the tabulated zero point for bin l, exposure index e.
func (t *Table) ZeroPoint(l, e int) float64 { return t.zp[l][e] }

// SkyVar returns the tabulated sky+readout noise variance for bin l, exposure index e.
func (t *Table) SkyVar(l, e int) float64 { return t.skyVar[l][e] }

// FilterBands returns the synthetic filter band list string.
func (t *Table) FilterBands() string { return t.filterBands }

// SyntheticFilters returns a copy of the synthetic filter list.
func (t *Table) SyntheticFilters() []SyntheticFilter {
	out := make([]SyntheticFilter, len(t.syntheticFilters))
	copy(out, t.syntheticFilters)
	return out
}

// SyntheticFilter looks up a synthetic filter by name.
func (t *Table) SyntheticFilter(name string) (SyntheticFilter, bool) {
	for _, f := range t.syntheticFilters {
		if f.Name == name {
			return f, true
		}
	}
	return SyntheticFilter{}, false
}

// appendBin adds a wavelength bin and its SNR pairs.
func (t *Table) appendBin(b Bin, snr [][2]float64) {
	t.bins = append(t.bins, b)
	t.snr = append(t.snr, snr)
}

func (t *Table) allocDerived() {
	nb, nt := len(t.bins), len(t.texpose)
	t.zp = make([][]float64, nb)
	t.skyVar = make([][]float64, nb)
	for l := 0; l < nb; l++ {
		t.zp[l] = make([]float64, nt)
		t.skyVar[l] = make([]float64, nt)
	}
}

// finalize derives the output format and builds the interpolation curves.
// The table is read-only afterwards.
func (t *Table) finalize() error {
	t.format = detectFormat(t.bins)

	nb := len(t.bins)
	t.zpCurve = make([]curve, nb)
	t.skyCurve = make([]curve, nb)
	for l := 0; l < nb; l++ {
		zc, err := newCurve(t.texpose, t.zp[l])
		if err != nil {
			return fatalf(ErrConfig, "finalize", fmt.Sprintf("ZP(Texpose) curve for bin %d: %v", l, err), "check TEXPOSE_LIST")
		}
		sc, err := newCurve(t.texpose, t.skyVar[l])
		if err != nil {
			return fatalf(ErrConfig, "finalize", fmt.Sprintf("SQSIGSKY(Texpose) curve for bin %d: %v", l, err), "check TEXPOSE_LIST")
		}
		t.zpCurve[l], t.skyCurve[l] = zc, sc
	}

	if nb > 0 {
		lam := make([]float64, nb)
		zp0 := make([]float64, nb)
		for l := 0; l < nb; l++ {
			lam[l] = t.bins[l].LamAvg
			zp0[l] = t.zp[l][0]
		}
		// A non-increasing wavelength grid only breaks filter synthesis,
		// SNR lookups stay valid.
		t.lamCurve, t.lamErr = newCurve(lam, zp0)
	}
	t.solved = true
	return nil
}

func detectFormat(bins []Bin) Format {
	for l := 1; l < len(bins); l++ {
		if math.Abs(bins[l].LamBin-bins[l-1].LamBin) > binWidthTolerance {
			return FormatLamMinMax
		}
	}
	return FormatLamCenter
}

// curve is a piecewise-linear function that clamps outside its domain.
// A single tabulated point degenerates to a constant.
type curve struct {
	pl     *interp.PiecewiseLinear
	x0, y0 float64
}

func newCurve(xs, ys []float64) (curve, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return curve{}, fmt.Errorf("need matching non-empty grids, got %d and %d points", len(xs), len(ys))
	}
	if len(xs) == 1 {
		return curve{x0: xs[0], y0: ys[0]}, nil
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return curve{}, fmt.Errorf("abscissa not strictly increasing at point %d: %g after %g", i, xs[i], xs[i-1])
		}
	}
	x := make([]float64, len(xs))
	y := make([]float64, len(ys))
	copy(x, xs)
	copy(y, ys)
	var pl interp.PiecewiseLinear
	if err := pl.Fit(x, y); err != nil {
		return curve{}, err
	}
	return curve{pl: &pl, x0: x[0], y0: y[0]}, nil
}

func (c curve) at(x float64) float64 {
	if c.pl == nil {
		return c.y0
	}
	return c.pl.Predict(x)
}
