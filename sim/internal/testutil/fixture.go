package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SpecBin is one wavelength bin of a Fixture.
type SpecBin struct {
	LamMin, LamMax, LamSigma float64
}

// Fixture describes a spectrograph from its zero points and sky noise
// variances. Text renders the SNR pairs those values imply, so a solved
// table can be compared against ZP and SkyVar directly.
type Fixture struct {
	Instrument string
	MagRef     [2]float64
	Texpose    []float64
	Bins       []SpecBin
	ZP         [][]float64 // [bin][texpose]
	SkyVar     [][]float64 // [bin][texpose]
}

// NewFixture builds an nbins x len(texpose) fixture with 10 Å bins from
// 4000 Å. Source flux and sky noise both grow linearly with exposure
// time, so SNR rises as sqrt(t).
func NewFixture(nbins int, texpose ...float64) Fixture {
	f := Fixture{
		Instrument: "TEST_SPEC",
		MagRef:     [2]float64{20, 22},
		Texpose:    texpose,
	}
	for l := 0; l < nbins; l++ {
		lo := 4000 + 10*float64(l)
		f.Bins = append(f.Bins, SpecBin{LamMin: lo, LamMax: lo + 10, LamSigma: 2})
		zp := make([]float64, len(texpose))
		sky := make([]float64, len(texpose))
		for e, t := range texpose {
			zp[e] = 25 + 0.02*float64(l) + 2.5*math.Log10(t/texpose[0])
			sky[e] = 40 + 0.5*t + float64(l)
		}
		f.ZP = append(f.ZP, zp)
		f.SkyVar = append(f.SkyVar, sky)
	}
	return f
}

// SNR returns the SNR of reference magnitude iref for bin l, exposure index e.
func (f Fixture) SNR(l, e, iref int) float64 {
	flux := math.Pow(10, -0.4*(f.MagRef[iref]-f.ZP[l][e]))
	return flux / math.Sqrt(f.SkyVar[l][e]+flux)
}

// Text renders the fixture as a spectrograph text table.
func (f Fixture) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSTRUMENT: %s\n", f.Instrument)
	fmt.Fprintf(&b, "MAGREF_LIST: %g %g\n", f.MagRef[0], f.MagRef[1])
	b.WriteString("TEXPOSE_LIST:")
	for _, t := range f.Texpose {
		fmt.Fprintf(&b, " %g", t)
	}
	b.WriteString("\n")
	for l, bin := range f.Bins {
		fmt.Fprintf(&b, "SPECBIN: %.3f %.3f %.3f", bin.LamMin, bin.LamMax, bin.LamSigma)
		for e := range f.Texpose {
			fmt.Fprintf(&b, " %.12g %.12g", f.SNR(l, e, 0), f.SNR(l, e, 1))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteFile writes content to name under a fresh temp dir and returns its path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ScenarioText is a one-bin table with two exposure times.
const ScenarioText = `INSTRUMENT: SCENARIO
MAGREF_LIST: 20 22
TEXPOSE_LIST: 100 1000
SPECBIN: 4000 4010 2.0 10 8 30 25
`
