// Package report renders spectrograph calibration plots (PNG, gonum/plot)
// and a PDF summary (gofpdf).
package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

// Image keys used by BuildPDF.
const (
	ImageZeroPoint    = "zero_point"
	ImageSkyVar       = "sky_var"
	ImageSNR          = "snr"
	ImageTransmission = "transmission"
)

const snrGridPoints = 100

var plotColors = []color.Color{
	color.RGBA{R: 220, A: 255},
	color.RGBA{G: 150, A: 255},
	color.RGBA{B: 220, A: 255},
	color.RGBA{R: 255, G: 165, A: 255},
	color.RGBA{R: 128, B: 128, A: 255},
	color.RGBA{G: 128, B: 128, A: 255},
}

// PlotZeroPoint draws ZP vs wavelength, one line per exposure time.
func PlotZeroPoint(tbl *spectrograph.Table) ([]byte, error) {
	return plotPerExposure(tbl, "Zero point", "ZP (mag)", tbl.ZeroPoint)
}

// PlotSkyVar draws the sky noise variance vs wavelength, one line per exposure time.
func PlotSkyVar(tbl *spectrograph.Table) ([]byte, error) {
	return plotPerExposure(tbl, "Sky noise variance", "SQSIGSKY (p.e.^2)", tbl.SkyVar)
}

func plotPerExposure(tbl *spectrograph.Table, title, yLabel string, value func(l, e int) float64) ([]byte, error) {
	if !tbl.Solved() {
		return nil, fmt.Errorf("table %s is not solved", tbl.Instrument())
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s)", title, tbl.Instrument())
	p.X.Label.Text = "Wavelength (A)"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	for e, texp := range tbl.Texpose() {
		pts := make(plotter.XYs, tbl.NumBins())
		for l := range pts {
			pts[l] = plotter.XY{X: tbl.Bin(l).LamAvg, Y: value(l, e)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line for TEXPOSE=%g: %v", texp, err)
		}
		line.Color = plotColors[e%len(plotColors)]
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("t=%gs", texp), line)
	}
	p.Legend.Top = true
	return render(p)
}

// PlotSNR draws SNR vs search exposure time for one wavelength bin and
// magnitude, without and with a template of the longest exposure.
func PlotSNR(tbl *spectrograph.Table, lamIndex int, mag float64) ([]byte, error) {
	if lamIndex < 0 || lamIndex >= tbl.NumBins() {
		return nil, fmt.Errorf("lamIndex=%d outside [0,%d)", lamIndex, tbl.NumBins())
	}
	lo, hi := tbl.TexposeMin(), tbl.TexposeMax()
	n := snrGridPoints
	if hi == lo {
		n = 1
	}
	curves := []struct {
		label    string
		template float64
	}{
		{"no template", 0},
		{fmt.Sprintf("template t=%gs", hi), hi},
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("SNR for mag %.2f at %.1f A", mag, tbl.Bin(lamIndex).LamAvg)
	p.X.Label.Text = "Search exposure time (s)"
	p.Y.Label.Text = "SNR"
	p.Add(plotter.NewGrid())

	for i, c := range curves {
		pts := make(plotter.XYs, n)
		for k := range pts {
			t := lo
			if n > 1 {
				t = lo + (hi-lo)*float64(k)/float64(n-1)
			}
			res, err := tbl.SNR(lamIndex, t, c.template, mag)
			if err != nil {
				return nil, err
			}
			pts[k] = plotter.XY{X: t, Y: res.SNR}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line %s: %v", c.label, err)
		}
		line.Color = plotColors[i%len(plotColors)]
		line.LineStyle.Width = vg.Points(1.5)
		if c.template > 0 {
			line.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		}
		p.Add(line)
		p.Legend.Add(c.label, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return render(p)
}

// PlotTransmission draws a synthetic filter transmission curve.
func PlotTransmission(name string, tr spectrograph.Transmission) ([]byte, error) {
	if len(tr.Lam) == 0 {
		return nil, fmt.Errorf("empty transmission curve")
	}
	pts := make(plotter.XYs, len(tr.Lam))
	for i := range pts {
		pts[i] = plotter.XY{X: tr.Lam[i], Y: tr.Trans[i]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Synthetic filter %s (%.0f-%.0f A)", name, tr.LamMin, tr.LamMax)
	p.X.Label.Text = "Wavelength (A)"
	p.Y.Label.Text = "Transmission"
	p.Y.Min = 0
	p.Y.Max = 1.05
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create transmission line: %v", err)
	}
	line.Color = plotColors[2]
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	return render(p)
}

func render(p *plot.Plot) ([]byte, error) {
	writer, err := p.WriterTo(vg.Points(800), vg.Points(400), "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %v", err)
	}
	buf := new(bytes.Buffer)
	if _, err := writer.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to write plot to buffer: %v", err)
	}
	return buf.Bytes(), nil
}
