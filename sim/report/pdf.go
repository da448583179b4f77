package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

const (
	inchToMm         = 25.4
	pdfPageHeight    = 8.5 * inchToMm // Letter landscape
	pdfPageWidth     = 11 * inchToMm
	pdfMargin        = 0.5 * inchToMm
	pdfContentWidth  = pdfPageWidth - 2*pdfMargin
	pdfContentBottom = pdfPageHeight - pdfMargin
	pdfLineHeight    = 6.0
	pdfImageAspect   = 400.0 / 800.0
)

// pdfWriter tracks the flowing Y position of a gofpdf document.
type pdfWriter struct {
	pdf *gofpdf.Fpdf
	y   float64
}

func (w *pdfWriter) newPage() {
	w.pdf.AddPage()
	w.y = pdfMargin
}

func (w *pdfWriter) ensure(height float64) {
	if w.y+height > pdfContentBottom {
		w.newPage()
	}
}

func (w *pdfWriter) heading(text string, size float64) {
	w.ensure(pdfLineHeight + 2)
	w.pdf.SetFont("Arial", "B", size)
	w.pdf.SetXY(pdfMargin, w.y)
	w.pdf.CellFormat(pdfContentWidth, pdfLineHeight+2, text, "", 1, "L", false, 0, "")
	w.y = w.pdf.GetY() + 1
}

func (w *pdfWriter) line(text string) {
	w.ensure(pdfLineHeight)
	w.pdf.SetFont("Arial", "", 10)
	w.pdf.SetXY(pdfMargin, w.y)
	w.pdf.CellFormat(pdfContentWidth, pdfLineHeight, text, "", 1, "L", false, 0, "")
	w.y = w.pdf.GetY()
}

func (w *pdfWriter) row(cells []string, widths []float64, header bool) {
	w.ensure(pdfLineHeight)
	if header {
		w.pdf.SetFont("Arial", "B", 9)
		w.pdf.SetFillColor(200, 200, 200)
	} else {
		w.pdf.SetFont("Arial", "", 9)
	}
	x := pdfMargin
	for i, c := range cells {
		w.pdf.SetXY(x, w.y)
		w.pdf.CellFormat(widths[i], pdfLineHeight, c, "1", 0, "C", header, 0, "")
		x += widths[i]
	}
	w.y += pdfLineHeight
}

func (w *pdfWriter) image(name string, png []byte, caption string) {
	width := pdfContentWidth * 0.9
	height := width * pdfImageAspect
	w.ensure(height + pdfLineHeight)
	w.pdf.RegisterImageReader(name, "PNG", bytes.NewReader(png))
	w.pdf.Image(name, pdfMargin, w.y, width, height, false, "PNG", 0, "")
	w.y += height + 1
	w.line(caption)
	w.y += 2
}

// BuildPDF writes a calibration summary to path: header values, the bin
// table with ZP and SQSIGSKY at the shortest and longest exposure times,
// and any plots in images keyed by the Image* constants.
func BuildPDF(path string, tbl *spectrograph.Table, images map[string][]byte) error {
	if !tbl.Solved() {
		return fmt.Errorf("table %s is not solved", tbl.Instrument())
	}
	pdf := gofpdf.New("L", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	w := &pdfWriter{pdf: pdf}
	w.newPage()

	w.heading(fmt.Sprintf("Spectrograph calibration: %s", tbl.Instrument()), 16)
	mag := tbl.MagRef()
	w.line(fmt.Sprintf("Reference magnitudes: %.2f, %.2f", mag[0], mag[1]))
	w.line(fmt.Sprintf("Exposure times (s): %s", joinFloats(tbl.Texpose())))
	w.line(fmt.Sprintf("Wavelength bins: %d (%d raw rows, rebin=%d) from %.1f to %.1f A",
		tbl.NumBins(), tbl.RawBinCount(), tbl.RebinFactor(), tbl.LamMin(), tbl.LamMax()))
	if bands := tbl.FilterBands(); bands != "" {
		w.line(fmt.Sprintf("Synthetic filter bands: %s", bands))
	}
	w.y += 3

	last := tbl.NumTexpose() - 1
	headers := []string{"Bin", "LAMMIN", "LAMMAX", "LAMSIGMA",
		fmt.Sprintf("ZP(t=%g)", tbl.TexposeMin()), fmt.Sprintf("ZP(t=%g)", tbl.TexposeMax()),
		fmt.Sprintf("SQSIGSKY(t=%g)", tbl.TexposeMin()), fmt.Sprintf("SQSIGSKY(t=%g)", tbl.TexposeMax())}
	rel := []float64{0.07, 0.12, 0.12, 0.11, 0.14, 0.14, 0.15, 0.15}
	widths := make([]float64, len(rel))
	for i, r := range rel {
		widths[i] = r * pdfContentWidth
	}
	w.heading("Wavelength bins", 13)
	w.row(headers, widths, true)
	for l, b := range tbl.Bins() {
		if w.y+pdfLineHeight > pdfContentBottom {
			w.newPage()
			w.row(headers, widths, true)
		}
		w.row([]string{
			fmt.Sprintf("%d", l),
			fmt.Sprintf("%.1f", b.LamMin),
			fmt.Sprintf("%.1f", b.LamMax),
			fmt.Sprintf("%.2f", b.LamSigma),
			fmt.Sprintf("%.4f", tbl.ZeroPoint(l, 0)),
			fmt.Sprintf("%.4f", tbl.ZeroPoint(l, last)),
			fmt.Sprintf("%.3f", tbl.SkyVar(l, 0)),
			fmt.Sprintf("%.3f", tbl.SkyVar(l, last)),
		}, widths, false)
	}

	plots := []struct {
		key     string
		caption string
	}{
		{ImageZeroPoint, "Zero point vs wavelength for each exposure time"},
		{ImageSkyVar, "Sky noise variance vs wavelength for each exposure time"},
		{ImageSNR, "SNR vs search exposure time"},
		{ImageTransmission, "Synthetic filter transmission"},
	}
	first := true
	for _, pl := range plots {
		png, ok := images[pl.key]
		if !ok || len(png) == 0 {
			continue
		}
		if first {
			w.newPage()
			w.heading("Plots", 13)
			first = false
		}
		w.image(pl.key, png, pl.caption)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write PDF %s: %w", path, err)
	}
	logrus.Infof("Wrote calibration report to %s", path)
	return nil
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(parts, " ")
}
