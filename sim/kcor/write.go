package kcor

import (
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/sirupsen/logrus"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

// TableLamIndex names the per-spectrum wavelength index table.
const TableLamIndex = "SPECTRO_LAMINDEX"

// filterNameWidth is the FILTER_NAME column width in characters.
const filterNameWidth = 20

// WriteCalibrationFile writes tbl as a kcor-style calibration file at path.
func WriteCalibrationFile(path string, tbl *spectrograph.Table) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := WriteCalibration(w, tbl); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logrus.Infof("Wrote spectrograph calibration (%d bins x %d TEXPOSE) to %s", tbl.NumBins(), tbl.NumTexpose(), path)
	return nil
}

// WriteCalibration encodes a solved table: the primary header carries the
// instrument and synthetic band list, followed by the SPECTROGRAPH table
// (ZP and SQSIGSKY stored as float32) and the SYN_FILTER_SPECTROGRAPH table.
func WriteCalibration(w io.Writer, tbl *spectrograph.Table) error {
	if !tbl.Solved() {
		return fmt.Errorf("spectrograph table %s is not solved", tbl.Instrument())
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}

	if err := writePrimary(f, []fitsio.Card{
		{Name: storedKey(spectrograph.KeyInstrument), Value: tbl.Instrument(), Comment: "spectrograph instrument"},
		{Name: storedKey(spectrograph.KeyFilterList), Value: tbl.FilterBands(), Comment: "synthetic filter bands"},
	}); err != nil {
		return err
	}
	if err := writeGrid(f, tbl); err != nil {
		return err
	}
	if err := writeSynFilters(f, tbl); err != nil {
		return err
	}
	return f.Close()
}

func writePrimary(f *fitsio.File, cards []fitsio.Card) error {
	phdu, err := fitsio.NewPrimaryHDU(fitsio.NewHeader(cards, fitsio.IMAGE_HDU, 8, []int{}))
	if err != nil {
		return fmt.Errorf("primary HDU: %w", err)
	}
	if err := f.Write(phdu); err != nil {
		return fmt.Errorf("primary HDU: %w", err)
	}
	return nil
}

func writeGrid(f *fitsio.File, tbl *spectrograph.Table) error {
	nt := tbl.NumTexpose()
	cols := []fitsio.Column{
		{Name: spectrograph.ColLamMin, Format: "D", Unit: "Angstrom"},
		{Name: spectrograph.ColLamMax, Format: "D", Unit: "Angstrom"},
		{Name: spectrograph.ColLamSigma, Format: "D", Unit: "Angstrom"},
	}
	for e := 0; e < nt; e++ {
		cols = append(cols,
			fitsio.Column{Name: spectrograph.ZPColumn(e), Format: "E"},
			fitsio.Column{Name: spectrograph.SkyColumn(e), Format: "E"},
		)
	}
	t, err := fitsio.NewTable(spectrograph.TableSpectrograph, cols, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("%s table: %w", spectrograph.TableSpectrograph, err)
	}
	defer func() { _ = t.Close() }()

	mag := tbl.MagRef()
	cards := []fitsio.Card{
		{Name: spectrograph.KeyNumLam, Value: tbl.NumBins(), Comment: "number of wavelength bins"},
		{Name: spectrograph.KeyNumTexpose, Value: nt, Comment: "number of exposure times"},
		{Name: spectrograph.KeyMagRef0, Value: mag[0]},
		{Name: spectrograph.KeyMagRef1, Value: mag[1]},
	}
	for e, texp := range tbl.Texpose() {
		cards = append(cards, fitsio.Card{Name: storedKey(spectrograph.TexposeKey(e)), Value: texp})
	}
	if err := t.Header().Append(cards...); err != nil {
		return fmt.Errorf("%s header: %w", spectrograph.TableSpectrograph, err)
	}

	row := make([]any, len(cols))
	var lamMin, lamMax, lamSigma float64
	row[0], row[1], row[2] = &lamMin, &lamMax, &lamSigma
	zp := make([]float32, nt)
	sky := make([]float32, nt)
	for e := 0; e < nt; e++ {
		row[3+2*e] = &zp[e]
		row[4+2*e] = &sky[e]
	}
	for l, b := range tbl.Bins() {
		lamMin, lamMax, lamSigma = b.LamMin, b.LamMax, b.LamSigma
		for e := 0; e < nt; e++ {
			zp[e] = float32(tbl.ZeroPoint(l, e))
			sky[e] = float32(tbl.SkyVar(l, e))
		}
		if err := t.Write(row...); err != nil {
			return fmt.Errorf("%s row %d: %w", spectrograph.TableSpectrograph, l, err)
		}
	}
	return f.Write(t)
}

func writeSynFilters(f *fitsio.File, tbl *spectrograph.Table) error {
	cols := []fitsio.Column{
		{Name: spectrograph.ColFilterName, Format: fmt.Sprintf("%dA", filterNameWidth)},
		{Name: spectrograph.ColLamMin, Format: "E", Unit: "Angstrom"},
		{Name: spectrograph.ColLamMax, Format: "E", Unit: "Angstrom"},
	}
	t, err := fitsio.NewTable(spectrograph.TableSynFilter, cols, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("%s table: %w", spectrograph.TableSynFilter, err)
	}
	defer func() { _ = t.Close() }()

	for _, sf := range tbl.SyntheticFilters() {
		name := sf.Name
		lo, hi := float32(sf.LamMin), float32(sf.LamMax)
		if err := t.Write(&name, &lo, &hi); err != nil {
			return fmt.Errorf("%s row %s: %w", spectrograph.TableSynFilter, sf.Name, err)
		}
	}
	return f.Write(t)
}

// WriteLamIndexTable appends the wavelength index table of tbl to f. Fixed
// bin widths are written as LAMINDEX, LAMCEN; variable widths as LAMINDEX,
// LAMMIN, LAMMAX.
func WriteLamIndexTable(f *fitsio.File, tbl *spectrograph.Table) error {
	minmax := tbl.Format() == spectrograph.FormatLamMinMax
	cols := []fitsio.Column{{Name: "LAMINDEX", Format: "J"}}
	if minmax {
		cols = append(cols,
			fitsio.Column{Name: "LAMMIN", Format: "E", Unit: "Angstrom"},
			fitsio.Column{Name: "LAMMAX", Format: "E", Unit: "Angstrom"})
	} else {
		cols = append(cols, fitsio.Column{Name: "LAMCEN", Format: "E", Unit: "Angstrom"})
	}
	t, err := fitsio.NewTable(TableLamIndex, cols, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("%s table: %w", TableLamIndex, err)
	}
	defer func() { _ = t.Close() }()

	for l, b := range tbl.Bins() {
		idx := int32(l)
		if minmax {
			lo, hi := float32(b.LamMin), float32(b.LamMax)
			err = t.Write(&idx, &lo, &hi)
		} else {
			cen := float32(b.LamAvg)
			err = t.Write(&idx, &cen)
		}
		if err != nil {
			return fmt.Errorf("%s row %d: %w", TableLamIndex, l, err)
		}
	}
	return f.Write(t)
}
