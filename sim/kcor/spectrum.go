package kcor

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/sirupsen/logrus"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

// TableSpecFlux names the simulated spectrum flux table.
const TableSpecFlux = "SPECTRO_FLUX"

// SpectrumRow is one wavelength bin of one simulated spectrum.
type SpectrumRow struct {
	SpecID   int32
	LamIndex int32
	Flux     float32 // observed flux with noise
	FluxErr  float32
	SimFlux  float32 // true flux
}

// SpectrumHeader describes the observing conditions shared by all rows.
type SpectrumHeader struct {
	Instrument      string
	TexposeSearch   float64
	TexposeTemplate float64
	Seed            int64
}

// WriteSpectraFile writes simulated spectra at path: a primary header with
// the observing conditions, the SPECTRO_LAMINDEX table of tbl, and the
// SPECTRO_FLUX rows.
func WriteSpectraFile(path string, tbl *spectrograph.Table, hdr SpectrumHeader, rows []SpectrumRow) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	if err := writePrimary(f, []fitsio.Card{
		{Name: storedKey(spectrograph.KeyInstrument), Value: hdr.Instrument},
		{Name: "TEXPOS_S", Value: hdr.TexposeSearch, Comment: "search exposure time"},
		{Name: "TEXPOS_T", Value: hdr.TexposeTemplate, Comment: "template exposure time"},
		{Name: "SEED", Value: int(hdr.Seed)},
	}); err != nil {
		return err
	}
	if err := WriteLamIndexTable(f, tbl); err != nil {
		return err
	}

	t, err := fitsio.NewTable(TableSpecFlux, []fitsio.Column{
		{Name: "SPECID", Format: "J"},
		{Name: "LAMINDEX", Format: "J"},
		{Name: "FLAM", Format: "E"},
		{Name: "FLAMERR", Format: "E"},
		{Name: "SIM_FLAM", Format: "E"},
	}, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("%s table: %w", TableSpecFlux, err)
	}
	defer func() { _ = t.Close() }()
	for i := range rows {
		r := &rows[i]
		if err := t.Write(&r.SpecID, &r.LamIndex, &r.Flux, &r.FluxErr, &r.SimFlux); err != nil {
			return fmt.Errorf("%s row %d: %w", TableSpecFlux, i, err)
		}
	}
	if err := f.Write(t); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logrus.Infof("Wrote %d spectrum rows to %s", len(rows), path)
	return nil
}
