package spectrograph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Calibration file layout. The primary header carries the instrument and
// synthetic band list; two binary tables carry the solved grid and the
// synthetic filter ranges.
const (
	KeyInstrument = "SPECTROGRAPH_INSTRUMENT"
	KeyFilterList = "SPECTROGRAPH_FILTERLIST"
	KeyNumLam     = "NBL"
	KeyNumTexpose = "NBT"
	KeyMagRef0    = "MAGREF0"
	KeyMagRef1    = "MAGREF1"

	TableSpectrograph = "SPECTROGRAPH"
	TableSynFilter    = "SYN_FILTER_SPECTROGRAPH"

	ColLamMin     = "LAMMIN"
	ColLamMax     = "LAMMAX"
	ColLamSigma   = "LAMSIGMA"
	ColFilterName = "FILTER_NAME"

	// EnvDataRoot names the directory searched as $SNDATA_ROOT/kcor/<file>
	// when a calibration file is not found as given.
	EnvDataRoot = "SNDATA_ROOT"
)

// TexposeKey is the header key holding exposure time t.
func TexposeKey(t int) string { return fmt.Sprintf("TEXPOSE%02d", t) }

// ZPColumn is the column holding zero points at exposure index t.
func ZPColumn(t int) string { return fmt.Sprintf("ZP%02d", t) }

// SkyColumn is the column holding sky noise variance at exposure index t.
func SkyColumn(t int) string { return fmt.Sprintf("SQSIGSKY%02d", t) }

// CalibrationSource is a read-only view of a calibration file.
type CalibrationSource interface {
	// HeaderString returns a primary-header string value.
	HeaderString(key string) (string, bool)
	// Table returns the named binary table.
	Table(name string) (CalibrationTable, error)
	Close() error
}

// CalibrationTable is one binary table of a calibration file.
type CalibrationTable interface {
	NumRows() int
	Int(key string) (int, error)
	Float(key string) (float64, error)
	Float64s(col string) ([]float64, error)
	Float32s(col string) ([]float32, error)
	Strings(col string) ([]string, error)
}

// Opener opens a calibration file.
type Opener func(path string) (CalibrationSource, error)

// LoadCalibration opens a calibration file with open and reads its
// spectrograph section. If path cannot be opened, $SNDATA_ROOT/kcor/path is
// tried. A file without a spectrograph section is not an error: the
// returned table is nil and ok is false.
func LoadCalibration(path string, open Opener) (tbl *Table, ok bool, err error) {
	const fn = "LoadCalibration"

	src, name, err := openWithFallback(path, open)
	if err != nil {
		return nil, false, &Error{Severity: SeverityFatal, Func: fn,
			Msg1: "could not open calibration file", Msg2: name, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fatalf(ErrConfig, fn, fmt.Sprintf("close: %v", cerr), name)
		}
	}()

	if _, found := src.HeaderString(KeyInstrument); !found {
		logrus.Debugf("%s has no %s key; spectrograph disabled", name, KeyInstrument)
		return nil, false, nil
	}
	tbl, err = ReadCalibration(src)
	if err != nil {
		return nil, false, err
	}
	return tbl, true, nil
}

func openWithFallback(path string, open Opener) (CalibrationSource, string, error) {
	src, err := open(path)
	if err == nil {
		return src, path, nil
	}
	root := os.Getenv(EnvDataRoot)
	if root == "" || filepath.IsAbs(path) {
		return nil, path, err
	}
	alt := filepath.Join(root, "kcor", path)
	src, altErr := open(alt)
	if altErr != nil {
		return nil, alt, fmt.Errorf("%v; %v", err, altErr)
	}
	return src, alt, nil
}

// ReadCalibration reads the spectrograph section of an open calibration
// source. The returned table is solved and ready for queries.
func ReadCalibration(src CalibrationSource) (*Table, error) {
	const fn = "ReadCalibration"

	instrument, found := src.HeaderString(KeyInstrument)
	if !found {
		return nil, fatalf(ErrConfig, fn, "missing "+KeyInstrument, "not a spectrograph calibration file")
	}
	bands, _ := src.HeaderString(KeyFilterList)
	bands = strings.TrimSpace(bands)
	logrus.Infof("Read spectrograph instrument '%s'", instrument)

	st, err := src.Table(TableSpectrograph)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("movnam to %s table: %v", TableSpectrograph, err), "")
	}
	nbl, err := st.Int(KeyNumLam)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read number of lambda bins: %v", err), "")
	}
	nbt, err := st.Int(KeyNumTexpose)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read number of TEXPOSE bins: %v", err), "")
	}
	if nbl < 1 || nbl > MaxLambdaBins || nbt < 1 || nbt > MaxExposureTimes {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("invalid grid NBL=%d NBT=%d", nbl, nbt),
			fmt.Sprintf("bounds: NBL <= %d, NBT <= %d", MaxLambdaBins, MaxExposureTimes))
	}
	if st.NumRows() < nbl {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("%s table has %d rows, NBL=%d", TableSpectrograph, st.NumRows(), nbl), "")
	}
	logrus.Infof("Found %d wavelength bins and %d TEXPOSE bins", nbl, nbt)

	texpose := make([]float64, nbt)
	for t := range texpose {
		if texpose[t], err = st.Float(TexposeKey(t)); err != nil {
			return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s: %v", TexposeKey(t), err), "")
		}
		if t > 0 && texpose[t] <= texpose[t-1] {
			return nil, fatalf(ErrConfig, fn, fmt.Sprintf("TEXPOSE list not increasing: %v", texpose[:t+1]), "")
		}
	}
	logrus.Infof("TEXPOSE(seconds) = %v", texpose)

	var lamMin, lamMax, lamSigma []float64
	for _, c := range []struct {
		name string
		dst  *[]float64
	}{{ColLamMin, &lamMin}, {ColLamMax, &lamMax}, {ColLamSigma, &lamSigma}} {
		if *c.dst, err = st.Float64s(c.name); err != nil {
			return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s column: %v", c.name, err), "")
		}
	}

	// Reference magnitudes only set the transmission normalization scale;
	// files without them fall back to zero.
	var magRef [2]float64
	for i, key := range [2]string{KeyMagRef0, KeyMagRef1} {
		if v, err := st.Float(key); err == nil {
			magRef[i] = v
		}
	}

	tbl := newTable(instrument, magRef, texpose, nbl)
	for l := 0; l < nbl; l++ {
		tbl.bins = append(tbl.bins, newBin(lamMin[l], lamMax[l], lamSigma[l]))
	}
	tbl.rawBinCount = nbl
	tbl.allocDerived()

	// stored as float32
	for t := 0; t < nbt; t++ {
		zp, err := st.Float32s(ZPColumn(t))
		if err != nil {
			return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s column: %v", ZPColumn(t), err), "")
		}
		sky, err := st.Float32s(SkyColumn(t))
		if err != nil {
			return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s column: %v", SkyColumn(t), err), "")
		}
		for l := 0; l < nbl; l++ {
			tbl.zp[l][t] = float64(zp[l])
			tbl.skyVar[l][t] = float64(sky[l])
		}
	}

	if bands != "" {
		filters, err := readSyntheticFilters(src, bands)
		if err != nil {
			return nil, err
		}
		tbl.filterBands = bands
		tbl.syntheticFilters = filters
	}

	if err := tbl.finalize(); err != nil {
		return nil, err
	}
	return tbl, nil
}

// readSyntheticFilters reads one row per character of bands.
func readSyntheticFilters(src CalibrationSource, bands string) ([]SyntheticFilter, error) {
	const fn = "readSyntheticFilters"
	ft, err := src.Table(TableSynFilter)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("movnam to %s table: %v", TableSynFilter, err), "")
	}
	n := len(bands)
	if ft.NumRows() < n {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("%s table has %d rows", TableSynFilter, ft.NumRows()),
			fmt.Sprintf("%s='%s' needs %d", KeyFilterList, bands, n))
	}
	names, err := ft.Strings(ColFilterName)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s column: %v", ColFilterName, err), "")
	}
	lo, err := ft.Float32s(ColLamMin)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s column: %v", ColLamMin, err), "")
	}
	hi, err := ft.Float32s(ColLamMax)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read %s column: %v", ColLamMax, err), "")
	}

	out := make([]SyntheticFilter, n)
	for i := 0; i < n; i++ {
		out[i] = SyntheticFilter{
			Name:   strings.TrimSpace(names[i]),
			LamMin: float64(lo[i]),
			LamMax: float64(hi[i]),
		}
	}
	return out, nil
}
