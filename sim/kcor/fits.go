// Package kcor reads and writes kcor-style calibration files (FITS) for the
// spectrograph. It adapts github.com/astrogo/fitsio to the codec interface
// consumed by spectrograph.LoadCalibration.
package kcor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/sirupsen/logrus"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

// FITS keywords are limited to 8 characters. Long logical keys are stored
// under these aliases; readers accept either spelling.
var keyAliases = map[string]string{
	spectrograph.KeyInstrument: "SPECINST",
	spectrograph.KeyFilterList: "SPECFILT",
}

// storedKey returns the keyword written for a logical key.
func storedKey(key string) string {
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	// TEXPOSEnn -> TEXPOSnn
	if strings.HasPrefix(key, "TEXPOSE") && len(key) > 8 {
		return "TEXPOS" + strings.TrimPrefix(key, "TEXPOSE")
	}
	return key
}

func lookup(hdr *fitsio.Header, key string) *fitsio.Card {
	if c := hdr.Get(key); c != nil {
		return c
	}
	if alt := storedKey(key); alt != key {
		return hdr.Get(alt)
	}
	return nil
}

// File is an open calibration file. It implements spectrograph.CalibrationSource.
type File struct {
	path string
	osf  *os.File
	fits *fitsio.File
}

// Open opens a FITS calibration file for reading.
func Open(path string) (*File, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := fitsio.Open(osf)
	if err != nil {
		_ = osf.Close()
		return nil, fmt.Errorf("fits open %s: %w", path, err)
	}
	logrus.Debugf("opened FITS file %s with %d HDUs", path, len(f.HDUs()))
	return &File{path: path, osf: osf, fits: f}, nil
}

// Opener adapts Open to spectrograph.Opener.
func Opener(path string) (spectrograph.CalibrationSource, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// HeaderString returns a string card of the primary header.
func (f *File) HeaderString(key string) (string, bool) {
	c := lookup(f.fits.HDU(0).Header(), key)
	if c == nil {
		return "", false
	}
	switch v := c.Value.(type) {
	case string:
		return strings.TrimSpace(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// Table returns the named binary table.
func (f *File) Table(name string) (spectrograph.CalibrationTable, error) {
	if !f.fits.Has(name) {
		return nil, fmt.Errorf("%s: no HDU named %s", f.path, name)
	}
	tbl, ok := f.fits.Get(name).(*fitsio.Table)
	if !ok {
		return nil, fmt.Errorf("%s: HDU %s is not a table", f.path, name)
	}
	return loadTable(tbl)
}

// Close releases the FITS decoder and the underlying file.
func (f *File) Close() error {
	err := f.fits.Close()
	if cerr := f.osf.Close(); err == nil {
		err = cerr
	}
	return err
}

// table is a fully decoded binary table. Columns are held in their stored
// type; accessors convert on demand.
type table struct {
	name string
	hdr  *fitsio.Header
	rows int
	cols map[string][]any
}

func loadTable(t *fitsio.Table) (*table, error) {
	cols := t.Cols()
	out := &table{
		name: t.Name(),
		hdr:  t.Header(),
		rows: int(t.NumRows()),
		cols: make(map[string][]any, len(cols)),
	}

	dest := make([]any, len(cols))
	for i, c := range cols {
		p, err := newCell(c.Format)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", out.name, c.Name, err)
		}
		dest[i] = p
		out.cols[c.Name] = make([]any, 0, out.rows)
	}

	rows, err := t.Read(0, t.NumRows())
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", out.name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("table %s: %w", out.name, err)
		}
		for i, c := range cols {
			out.cols[c.Name] = append(out.cols[c.Name], cellValue(dest[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table %s: %w", out.name, err)
	}
	return out, nil
}

// newCell allocates a scan destination for a scalar column of TFORM format.
func newCell(format string) (any, error) {
	f := strings.TrimSpace(format)
	if f == "" {
		return nil, fmt.Errorf("empty TFORM")
	}
	code := f[len(f)-1]
	if code == 'A' {
		return new(string), nil
	}
	if n := strings.TrimSuffix(f, string(code)); n != "" && n != "1" {
		return nil, fmt.Errorf("vector column TFORM=%s not supported", format)
	}
	switch code {
	case 'E':
		return new(float32), nil
	case 'D':
		return new(float64), nil
	case 'I':
		return new(int16), nil
	case 'J':
		return new(int32), nil
	case 'K':
		return new(int64), nil
	case 'B':
		return new(uint8), nil
	}
	return nil, fmt.Errorf("TFORM=%s not supported", format)
}

func cellValue(p any) any {
	switch v := p.(type) {
	case *string:
		return *v
	case *float32:
		return *v
	case *float64:
		return *v
	case *int16:
		return *v
	case *int32:
		return *v
	case *int64:
		return *v
	case *uint8:
		return *v
	}
	return nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
}

func (t *table) NumRows() int { return t.rows }

func (t *table) card(key string) (*fitsio.Card, error) {
	c := lookup(t.hdr, key)
	if c == nil {
		return nil, fmt.Errorf("table %s: no header key %s", t.name, key)
	}
	return c, nil
}

func (t *table) Int(key string) (int, error) {
	c, err := t.card(key)
	if err != nil {
		return 0, err
	}
	v, err := toFloat64(c.Value)
	if err != nil {
		return 0, fmt.Errorf("table %s key %s: %w", t.name, key, err)
	}
	return int(v), nil
}

func (t *table) Float(key string) (float64, error) {
	c, err := t.card(key)
	if err != nil {
		return 0, err
	}
	v, err := toFloat64(c.Value)
	if err != nil {
		return 0, fmt.Errorf("table %s key %s: %w", t.name, key, err)
	}
	return v, nil
}

func (t *table) column(name string) ([]any, error) {
	col, ok := t.cols[name]
	if !ok {
		return nil, fmt.Errorf("table %s: no column %s", t.name, name)
	}
	return col, nil
}

func (t *table) Float64s(name string) ([]float64, error) {
	col, err := t.column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(col))
	for i, v := range col {
		if out[i], err = toFloat64(v); err != nil {
			return nil, fmt.Errorf("table %s column %s row %d: %w", t.name, name, i, err)
		}
	}
	return out, nil
}

func (t *table) Float32s(name string) ([]float32, error) {
	wide, err := t.Float64s(name)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(wide))
	for i, v := range wide {
		out[i] = float32(v)
	}
	return out, nil
}

func (t *table) Strings(name string) ([]string, error) {
	col, err := t.column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(col))
	for i, v := range col {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("table %s column %s row %d: %T is not a string", t.name, name, i, v)
		}
		out[i] = strings.TrimSpace(s)
	}
	return out, nil
}
