package spectrograph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/snana-sim/specsim/sim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTable is an in-memory CalibrationTable.
type memTable struct {
	rows     int
	keys     map[string]float64
	float64s map[string][]float64
	float32s map[string][]float32
	strings  map[string][]string
}

func (m *memTable) NumRows() int { return m.rows }

func (m *memTable) Int(key string) (int, error) {
	v, err := m.Float(key)
	return int(v), err
}

func (m *memTable) Float(key string) (float64, error) {
	v, ok := m.keys[key]
	if !ok {
		return 0, fmt.Errorf("no key %s", key)
	}
	return v, nil
}

func (m *memTable) Float64s(col string) ([]float64, error) {
	if v, ok := m.float64s[col]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no column %s", col)
}

func (m *memTable) Float32s(col string) ([]float32, error) {
	if v, ok := m.float32s[col]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no column %s", col)
}

func (m *memTable) Strings(col string) ([]string, error) {
	if v, ok := m.strings[col]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no column %s", col)
}

type memSource struct {
	header map[string]string
	tables map[string]*memTable
	closed bool
}

func (m *memSource) HeaderString(key string) (string, bool) {
	v, ok := m.header[key]
	return v, ok
}

func (m *memSource) Table(name string) (CalibrationTable, error) {
	if tb, ok := m.tables[name]; ok {
		return tb, nil
	}
	return nil, fmt.Errorf("no table %s", name)
}

func (m *memSource) Close() error {
	m.closed = true
	return nil
}

// sourceFromTable mirrors the calibration writer layout for a solved table.
func sourceFromTable(tbl *Table, bands string, filters []SyntheticFilter) *memSource {
	nb, nt := tbl.NumBins(), tbl.NumTexpose()
	st := &memTable{
		rows:     nb,
		keys:     map[string]float64{KeyNumLam: float64(nb), KeyNumTexpose: float64(nt)},
		float64s: map[string][]float64{},
		float32s: map[string][]float32{},
	}
	st.keys[KeyMagRef0] = tbl.MagRef()[0]
	st.keys[KeyMagRef1] = tbl.MagRef()[1]
	for e, texp := range tbl.Texpose() {
		st.keys[TexposeKey(e)] = texp
		zp := make([]float32, nb)
		sky := make([]float32, nb)
		for l := 0; l < nb; l++ {
			zp[l] = float32(tbl.ZeroPoint(l, e))
			sky[l] = float32(tbl.SkyVar(l, e))
		}
		st.float32s[ZPColumn(e)] = zp
		st.float32s[SkyColumn(e)] = sky
	}
	for _, b := range tbl.Bins() {
		st.float64s[ColLamMin] = append(st.float64s[ColLamMin], b.LamMin)
		st.float64s[ColLamMax] = append(st.float64s[ColLamMax], b.LamMax)
		st.float64s[ColLamSigma] = append(st.float64s[ColLamSigma], b.LamSigma)
	}

	ft := &memTable{rows: len(filters), float32s: map[string][]float32{}, strings: map[string][]string{}}
	for _, f := range filters {
		ft.strings[ColFilterName] = append(ft.strings[ColFilterName], f.Name+"   ")
		ft.float32s[ColLamMin] = append(ft.float32s[ColLamMin], float32(f.LamMin))
		ft.float32s[ColLamMax] = append(ft.float32s[ColLamMax], float32(f.LamMax))
	}

	return &memSource{
		header: map[string]string{KeyInstrument: tbl.Instrument(), KeyFilterList: bands},
		tables: map[string]*memTable{TableSpectrograph: st, TableSynFilter: ft},
	}
}

func TestReadCalibration_MatchesSolvedTable(t *testing.T) {
	// GIVEN a calibration source written from a solved text table
	orig := solvedFixture(t, testutil.NewFixture(5, 100, 1000))
	filters := []SyntheticFilter{{"a", 4000, 4020}, {"b", 4020, 4050}}
	src := sourceFromTable(orig, "ab", filters)

	// WHEN it is read back
	tbl, err := ReadCalibration(src)
	require.NoError(t, err)

	// THEN the grid matches to float32 precision
	assert.True(t, tbl.Solved())
	assert.False(t, tbl.HasInputSNR())
	assert.Equal(t, orig.Instrument(), tbl.Instrument())
	assert.Equal(t, orig.Texpose(), tbl.Texpose())
	assert.Equal(t, orig.Bins(), tbl.Bins())
	assert.Equal(t, FormatLamCenter, tbl.Format())
	for l := 0; l < tbl.NumBins(); l++ {
		for e := 0; e < tbl.NumTexpose(); e++ {
			testutil.AssertFloat64Equal(t, "ZP", orig.ZeroPoint(l, e), tbl.ZeroPoint(l, e), 1e-6)
		}
	}

	// AND queries agree with the text-derived table
	want, err := orig.SNR(2, 550, 1000, 21)
	require.NoError(t, err)
	got, err := tbl.SNR(2, 550, 1000, 21)
	require.NoError(t, err)
	testutil.AssertFloat64Equal(t, "SNR", want.SNR, got.SNR, 1e-5)

	// AND the synthetic filters are available by name
	assert.Equal(t, "ab", tbl.FilterBands())
	assert.Equal(t, filters, tbl.SyntheticFilters())
	f, ok := tbl.SyntheticFilter("b")
	require.True(t, ok)
	assert.Equal(t, 4020.0, f.LamMin)

	tr, err := tbl.TransmissionFor("a", 0)
	require.NoError(t, err)
	assert.Len(t, tr.Trans, 12)

	_, err = tbl.TransmissionFor("z", 0)
	assert.True(t, errors.Is(err, ErrConfig))

	// AND a read-back table cannot be re-solved or verified
	assert.True(t, errors.Is(tbl.Solve(), ErrConfig))
	assert.True(t, errors.Is(tbl.VerifyRoundTrip(), ErrConfig))
}

func TestReadCalibration_VariableBinWidth(t *testing.T) {
	fx := testutil.NewFixture(3, 100)
	fx.Bins[2].LamMax += 5
	src := sourceFromTable(solvedFixture(t, fx), "", nil)

	tbl, err := ReadCalibration(src)
	require.NoError(t, err)
	assert.Equal(t, FormatLamMinMax, tbl.Format())
	assert.Empty(t, tbl.SyntheticFilters())
}

func TestReadCalibration_Errors(t *testing.T) {
	base := func() *memSource {
		return sourceFromTable(solvedFixture(t, testutil.NewFixture(2, 100, 1000)), "a",
			[]SyntheticFilter{{"a", 4000, 4010}})
	}
	tests := []struct {
		name   string
		mutate func(*memSource)
	}{
		{"missing table", func(s *memSource) { delete(s.tables, TableSpectrograph) }},
		{"missing NBL", func(s *memSource) { delete(s.tables[TableSpectrograph].keys, KeyNumLam) }},
		{"missing TEXPOSE01", func(s *memSource) { delete(s.tables[TableSpectrograph].keys, TexposeKey(1)) }},
		{"missing ZP column", func(s *memSource) { delete(s.tables[TableSpectrograph].float32s, ZPColumn(0)) }},
		{"too few rows", func(s *memSource) { s.tables[TableSpectrograph].rows = 1 }},
		{"too many texpose", func(s *memSource) { s.tables[TableSpectrograph].keys[KeyNumTexpose] = MaxExposureTimes + 1 }},
		{"missing filter table", func(s *memSource) { delete(s.tables, TableSynFilter) }},
		{"filter list longer than table", func(s *memSource) { s.header[KeyFilterList] = "abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := base()
			tt.mutate(src)
			_, err := ReadCalibration(src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
		})
	}
}

func TestLoadCalibration_NoSpectrograph(t *testing.T) {
	// GIVEN a calibration file without the instrument key
	src := &memSource{header: map[string]string{}}
	open := func(string) (CalibrationSource, error) { return src, nil }

	// WHEN loaded
	tbl, ok, err := LoadCalibration("kcor.fits", open)

	// THEN the spectrograph is silently absent
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, tbl)
	assert.True(t, src.closed)
}

func TestLoadCalibration_FallsBackToDataRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv(EnvDataRoot, root)
	want := filepath.Join(root, "kcor", "kcor_demo.fits")

	src := sourceFromTable(solvedFixture(t, testutil.NewFixture(2, 100)), "", nil)
	var tried []string
	open := func(path string) (CalibrationSource, error) {
		tried = append(tried, path)
		if path == want {
			return src, nil
		}
		return nil, os.ErrNotExist
	}

	tbl, ok, err := LoadCalibration("kcor_demo.fits", open)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, tbl.NumBins())
	assert.Equal(t, []string{"kcor_demo.fits", want}, tried)
	assert.True(t, src.closed)
}

func TestLoadCalibration_NotFound(t *testing.T) {
	t.Setenv(EnvDataRoot, t.TempDir())
	open := func(string) (CalibrationSource, error) { return nil, os.ErrNotExist }

	_, ok, err := LoadCalibration("missing.fits", open)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrNotFound))
}
