package spectrograph

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snana-sim/specsim/sim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readString(t *testing.T, text string, opts Options) (*Table, error) {
	t.Helper()
	return ReadText(strings.NewReader(text), t.Name(), opts)
}

func TestReadText_HeaderAndBins(t *testing.T) {
	// GIVEN a three-bin table with two exposure times
	fx := testutil.NewFixture(3, 100, 1000)

	// WHEN it is read
	tbl, err := readString(t, fx.Text(), DefaultOptions())

	// THEN header values and bins are populated
	require.NoError(t, err)
	assert.Equal(t, "TEST_SPEC", tbl.Instrument())
	assert.Equal(t, [2]float64{20, 22}, tbl.MagRef())
	assert.Equal(t, []float64{100, 1000}, tbl.Texpose())
	assert.Equal(t, 3, tbl.NumBins())
	assert.Equal(t, 3, tbl.RawBinCount())
	assert.Equal(t, 4000.0, tbl.LamMin())
	assert.Equal(t, 4030.0, tbl.LamMax())
	assert.Equal(t, 100.0, tbl.TexposeMin())
	assert.Equal(t, 1000.0, tbl.TexposeMax())

	b := tbl.Bin(1)
	assert.Equal(t, 4015.0, b.LamAvg)
	assert.Equal(t, 10.0, b.LamBin)
	assert.True(t, tbl.HasInputSNR())
	assert.False(t, tbl.Solved())
	testutil.AssertFloat64Equal(t, "SNR0", fx.SNR(2, 1, 0), tbl.InputSNR(2, 1)[0], 1e-9)
}

func TestReadText_CommentsAndMultilineValues(t *testing.T) {
	// GIVEN comments in several styles and a SPECBIN row split over two lines
	text := `# header comment
! another comment
INSTRUMENT: X  % trailing comment
MAGREF_LIST:
   20 22
TEXPOSE_LIST: 100 200 # seconds
SPECBIN: 4000 4010 1.5
         5 2 7 3
`
	// WHEN it is read
	tbl, err := readString(t, text, DefaultOptions())

	// THEN the comments are skipped and values span lines
	require.NoError(t, err)
	assert.Equal(t, "X", tbl.Instrument())
	assert.Equal(t, []float64{100, 200}, tbl.Texpose())
	require.Equal(t, 1, tbl.NumBins())
	assert.Equal(t, [2]float64{7, 3}, tbl.InputSNR(0, 1))
}

func TestReadText_Rebin(t *testing.T) {
	// GIVEN two rows whose SNRs combine in quadrature to 5
	text := `INSTRUMENT: R
MAGREF_LIST: 20 22
TEXPOSE_LIST: 100
SPECBIN: 4000 4010 1.0 3 4
SPECBIN: 4010 4020 3.0 4 3
SPECBIN: 4020 4030 1.0 1 1
`
	// WHEN read with rebin=2
	tbl, err := readString(t, text, Options{Rebin: 2})

	// THEN one merged bin remains and the trailing partial group is dropped
	require.NoError(t, err)
	require.Equal(t, 1, tbl.NumBins())
	assert.Equal(t, 3, tbl.RawBinCount())
	assert.Equal(t, 2, tbl.RebinFactor())
	b := tbl.Bin(0)
	assert.Equal(t, 4000.0, b.LamMin)
	assert.Equal(t, 4020.0, b.LamMax)
	assert.Equal(t, 2.0, b.LamSigma)
	testutil.AssertFloat64Equal(t, "SNR0", 5, tbl.InputSNR(0, 0)[0], 1e-12)
	testutil.AssertFloat64Equal(t, "SNR1", 5, tbl.InputSNR(0, 0)[1], 1e-12)
}

func TestReadText_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		kind    error
		message string
	}{
		{
			name: "decreasing TEXPOSE",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100 50\nSPECBIN: 4000 4010 1 5 2 7 3\n",
			kind: ErrConfig, message: "increasing",
		},
		{
			name: "TEXPOSE declared long to short",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 1000 100\nSPECBIN: 4000 4010 2.0 30 25 10 8\n",
			kind: ErrConfig, message: "increasing",
		},
		{
			name: "repeated TEXPOSE",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100 100\nSPECBIN: 4000 4010 1 5 2 7 3\n",
			kind: ErrConfig, message: "increasing",
		},
		{
			name: "SPECBIN before MAGREF",
			text: "INSTRUMENT: X\nTEXPOSE_LIST: 100\nSPECBIN: 4000 4010 1 5 2\n",
			kind: ErrConfig, message: "MAGREF_LIST:",
		},
		{
			name: "no header at all",
			text: "# empty\n",
			kind: ErrConfig, message: "missing required header keys",
		},
		{
			name: "header after rows",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100\nSPECBIN: 4000 4010 1 5 2\nINSTRUMENT: Y\n",
			kind: ErrConfig, message: "after SPECBIN",
		},
		{
			name: "malformed row",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100\nSPECBIN: 4000 4010 1 five 2\n",
			kind: ErrConfig, message: "line 4",
		},
		{
			name: "truncated row",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100 200\nSPECBIN: 4000 4010 1 5 2\n",
			kind: ErrConfig, message: "malformed",
		},
		{
			name: "LAMMAX below LAMMIN",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100\nSPECBIN: 4010 4000 1 5 2\n",
			kind: ErrConfig, message: "LAMMAX",
		},
		{
			name: "SNR decreases with exposure",
			text: "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100 200\nSPECBIN: 4000 4010 1 5 2 4 3\nSPECBIN: 4010 4020 1 5 2 6 1\n",
			kind: ErrMonotonic, message: "found 2 errors",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readString(t, tt.text, DefaultOptions())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.Contains(t, err.Error(), tt.message)

			var serr *Error
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, SeverityFatal, serr.Severity)
		})
	}
}

func TestReadText_TooManyExposureTimes(t *testing.T) {
	var b strings.Builder
	b.WriteString("INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST:")
	for i := 1; i <= MaxExposureTimes+1; i++ {
		fmt.Fprintf(&b, " %d", i*10)
	}
	b.WriteString("\n")

	_, err := readString(t, b.String(), DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestReadText_TooManyBins(t *testing.T) {
	fx := testutil.NewFixture(MaxLambdaBins+1, 100)
	_, err := readString(t, fx.Text(), DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Contains(t, err.Error(), "MaxLambdaBins")
}

func TestLoadText_MissingFile(t *testing.T) {
	_, err := LoadText(filepath.Join(t.TempDir(), "nope.dat"), DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadText_Testdata(t *testing.T) {
	path := testutil.TestdataPath(t, "spectrograph_demo.dat")
	tbl, err := LoadText(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "DEMO_SPEC", tbl.Instrument())
	assert.Equal(t, 6, tbl.NumBins())
	assert.Equal(t, []float64{100, 300, 1000}, tbl.Texpose())
}
