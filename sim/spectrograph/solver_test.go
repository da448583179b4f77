package spectrograph

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/snana-sim/specsim/sim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solvedFixture(t *testing.T, fx testutil.Fixture) *Table {
	t.Helper()
	tbl, err := readString(t, fx.Text(), DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, tbl.Solve())
	return tbl
}

func TestSolve_RecoversZeroPointAndSky(t *testing.T) {
	// GIVEN SNR pairs generated from known ZP and sky variance
	fx := testutil.NewFixture(4, 100, 300, 1000)

	// WHEN the table is solved
	tbl := solvedFixture(t, fx)

	// THEN the generating values are recovered
	assert.True(t, tbl.Solved())
	for l := range fx.Bins {
		for e := range fx.Texpose {
			testutil.AssertFloat64Equal(t, "ZP", fx.ZP[l][e], tbl.ZeroPoint(l, e), 1e-8)
			testutil.AssertFloat64Equal(t, "SQSIGSKY", fx.SkyVar[l][e], tbl.SkyVar(l, e), 1e-6)
		}
	}
	assert.NoError(t, tbl.VerifyRoundTrip())
}

func TestSolve_Golden(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	for _, g := range dataset.Tables {
		t.Run(g.File, func(t *testing.T) {
			tbl, err := LoadText(testutil.TestdataPath(t, g.File), DefaultOptions())
			require.NoError(t, err)
			require.NoError(t, tbl.Solve())

			assert.Equal(t, g.Instrument, tbl.Instrument())
			require.Equal(t, g.NumBins, tbl.NumBins())
			for l := 0; l < g.NumBins; l++ {
				for e := range g.Texpose {
					testutil.AssertFloat64Equal(t, "ZP", g.ZeroPoint[l][e], tbl.ZeroPoint(l, e), 1e-7)
					testutil.AssertFloat64Equal(t, "SQSIGSKY", g.SkyVar[l][e], tbl.SkyVar(l, e), 1e-4)
				}
			}
			for _, q := range g.Queries {
				res, err := tbl.SNR(q.LamIndex, q.TexposeSearch, q.TexposeTemplate, q.Mag)
				require.NoError(t, err)
				testutil.AssertFloat64Equal(t, "SNR", q.SNR, res.SNR, 1e-5)
			}
		})
	}
}

func TestSolve_Scenario(t *testing.T) {
	// GIVEN the one-bin scenario table
	tbl, err := readString(t, testutil.ScenarioText, DefaultOptions())
	require.NoError(t, err)

	// WHEN solved
	require.NoError(t, tbl.Solve())

	// THEN zero points are finite and positive
	for e := 0; e < 2; e++ {
		zp := tbl.ZeroPoint(0, e)
		assert.False(t, math.IsNaN(zp) || math.IsInf(zp, 0))
		assert.Greater(t, zp, 0.0)
	}
	// AND the mag-20 SNR at the first exposure time is reproduced
	res, err := tbl.SNR(0, 100, 0, 20)
	require.NoError(t, err)
	testutil.AssertFloat64Equal(t, "SNR", 10, res.SNR, 0.001)
	assert.Zero(t, res.SkyVarTemplate)
}

func TestSolve_SingleExposureTime(t *testing.T) {
	fx := testutil.NewFixture(2, 300)
	tbl := solvedFixture(t, fx)

	// a single exposure time gives a constant curve
	res, err := tbl.SNR(1, 300, 0, 21)
	require.NoError(t, err)
	want := fx.ZP[1][0]
	testutil.AssertFloat64Equal(t, "ZP", want, res.ZPSearch, 1e-8)
}

func TestSolve_Unsolvable(t *testing.T) {
	// GIVEN an SNR pair with no positive sky solution
	text := "INSTRUMENT: X\nMAGREF_LIST: 20 22\nTEXPOSE_LIST: 100\nSPECBIN: 4000 4010 1 10 1\n"
	tbl, err := readString(t, text, DefaultOptions())
	require.NoError(t, err)

	// WHEN solved
	err = tbl.Solve()

	// THEN a physics error names the bin
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPhysics))
	assert.True(t, strings.Contains(err.Error(), "LAM=4000.0 to 4010.0"))
	assert.False(t, tbl.Solved())
}

func TestSolve_Twice(t *testing.T) {
	tbl := solvedFixture(t, testutil.NewFixture(1, 100))
	err := tbl.Solve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestSolvePair_RejectsNonPositiveSNR(t *testing.T) {
	for _, snr := range [][2]float64{{0, 1}, {1, -1}, {math.Inf(1), 1}, {math.NaN(), 1}} {
		_, _, err := solvePair([2]float64{20, 22}, snr)
		assert.Error(t, err, "%v", snr)
	}
}

func TestVerifyRoundTrip_DetectsCorruption(t *testing.T) {
	tbl := solvedFixture(t, testutil.NewFixture(2, 100, 1000))
	tbl.zp[1][1] += 0.01

	err := tbl.VerifyRoundTrip()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPhysics))
}
