// Package testutil provides shared test infrastructure for the spectrograph
// simulator. It consolidates golden dataset types, fixture builders and
// assertion helpers used across sim/ test packages and cmd/.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/spectrograph_golden.json.
type GoldenDataset struct {
	Tables []GoldenTable `json:"tables"`
}

// GoldenTable is one text table in testdata/ with the zero points and sky
// noise variances it was generated from.
type GoldenTable struct {
	File       string        `json:"file"`
	Instrument string        `json:"instrument"`
	NumBins    int           `json:"num_bins"`
	Texpose    []float64     `json:"texpose"`
	ZeroPoint  [][]float64   `json:"zero_point"`
	SkyVar     [][]float64   `json:"sky_var"`
	Queries    []GoldenQuery `json:"queries"`
}

// GoldenQuery is an SNR lookup with its expected answer.
type GoldenQuery struct {
	LamIndex        int     `json:"lam_index"`
	TexposeSearch   float64 `json:"texpose_search"`
	TexposeTemplate float64 `json:"texpose_template"`
	Mag             float64 `json:"mag"`
	SNR             float64 `json:"snr"`
}

// TestdataPath resolves a file under the repo root testdata/ directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func TestdataPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", name)
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	data, err := os.ReadFile(TestdataPath(t, "spectrograph_golden.json"))
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
