package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snana-sim/specsim/sim"
)

// RunConfig represents the full run YAML structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Spectrograph sim.SpectrographConfig `yaml:"spectrograph"`
	Queries      []SNRQuery             `yaml:"queries"`
	Filters      []FilterRequest        `yaml:"filters"`
	MetricsFile  string                 `yaml:"metrics_file"`
}

// LoadRunConfig parses a run YAML file with strict field checking.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config %s: %w", path, err)
	}
	var cfg RunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the run config before any table is loaded.
func (c *RunConfig) Validate() error {
	if err := c.Spectrograph.Validate(); err != nil {
		return err
	}
	for i, q := range c.Queries {
		switch {
		case q.LamIndex < 0:
			return fmt.Errorf("queries[%d]: lam_index must be >= 0, got %d", i, q.LamIndex)
		case math.IsNaN(q.Mag) || math.IsInf(q.Mag, 0):
			return fmt.Errorf("queries[%d]: mag must be finite, got %v", i, q.Mag)
		case q.TexposeSearch <= 0:
			return fmt.Errorf("queries[%d]: texpose_search must be > 0, got %v", i, q.TexposeSearch)
		case q.TexposeTemplate < 0:
			return fmt.Errorf("queries[%d]: texpose_template must be >= 0, got %v", i, q.TexposeTemplate)
		}
	}
	for i, f := range c.Filters {
		switch {
		case f.MaxBins < 0:
			return fmt.Errorf("filters[%d]: max_bins must be >= 0, got %d", i, f.MaxBins)
		case f.named():
		case !(f.LamMax > f.LamMin):
			return fmt.Errorf("filters[%d]: lam_max (%v) must exceed lam_min (%v)", i, f.LamMax, f.LamMin)
		}
	}
	return nil
}

// executeRun loads the configured table, answers every query and filter
// request in order, and writes metrics when a metrics file is set.
func executeRun(w io.Writer, cfg *RunConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	metrics, err := newCollector(cfg.MetricsFile)
	if err != nil {
		return err
	}
	tbl, err := loadTable(cfg.Spectrograph, metrics)
	if err != nil {
		return err
	}
	writeSummary(w, tbl)

	for i, q := range cfg.Queries {
		if err := runSNR(w, tbl, metrics, q); err != nil {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
	}
	for i, f := range cfg.Filters {
		if err := runFilter(w, tbl, metrics, f); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
	}
	if metrics != nil {
		return metrics.WriteTextfile(cfg.MetricsFile)
	}
	return nil
}

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a YAML run config of SNR queries and filter requests",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := LoadRunConfig(runConfigPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := executeRun(os.Stdout, cfg); err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}
		logrus.Info("Run complete.")
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to run YAML")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}
