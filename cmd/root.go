package cmd

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snana-sim/specsim/sim"
	"github.com/snana-sim/specsim/sim/observability"
	"github.com/snana-sim/specsim/sim/spectrograph"
)

var (
	logLevel string // Log verbosity level

	// Spectrograph input, shared by every command that loads a table
	inputFile   string // text table of SNR pairs
	fitsFile    string // kcor FITS calibration file
	optionsStr  string // table options, e.g. rebin=2
	metricsFile string // prometheus textfile written on exit
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "specsim",
	Short: "Spectrograph calibration and SNR lookup for supernova simulations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// addInputFlags registers the flags that select a spectrograph table.
func addInputFlags(c *cobra.Command) {
	c.Flags().StringVar(&inputFile, "file", "", "Spectrograph text table (INSTRUMENT, MAGREF_LIST, TEXPOSE_LIST, SPECBIN rows)")
	c.Flags().StringVar(&fitsFile, "fits-file", "", "kcor FITS calibration file; $SNDATA_ROOT/kcor is searched when the path is relative")
	c.Flags().StringVar(&optionsStr, "options", "", "Text table options, e.g. rebin=2")
	c.Flags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile")
}

func inputConfig() sim.SpectrographConfig {
	return sim.NewSpectrographConfig(inputFile, fitsFile, optionsStr)
}

// newCollector returns a collector on a private registry, or nil when no
// metrics file is requested.
func newCollector(path string) (*observability.Collector, error) {
	if path == "" {
		return nil, nil
	}
	return observability.NewCollector(prometheus.NewRegistry())
}

// loadTable loads cfg and fails when a FITS file carries no spectrograph.
func loadTable(cfg sim.SpectrographConfig, metrics *observability.Collector) (*spectrograph.Table, error) {
	tbl, err := sim.LoadSpectrograph(cfg, nil, metrics)
	if err != nil {
		return nil, err
	}
	if tbl == nil {
		return nil, fmt.Errorf("%s does not define a spectrograph", cfg.FITSFile)
	}
	return tbl, nil
}

// mustLoadTable loads the table named by the input flags.
func mustLoadTable() (*spectrograph.Table, *observability.Collector) {
	metrics, err := newCollector(metricsFile)
	if err != nil {
		logrus.Fatalf("Failed to register metrics: %v", err)
	}
	tbl, err := loadTable(inputConfig(), metrics)
	if err != nil {
		if sim.IsUnavailable(err) {
			logrus.Fatalf("Spectrograph input not found: %v", err)
		}
		logrus.Fatalf("Failed to load spectrograph: %v", err)
	}
	return tbl, metrics
}

func writeMetrics(metrics *observability.Collector, path string) {
	if metrics == nil || path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		logrus.Fatalf("%v", err)
	}
	logrus.Infof("Wrote metrics to %s", path)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
}
