package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snana-sim/specsim/sim/report"
	"github.com/snana-sim/specsim/sim/spectrograph"
)

type plotOptions struct {
	LamIndex int
	Mag      float64
	Filter   FilterRequest // skipped when no range or name is given
}

var (
	plotOpts   plotOptions
	plotOutDir string
	reportOut  string
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render calibration plots as PNG files",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, _ := mustLoadTable()
		paths, err := writePlots(plotOutDir, tbl, plotOpts)
		if err != nil {
			logrus.Fatalf("Plotting failed: %v", err)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a PDF calibration summary",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, _ := mustLoadTable()
		images, err := renderPlots(tbl, plotOpts)
		if err != nil {
			logrus.Fatalf("Plotting failed: %v", err)
		}
		if err := report.BuildPDF(reportOut, tbl, images); err != nil {
			logrus.Fatalf("Report failed: %v", err)
		}
	},
}

// renderPlots returns PNG images keyed by the report.Image* constants.
func renderPlots(tbl *spectrograph.Table, opts plotOptions) (map[string][]byte, error) {
	images := map[string][]byte{}
	var err error
	if images[report.ImageZeroPoint], err = report.PlotZeroPoint(tbl); err != nil {
		return nil, err
	}
	if images[report.ImageSkyVar], err = report.PlotSkyVar(tbl); err != nil {
		return nil, err
	}
	if images[report.ImageSNR], err = report.PlotSNR(tbl, opts.LamIndex, opts.Mag); err != nil {
		return nil, err
	}
	f := opts.Filter
	if f.named() || f.LamMax > f.LamMin {
		tr, err := transmission(tbl, f)
		if err != nil {
			return nil, err
		}
		if images[report.ImageTransmission], err = report.PlotTransmission(f.Name, tr); err != nil {
			return nil, err
		}
	}
	return images, nil
}

// writePlots renders the plots into dir as <key>.png and returns the
// written paths in name order.
func writePlots(dir string, tbl *spectrograph.Table, opts plotOptions) ([]string, error) {
	images, err := renderPlots(tbl, opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for key, png := range images {
		path := filepath.Join(dir, key+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func addPlotFlags(c *cobra.Command) {
	c.Flags().IntVar(&plotOpts.LamIndex, "lam-index", 0, "Wavelength bin of the SNR plot")
	c.Flags().Float64Var(&plotOpts.Mag, "mag", 20, "Source magnitude of the SNR plot")
	c.Flags().StringVar(&plotOpts.Filter.Name, "filter-name", "", "Synthetic filter to plot")
	c.Flags().Float64Var(&plotOpts.Filter.LamMin, "filter-lam-min", 0, "Synthetic filter minimum wavelength (A)")
	c.Flags().Float64Var(&plotOpts.Filter.LamMax, "filter-lam-max", 0, "Synthetic filter maximum wavelength (A)")
}

func init() {
	addInputFlags(plotCmd)
	addPlotFlags(plotCmd)
	plotCmd.Flags().StringVar(&plotOutDir, "out-dir", ".", "Directory for PNG files")

	addInputFlags(reportCmd)
	addPlotFlags(reportCmd)
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Output PDF path")
	_ = reportCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(plotCmd)
	rootCmd.AddCommand(reportCmd)
}
