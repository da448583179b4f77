package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snana-sim/specsim/sim"
	"github.com/snana-sim/specsim/sim/kcor"
	"github.com/snana-sim/specsim/sim/spectrograph"
	"github.com/snana-sim/specsim/sim/synth"
)

// --- specsim export ---

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the solved table as a kcor-style FITS calibration file",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, metrics := mustLoadTable()
		if err := kcor.WriteCalibrationFile(exportOut, tbl); err != nil {
			logrus.Fatalf("Export failed: %v", err)
		}
		logrus.Infof("Wrote %s calibration to %s", tbl.Instrument(), exportOut)
		writeMetrics(metrics, metricsFile)
	},
}

// --- specsim spectrum ---

type spectrumOptions struct {
	Observation synth.Observation
	Mag         float64
	Count       int
	Seed        int64
	Out         string // FITS output; empty prints to the writer
}

var spectrumOpts spectrumOptions

var spectrumCmd = &cobra.Command{
	Use:   "spectrum",
	Short: "Simulate noisy spectra of a flat-magnitude source",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, metrics := mustLoadTable()
		if err := runSpectrum(os.Stdout, tbl, spectrumOpts); err != nil {
			logrus.Fatalf("Spectrum simulation failed: %v", err)
		}
		writeMetrics(metrics, metricsFile)
	},
}

func runSpectrum(w io.Writer, tbl *spectrograph.Table, opts spectrumOptions) error {
	if opts.Count < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", opts.Count)
	}
	gen := synth.NewGenerator(tbl, sim.NewPartitionedRNG(sim.NewSimulationKey(opts.Seed)))
	mags := synth.FlatMags(tbl.NumBins(), opts.Mag)
	spectra := make([]synth.Spectrum, 0, opts.Count)
	for id := 1; id <= opts.Count; id++ {
		spec, err := gen.Generate(id, opts.Observation, mags)
		if err != nil {
			return err
		}
		spectra = append(spectra, spec)
	}

	if opts.Out != "" {
		hdr := kcor.SpectrumHeader{
			Instrument:      tbl.Instrument(),
			TexposeSearch:   opts.Observation.TexposeSearch,
			TexposeTemplate: opts.Observation.TexposeTemplate,
			Seed:            opts.Seed,
		}
		if err := kcor.WriteSpectraFile(opts.Out, tbl, hdr, synth.Rows(spectra)); err != nil {
			return err
		}
		logrus.Infof("Wrote %d spectra to %s", len(spectra), opts.Out)
		return nil
	}

	fmt.Fprintln(w, "# SPECID ILAM LAMAVG SNR SIM_FLAM FLAM FLAMERR")
	for _, s := range spectra {
		for _, b := range s.Bins {
			fmt.Fprintf(w, "%d %d %.2f %.4g %.6g %.6g %.6g\n", s.ID, b.LamIndex, b.LamAvg, b.SNR, b.SimFlux, b.Flux, b.FluxErr)
		}
	}
	return nil
}

func init() {
	addInputFlags(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output FITS path")
	_ = exportCmd.MarkFlagRequired("out")

	addInputFlags(spectrumCmd)
	spectrumCmd.Flags().Float64Var(&spectrumOpts.Mag, "mag", 0, "Source magnitude in every wavelength bin")
	spectrumCmd.Flags().Float64Var(&spectrumOpts.Observation.TexposeSearch, "texpose-search", 0, "Search exposure time (s)")
	spectrumCmd.Flags().Float64Var(&spectrumOpts.Observation.TexposeTemplate, "texpose-template", 0, "Template exposure time (s); 0 disables template noise")
	spectrumCmd.Flags().IntVar(&spectrumOpts.Count, "count", 1, "Number of spectra")
	spectrumCmd.Flags().Int64Var(&spectrumOpts.Seed, "seed", 42, "Seed for the noise draws")
	spectrumCmd.Flags().StringVar(&spectrumOpts.Out, "out", "", "Write spectra to this FITS file instead of stdout")
	_ = spectrumCmd.MarkFlagRequired("mag")
	_ = spectrumCmd.MarkFlagRequired("texpose-search")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(spectrumCmd)
}
