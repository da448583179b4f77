package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Load a spectrograph table, solve ZP and sky noise, and print them",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, metrics := mustLoadTable()
		writeSummary(os.Stdout, tbl)
		writeMetrics(metrics, metricsFile)
	},
}

// writeSummary prints the table header and, per wavelength bin, the zero
// point and sky noise variance at every exposure time.
func writeSummary(w io.Writer, tbl *spectrograph.Table) {
	mag := tbl.MagRef()
	fmt.Fprintf(w, "INSTRUMENT: %s\n", tbl.Instrument())
	fmt.Fprintf(w, "MAGREF:     %g %g\n", mag[0], mag[1])
	fmt.Fprintf(w, "TEXPOSE:    %s\n", joinFloats(tbl.Texpose()))
	fmt.Fprintf(w, "NBIN:       %d (raw %d, rebin %d)\n", tbl.NumBins(), tbl.RawBinCount(), tbl.RebinFactor())
	fmt.Fprintf(w, "LAMBDA:     %.1f - %.1f A\n", tbl.LamMin(), tbl.LamMax())
	if bands := tbl.FilterBands(); bands != "" {
		fmt.Fprintf(w, "FILTERS:    %s\n", bands)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "ILAM\tLAMMIN\tLAMMAX\tLAMSIGMA")
	for e := range tbl.Texpose() {
		fmt.Fprintf(tw, "\t%s\t%s", spectrograph.ZPColumn(e), spectrograph.SkyColumn(e))
	}
	fmt.Fprintln(tw, "\t")
	for l, b := range tbl.Bins() {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f", l, b.LamMin, b.LamMax, b.LamSigma)
		for e := range tbl.Texpose() {
			fmt.Fprintf(tw, "\t%.4f\t%.3f", tbl.ZeroPoint(l, e), tbl.SkyVar(l, e))
		}
		fmt.Fprintln(tw, "\t")
	}
	_ = tw.Flush()
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(parts, " ")
}

func init() {
	addInputFlags(calibrateCmd)
	rootCmd.AddCommand(calibrateCmd)
}
