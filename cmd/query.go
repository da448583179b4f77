package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snana-sim/specsim/sim/observability"
	"github.com/snana-sim/specsim/sim/spectrograph"
)

// SNRQuery is one SNR lookup.
type SNRQuery struct {
	LamIndex        int     `yaml:"lam_index"`
	TexposeSearch   float64 `yaml:"texpose_search"`
	TexposeTemplate float64 `yaml:"texpose_template"` // 0 = no template
	Mag             float64 `yaml:"mag"`
}

// FilterRequest asks for a synthetic filter transmission. A request with
// only Name set looks the range up in the table's synthetic filters.
type FilterRequest struct {
	Name    string  `yaml:"name"`
	LamMin  float64 `yaml:"lam_min"`
	LamMax  float64 `yaml:"lam_max"`
	MaxBins int     `yaml:"max_bins"` // 0 = unbounded
}

func (f FilterRequest) named() bool {
	return f.Name != "" && f.LamMin == 0 && f.LamMax == 0
}

var (
	snrQuery SNRQuery
	filterRq FilterRequest
)

var snrCmd = &cobra.Command{
	Use:   "snr",
	Short: "Compute the SNR of a source in one wavelength bin",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, metrics := mustLoadTable()
		if err := runSNR(os.Stdout, tbl, metrics, snrQuery); err != nil {
			logrus.Fatalf("%v", err)
		}
		writeMetrics(metrics, metricsFile)
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Build a synthetic filter transmission from the zero-point curve",
	Run: func(cmd *cobra.Command, args []string) {
		tbl, metrics := mustLoadTable()
		if err := runFilter(os.Stdout, tbl, metrics, filterRq); err != nil {
			logrus.Fatalf("%v", err)
		}
		writeMetrics(metrics, metricsFile)
	},
}

func runSNR(w io.Writer, tbl *spectrograph.Table, metrics *observability.Collector, q SNRQuery) error {
	res, err := tbl.SNR(q.LamIndex, q.TexposeSearch, q.TexposeTemplate, q.Mag)
	metrics.ObserveSNR(err)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ILAM=%d LAMAVG=%.2f TEXPOSE_S=%g TEXPOSE_T=%g MAG=%.3f SNR=%.5g FLUX=%.5g FLUXERR=%.5g ERRFRAC_T=%.4f\n",
		q.LamIndex, tbl.Bin(q.LamIndex).LamAvg, q.TexposeSearch, q.TexposeTemplate, q.Mag,
		res.SNR, res.Flux, res.FluxErr, res.ErrFracTemplate)
	return nil
}

func transmission(tbl *spectrograph.Table, f FilterRequest) (spectrograph.Transmission, error) {
	if f.named() {
		return tbl.TransmissionFor(f.Name, f.MaxBins)
	}
	return tbl.FilterTransmission(f.LamMin, f.LamMax, f.MaxBins)
}

func runFilter(w io.Writer, tbl *spectrograph.Table, metrics *observability.Collector, f FilterRequest) error {
	tr, err := transmission(tbl, f)
	metrics.ObserveFilter(err)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# FILTER %s: %d bins of %.3f A over %.1f - %.1f A\n", f.Name, len(tr.Lam), tr.Step, tr.LamMin, tr.LamMax)
	for i := range tr.Lam {
		fmt.Fprintf(w, "%10.2f %8.5f\n", tr.Lam[i], tr.Trans[i])
	}
	return nil
}

func init() {
	addInputFlags(snrCmd)
	snrCmd.Flags().IntVar(&snrQuery.LamIndex, "lam-index", 0, "Wavelength bin index")
	snrCmd.Flags().Float64Var(&snrQuery.TexposeSearch, "texpose-search", 0, "Search exposure time (s)")
	snrCmd.Flags().Float64Var(&snrQuery.TexposeTemplate, "texpose-template", 0, "Template exposure time (s); 0 disables template noise")
	snrCmd.Flags().Float64Var(&snrQuery.Mag, "mag", 0, "Source magnitude in the bin")
	_ = snrCmd.MarkFlagRequired("texpose-search")
	_ = snrCmd.MarkFlagRequired("mag")

	addInputFlags(filterCmd)
	filterCmd.Flags().StringVar(&filterRq.Name, "name", "", "Synthetic filter name; alone, looks up its range in the FITS file")
	filterCmd.Flags().Float64Var(&filterRq.LamMin, "lam-min", 0, "Filter minimum wavelength (A)")
	filterCmd.Flags().Float64Var(&filterRq.LamMax, "lam-max", 0, "Filter maximum wavelength (A)")
	filterCmd.Flags().IntVar(&filterRq.MaxBins, "max-bins", 0, "Maximum number of transmission bins (0 = unbounded)")

	rootCmd.AddCommand(snrCmd)
	rootCmd.AddCommand(filterCmd)
}
