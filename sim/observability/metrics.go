// Package observability exposes Prometheus metrics for spectrograph loads
// and queries. Batch runs export them with WriteTextfile.
package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/floats"

	"github.com/snana-sim/specsim/sim/spectrograph"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector bundles spectrograph metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Bins              prometheus.Gauge
	ExposureTimes     prometheus.Gauge
	ZeroPointMin      prometheus.Gauge
	ZeroPointMax      prometheus.Gauge
	MonotonicWarnings prometheus.Counter
	SolvedCells       prometheus.Counter
	SNRQueries        *prometheus.CounterVec
	FilterRequests    *prometheus.CounterVec
}

// NewCollector registers spectrograph metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	var err error
	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Bins, "spectrograph_bins", "Number of wavelength bins in the loaded spectrograph table."},
		{&c.ExposureTimes, "spectrograph_exposure_times", "Number of tabulated exposure times."},
		{&c.ZeroPointMin, "spectrograph_zero_point_min", "Smallest tabulated zero point (mag)."},
		{&c.ZeroPointMax, "spectrograph_zero_point_max", "Largest tabulated zero point (mag)."},
	}
	for _, g := range gauges {
		*g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
	}

	c.MonotonicWarnings, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrograph_monotonic_warnings_total",
		Help: "Cells whose SNR decreased with exposure time at load.",
	}), "spectrograph_monotonic_warnings_total")
	if err != nil {
		return nil, err
	}
	c.SolvedCells, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrograph_solved_cells_total",
		Help: "Wavelength/exposure cells solved for zero point and sky noise.",
	}), "spectrograph_solved_cells_total")
	if err != nil {
		return nil, err
	}

	c.SNRQueries, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrograph_snr_queries_total",
		Help: "SNR lookups, labeled by outcome.",
	}, []string{"outcome"}), "spectrograph_snr_queries_total")
	if err != nil {
		return nil, err
	}
	c.FilterRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrograph_filter_requests_total",
		Help: "Synthetic filter transmission requests, labeled by outcome.",
	}, []string{"outcome"}), "spectrograph_filter_requests_total")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ObserveTable records the shape and zero-point range of a loaded table.
// Tables solved from SNR pairs also count their cells as solved.
func (c *Collector) ObserveTable(tbl *spectrograph.Table) {
	if c == nil || tbl == nil {
		return
	}
	nb, nt := tbl.NumBins(), tbl.NumTexpose()
	c.Bins.Set(float64(nb))
	c.ExposureTimes.Set(float64(nt))
	if !tbl.Solved() || nb == 0 {
		return
	}
	if tbl.HasInputSNR() {
		c.SolvedCells.Add(float64(nb * nt))
	}
	zp := make([]float64, 0, nb*nt)
	for l := 0; l < nb; l++ {
		for e := 0; e < nt; e++ {
			zp = append(zp, tbl.ZeroPoint(l, e))
		}
	}
	c.ZeroPointMin.Set(floats.Min(zp))
	c.ZeroPointMax.Set(floats.Max(zp))
}

// ObserveLoadError records monotonicity failures carried by a load error.
func (c *Collector) ObserveLoadError(err error) {
	if c == nil || err == nil {
		return
	}
	var serr *spectrograph.Error
	if errors.Is(err, spectrograph.ErrMonotonic) && errors.As(err, &serr) {
		c.MonotonicWarnings.Add(float64(serr.Count))
	}
}

// ObserveSNR counts one SNR lookup.
func (c *Collector) ObserveSNR(err error) {
	if c == nil {
		return
	}
	c.SNRQueries.WithLabelValues(outcome(err)).Inc()
}

// ObserveFilter counts one transmission request.
func (c *Collector) ObserveFilter(err error) {
	if c == nil {
		return
	}
	c.FilterRequests.WithLabelValues(outcome(err)).Inc()
}

// WriteTextfile writes all gathered metrics in the node-exporter textfile
// format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
