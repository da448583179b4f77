// Package sim wires the spectrograph calibration engine for a simulation run.
//
// # Reading Guide
//
//   - config.go: SpectrographConfig and LoadSpectrograph (text or FITS input)
//   - rng.go: PartitionedRNG, deterministic per-subsystem random streams
//
// # Architecture
//
// The engine lives in sub-packages:
//   - sim/spectrograph/: table loader, solver, validator and query engine
//   - sim/kcor/: FITS calibration files (read, write, wavelength index table)
//   - sim/synth/: noisy spectra drawn from a solved table
//   - sim/observability/: Prometheus metrics for loads and queries
//   - sim/report/: PNG plots and the PDF calibration summary
//
// A loaded table is immutable, so any number of goroutines may query it.
package sim
