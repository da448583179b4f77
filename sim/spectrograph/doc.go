// Package spectrograph implements the spectrograph calibration and lookup
// engine used by the light-curve simulator to synthesize spectra.
//
// # Reading Guide
//
//   - table.go: Table, the per-wavelength-bin / per-exposure-time state
//   - loader.go: text table ingestion (INSTRUMENT, MAGREF_LIST, TEXPOSE_LIST, SPECBIN rows)
//   - solver.go: closed-form inversion of SNR pairs into zero point and sky noise
//   - validate.go: monotonicity and round-trip consistency checks
//   - query.go: SNR lookup and synthetic filter transmission
//   - calibration.go: ingestion of pre-solved tables through a CalibrationSource
//
// # Lifecycle
//
// A Table is built once per run, either from a text table (LoadText + Solve)
// or from a kcor calibration container (LoadCalibration). After Solve or
// LoadCalibration returns, the table is immutable and safe for concurrent
// queries.
//
// All failures are returned as *Error values wrapping one of the sentinel
// categories (ErrConfig, ErrPhysics, ErrMonotonic, ErrRange, ErrNotFound).
// The caller decides whether to abort; cmd/ aborts the process.
package spectrograph
