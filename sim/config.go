package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snana-sim/specsim/sim/kcor"
	"github.com/snana-sim/specsim/sim/observability"
	"github.com/snana-sim/specsim/sim/spectrograph"
)

// SpectrographConfig selects the spectrograph input. Exactly one of File
// (text table of SNR pairs) and FITSFile (pre-solved calibration file) is set.
type SpectrographConfig struct {
	File     string `yaml:"file"`      // text table path
	FITSFile string `yaml:"fits_file"` // kcor FITS path; $SNDATA_ROOT/kcor/ is searched as fallback
	Options  string `yaml:"options"`   // e.g. "rebin=2"; text path only
}

// NewSpectrographConfig creates a SpectrographConfig with all fields explicitly set.
func NewSpectrographConfig(file, fitsFile, options string) SpectrographConfig {
	return SpectrographConfig{File: file, FITSFile: fitsFile, Options: options}
}

// Validate checks that exactly one input is named.
func (c SpectrographConfig) Validate() error {
	file, fits := strings.TrimSpace(c.File), strings.TrimSpace(c.FITSFile)
	switch {
	case file == "" && fits == "":
		return fmt.Errorf("spectrograph: one of file or fits_file is required")
	case file != "" && fits != "":
		return fmt.Errorf("spectrograph: file and fits_file are mutually exclusive")
	case fits != "" && !ignoredOptions(c.Options):
		return fmt.Errorf("spectrograph: options %q apply to text tables only", c.Options)
	}
	return nil
}

func ignoredOptions(s string) bool {
	opts, err := spectrograph.ParseOptions(s)
	return err == nil && opts == spectrograph.DefaultOptions()
}

// LoadSpectrograph loads the configured table and returns it ready for
// queries. Text tables are parsed, solved and round-trip checked; FITS
// files are read as-is through open (kcor.Opener when nil). A FITS file
// without a spectrograph section returns (nil, nil). metrics may be nil.
func LoadSpectrograph(cfg SpectrographConfig, open spectrograph.Opener, metrics *observability.Collector) (*spectrograph.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tbl, err := loadSpectrograph(cfg, open)
	if err != nil {
		metrics.ObserveLoadError(err)
		return nil, err
	}
	metrics.ObserveTable(tbl)
	return tbl, nil
}

func loadSpectrograph(cfg SpectrographConfig, open spectrograph.Opener) (*spectrograph.Table, error) {
	if cfg.FITSFile != "" {
		if open == nil {
			open = kcor.Opener
		}
		tbl, used, err := spectrograph.LoadCalibration(cfg.FITSFile, open)
		if err != nil {
			return nil, err
		}
		if !used {
			logrus.Infof("No spectrograph in %s", cfg.FITSFile)
			return nil, nil
		}
		return tbl, nil
	}

	opts, err := spectrograph.ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}
	tbl, err := spectrograph.LoadText(cfg.File, opts)
	if err != nil {
		return nil, err
	}
	if err := tbl.Solve(); err != nil {
		return nil, err
	}
	if err := tbl.VerifyRoundTrip(); err != nil {
		return nil, err
	}
	return tbl, nil
}

// IsUnavailable reports whether err means the spectrograph input could not
// be found, as opposed to being invalid.
func IsUnavailable(err error) bool {
	return errors.Is(err, spectrograph.ErrNotFound)
}
