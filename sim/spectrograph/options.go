package spectrograph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options are the comma-separated key=value settings passed alongside
// the table file name.
type Options struct {
	Rebin int // merge this many consecutive SPECBIN rows (1 = off)
}

// DefaultOptions returns options with rebinning disabled.
func DefaultOptions() Options {
	return Options{Rebin: 1}
}

// ParseOptions parses an options string such as "rebin=2".
// Empty, NONE, NULL and BLANK mean no options. Unknown keys are ignored.
func ParseOptions(s string) (Options, error) {
	opts := DefaultOptions()
	if ignoreOption(s) {
		return opts, nil
	}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, val, _ := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "rebin":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return opts, fatalf(ErrConfig, "ParseOptions",
					fmt.Sprintf("invalid rebin value %q", val), "rebin must be a positive integer")
			}
			opts.Rebin = n
			logrus.Infof("Spectrograph option: rebin wavelength by %d", n)
		default:
			logrus.Warnf("Spectrograph option %q not recognized; ignored", key)
		}
	}
	return opts, nil
}

func ignoreOption(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE", "NULL", "BLANK":
		return true
	}
	return false
}
