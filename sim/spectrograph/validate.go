package spectrograph

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// roundTripTolerance is the allowed |SNR_in/SNR_check - 1|.
const roundTripTolerance = 0.001

// checkMonotonic reports whether both reference SNR curves of bin l are
// non-decreasing from exposure index e-1 to e. A failure is logged as a
// warning; the loader fails once all rows have been read.
func (t *Table) checkMonotonic(l, e int) bool {
	if e == 0 {
		return true
	}
	for iref := 0; iref < 2; iref++ {
		prev, cur := t.snr[l][e-1][iref], t.snr[l][e][iref]
		if cur >= prev {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"lam_index": l,
			"lam_avg":   t.bins[l].LamAvg,
		}).Warnf("SNR%d is not monotonic: SNR%d(Texpose=%.2f)=%f (t=%d) > SNR%d(Texpose=%.2f)=%f (t=%d); check SPECTROGRAPH table",
			iref, iref, t.texpose[e-1], prev, e-1, iref, t.texpose[e], cur, e)
		return false
	}
	return true
}

// VerifyRoundTrip re-evaluates every solved cell and checks that the
// input SNR pair is reproduced within 0.1%.
func (t *Table) VerifyRoundTrip() error {
	const fn = "VerifyRoundTrip"
	if !t.HasInputSNR() {
		return fatalf(ErrConfig, fn, "table has no input SNR pairs", "tables read from a calibration file cannot be verified")
	}
	if !t.solved {
		return fatalf(ErrConfig, fn, "table is not solved", "call Solve first")
	}
	for l := range t.bins {
		for e := range t.texpose {
			if err := t.checkCell(fn, l, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Table) checkCell(fn string, l, e int) error {
	zp, sky := t.zp[l][e], t.skyVar[l][e]
	in := t.snr[l][e]
	var check, ratio [2]float64
	for iref := 0; iref < 2; iref++ {
		check[iref] = forwardSNR(magToFlux(t.magRef[iref], zp), sky)
		ratio[iref] = in[iref] / check[iref]
	}
	if withinTolerance(ratio[0]) && withinTolerance(ratio[1]) {
		return nil
	}
	logrus.Warnf("PRE-ABORT DUMP: SNR0(input/check) = %f/%f = %f, SNR1(input/check) = %f/%f = %f, lambda bin %f to %f",
		in[0], check[0], ratio[0], in[1], check[1], ratio[1], t.bins[l].LamMin, t.bins[l].LamMax)
	return fatalf(ErrPhysics, fn, "problem computing ZP and SQSIGSKY",
		fmt.Sprintf("ZP=%f SQSIGSKY=%f (l=%d, Texpose=%.2f)", zp, sky, l, t.texpose[e]))
}

func withinTolerance(ratio float64) bool {
	// written so that NaN fails
	return math.Abs(ratio-1) <= roundTripTolerance
}

// forwardSNR is the noise model: Poisson source noise plus sky variance,
// both in photo-electrons.
func forwardSNR(flux, skyVar float64) float64 {
	return flux / math.Sqrt(skyVar+flux)
}

// magToFlux converts a magnitude to photo-electrons for zero point zp.
func magToFlux(mag, zp float64) float64 {
	return math.Pow(10, -0.4*(mag-zp))
}
