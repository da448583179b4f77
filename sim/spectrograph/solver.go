package spectrograph

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Solve inverts each SNR pair into an effective zero point and sky noise
// variance, checks the round trip, and freezes the table for queries.
//
// With f_i = 10^(-0.4(m_i - ZP)) and SNR_i = f_i / sqrt(skyVar + f_i):
//
//	ZP = 2.5 log10(TOP/BOT)
//	TOP = 10^(-0.4 m0) - 10^(-0.4 m1)
//	BOT = (10^(-0.4 m0)/SNR0)^2 - (10^(-0.4 m1)/SNR1)^2
//	skyVar = (f0/SNR0)^2 - f0
//
// Cells are independent.
func (t *Table) Solve() error {
	const fn = "Solve"
	if !t.HasInputSNR() {
		return fatalf(ErrConfig, fn, "no SNR pairs to solve", "table was read from a calibration file")
	}
	if t.solved {
		return fatalf(ErrConfig, fn, "table already solved", t.instrument)
	}

	t.allocDerived()
	nneg := 0
	for l := range t.bins {
		for e := range t.texpose {
			zp, sky, err := solvePair(t.magRef, t.snr[l][e])
			if err != nil {
				b := t.bins[l]
				logrus.Warnf("PRE-ABORT DUMP: %v; SNR[0]=%e SNR[1]=%e", err, t.snr[l][e][0], t.snr[l][e][1])
				return fatalf(ErrPhysics, fn,
					fmt.Sprintf("cannot solve ZP for LAM=%.1f to %.1f and t=%d sec", b.LamMin, b.LamMax, int(t.texpose[e])),
					"check SPECTROGRAPH")
			}
			t.zp[l][e] = zp
			t.skyVar[l][e] = sky
			if sky < 0 {
				nneg++
			}
			if err := t.checkCell(fn, l, e); err != nil {
				return err
			}
		}
		logrus.Debugf("solved lam bin %d (%.1f-%.1f A): ZP=%v SQSIGSKY=%v",
			l, t.bins[l].LamMin, t.bins[l].LamMax, t.zp[l], t.skyVar[l])
	}
	if nneg > 0 {
		logrus.Warnf("%d cells have negative SQSIGSKY (SNR pairs below the Poisson limit)", nneg)
	}
	return t.finalize()
}

// solvePair solves one (bin, exposure) cell.
func solvePair(magRef, snr [2]float64) (zp, skyVar float64, err error) {
	for iref := 0; iref < 2; iref++ {
		if !(snr[iref] > 0) || math.IsInf(snr[iref], 0) {
			return 0, 0, fmt.Errorf("SNR%d=%g must be positive and finite", iref, snr[iref])
		}
	}
	pow0 := math.Pow(10, -0.4*magRef[0])
	pow1 := math.Pow(10, -0.4*magRef[1])
	top := pow0 - pow1
	d0 := pow0 / snr[0]
	d1 := pow1 / snr[1]
	bot := d0*d0 - d1*d1
	if top <= 0 || bot <= 0 {
		return 0, 0, fmt.Errorf("BOT=%e and TOP=%e", bot, top)
	}
	zp = 2.5 * math.Log10(top/bot)
	f0 := magToFlux(magRef[0], zp)
	skyVar = (f0/snr[0])*(f0/snr[0]) - f0
	return zp, skyVar, nil
}
