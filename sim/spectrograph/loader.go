package spectrograph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Text table keys.
const (
	keyInstrument = "INSTRUMENT:"
	keyMagRef     = "MAGREF_LIST:"
	keyTexpose    = "TEXPOSE_LIST:"
	keySpecBin    = "SPECBIN:"

	// ncolNoSNR counts LAMMIN, LAMMAX, LAMSIGMA ahead of the SNR pairs.
	ncolNoSNR = 3
)

var requiredKeys = [...]string{keyInstrument, keyMagRef, keyTexpose}

// LoadText reads a spectrograph text table from path. The returned table
// holds the raw SNR pairs; call Solve before querying it.
func LoadText(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		kind := ErrConfig
		if errors.Is(err, fs.ErrNotExist) {
			kind = ErrNotFound
		}
		return nil, &Error{Severity: SeverityFatal, Func: "LoadText",
			Msg1: "could not open SPECTROGRAPH table file", Msg2: path, Err: fmt.Errorf("%w: %v", kind, err)}
	}
	defer func() { _ = f.Close() }()

	logrus.Infof("Open spectrograph table %s", path)
	return ReadText(f, path, opts)
}

// ReadText parses a spectrograph text table. name is only used in diagnostics.
func ReadText(r io.Reader, name string, opts Options) (*Table, error) {
	const fn = "ReadText"

	if opts.Rebin < 1 {
		opts.Rebin = 1
	}
	tk, err := newTokenizer(r)
	if err != nil {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("read error: %v", err), name)
	}

	nrow := tk.count(keySpecBin)
	if nrow > MaxLambdaBins {
		return nil, fatalf(ErrConfig, fn,
			fmt.Sprintf("%d SPECBIN rows exceeds MaxLambdaBins=%d", nrow, MaxLambdaBins),
			"check spectrograph file "+name)
	}

	var (
		found      [len(requiredKeys)]bool
		instrument = "UNKNOWN"
		magRef     = [2]float64{99, 99}
		texpose    []float64
		tbl        *Table
		merge      = rebinner{n: opts.Rebin}
		nerr       int
		raw        int
	)

	for {
		tok, line, ok := tk.next()
		if !ok {
			break
		}
		if isComment(tok) {
			tk.skipLine()
			continue
		}

		switch tok {
		case keyInstrument, keyMagRef, keyTexpose:
			if tbl != nil {
				return nil, fatalf(ErrConfig, fn,
					fmt.Sprintf("header key %s found after SPECBIN rows (line %d)", tok, line),
					"header keys must precede all SPECBIN rows in "+name)
			}
		}

		switch tok {
		case keyInstrument:
			v, _, ok := tk.next()
			if !ok {
				return nil, fatalf(ErrConfig, fn, "missing value for "+keyInstrument, name)
			}
			instrument = v
			found[0] = true

		case keyMagRef:
			vals, err := tk.floats(2)
			if err != nil {
				return nil, fatalf(ErrConfig, fn, fmt.Sprintf("bad %s at line %d: %v", keyMagRef, line, err), name)
			}
			magRef = [2]float64{vals[0], vals[1]}
			found[1] = true

		case keyTexpose:
			texpose, err = parseTexposeList(tk.restOfLine())
			if err != nil {
				return nil, err
			}
			found[2] = true

		case keySpecBin:
			if tbl == nil {
				if missing := missingKeys(found); len(missing) > 0 {
					return nil, fatalf(ErrConfig, fn,
						"found SPECBIN key before required header keys",
						fmt.Sprintf("missing %s in %s", strings.Join(missing, " "), name))
				}
				tbl = newTable(instrument, magRef, texpose, nrow/opts.Rebin)
				tbl.rebin = opts.Rebin
			}
			ncol := ncolNoSNR + 2*len(texpose)
			vals, err := tk.floats(ncol)
			if err != nil {
				return nil, fatalf(ErrConfig, fn,
					fmt.Sprintf("malformed SPECBIN row at line %d: %v", line, err),
					fmt.Sprintf("expect %d values (LAMMIN LAMMAX LAMSIGMA + 2 SNR per TEXPOSE)", ncol))
			}
			raw++
			row, complete := merge.add(vals)
			if !complete {
				continue
			}
			n, err := tbl.addRow(row)
			if err != nil {
				return nil, err
			}
			nerr += n
		}
	}

	if tbl == nil {
		if missing := missingKeys(found); len(missing) > 0 {
			return nil, fatalf(ErrConfig, fn, "missing required header keys: "+strings.Join(missing, " "), name)
		}
		return nil, fatalf(ErrConfig, fn, "no SPECBIN rows found", name)
	}
	tbl.rawBinCount = raw
	if merge.members > 0 {
		logrus.Warnf("Spectrograph rebin=%d: dropped %d trailing SPECBIN rows of incomplete group", opts.Rebin, merge.members)
	}

	if nerr > 0 {
		err := fatalf(ErrMonotonic, fn,
			fmt.Sprintf("found %d errors for which", nerr),
			"SNR(Texpose) is NOT monotonically increasing")
		err.Count = nerr
		return nil, err
	}
	if len(tbl.bins) == 0 {
		return nil, fatalf(ErrConfig, fn,
			fmt.Sprintf("no wavelength bins after rebin=%d of %d rows", opts.Rebin, raw), name)
	}

	logrus.Infof("Read %d LAMBDA bins from %.0f to %.0f A (instrument %s)",
		len(tbl.bins), tbl.LamMin(), tbl.LamMax(), tbl.instrument)
	logrus.Infof("Read %d TEXPOSE values: %v sec", len(tbl.texpose), tbl.texpose)
	return tbl, nil
}

// addRow appends a (possibly merged) SPECBIN row and returns the number
// of monotonicity failures it introduced.
func (t *Table) addRow(x []float64) (int, error) {
	if x[1] < x[0] {
		return 0, fatalf(ErrConfig, "addRow",
			fmt.Sprintf("LAMMAX=%f < LAMMIN=%f", x[1], x[0]),
			"check LAMBDA binning in SPECTROGRAPH file")
	}
	nt := len(t.texpose)
	snr := make([][2]float64, nt)
	j := ncolNoSNR
	for e := 0; e < nt; e++ {
		snr[e] = [2]float64{x[j], x[j+1]}
		j += 2
	}
	t.appendBin(newBin(x[0], x[1], x[2]), snr)

	l := len(t.bins) - 1
	nerr := 0
	for e := 0; e < nt; e++ {
		if !t.checkMonotonic(l, e) {
			nerr++
		}
	}
	return nerr, nil
}

// parseTexposeList reads exposure times up to a comment token.
func parseTexposeList(tokens []string) ([]float64, error) {
	const fn = "parseTexposeList"
	var out []float64
	for _, tok := range tokens {
		if isComment(tok) {
			break
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fatalf(ErrConfig, fn, fmt.Sprintf("invalid TEXPOSE value %q", tok), "check TEXPOSE_LIST")
		}
		if n := len(out); n > 0 && v <= out[n-1] {
			return nil, fatalf(ErrConfig, fn, "TEXPOSE_LIST must be in increasing order",
				fmt.Sprintf("TEXPOSE_LIST[%d,%d] = %.2f , %.2f", n-1, n, out[n-1], v))
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fatalf(ErrConfig, fn, "TEXPOSE_LIST is empty", "need at least one exposure time")
	}
	if len(out) > MaxExposureTimes {
		return nil, fatalf(ErrConfig, fn, fmt.Sprintf("found %d TEXPOSE_LIST values", len(out)),
			fmt.Sprintf("but MaxExposureTimes=%d", MaxExposureTimes))
	}
	return out, nil
}

func missingKeys(found [len(requiredKeys)]bool) []string {
	var missing []string
	for i, ok := range found {
		if !ok {
			missing = append(missing, requiredKeys[i])
		}
	}
	return missing
}

func isComment(tok string) bool {
	switch tok[0] {
	case '#', '!', '%':
		return true
	}
	return false
}

// rebinner merges groups of n consecutive rows: LAMMIN from the first row,
// LAMMAX from the last, LAMSIGMA averaged, SNR summed in quadrature.
type rebinner struct {
	n        int
	members  int
	vals     []float64
	sigmaSum float64
}

func (r *rebinner) add(x []float64) ([]float64, bool) {
	if r.n <= 1 {
		return x, true
	}
	if r.members == 0 {
		r.vals = make([]float64, len(x))
		r.vals[0] = x[0]
		r.sigmaSum = 0
	}
	r.vals[1] = x[1]
	r.sigmaSum += x[2]
	for j := ncolNoSNR; j < len(x); j++ {
		r.vals[j] = math.Hypot(r.vals[j], x[j])
	}
	r.members++
	if r.members < r.n {
		return nil, false
	}
	out := r.vals
	out[2] = r.sigmaSum / float64(r.n)
	r.vals = nil
	r.members = 0
	return out, true
}

// tokenizer walks whitespace-separated tokens while remembering line
// boundaries, so keys may consume the rest of their line.
type tokenizer struct {
	lines  [][]string
	lineNo []int
	li, ti int
}

func newTokenizer(r io.Reader) (*tokenizer, error) {
	tk := &tokenizer{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		tk.lines = append(tk.lines, fields)
		tk.lineNo = append(tk.lineNo, n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tk, nil
}

// count returns how many times key appears outside comments.
func (tk *tokenizer) count(key string) int {
	n := 0
	for _, fields := range tk.lines {
		for _, f := range fields {
			if isComment(f) {
				break
			}
			if f == key {
				n++
			}
		}
	}
	return n
}

func (tk *tokenizer) next() (string, int, bool) {
	for tk.li < len(tk.lines) && tk.ti >= len(tk.lines[tk.li]) {
		tk.li++
		tk.ti = 0
	}
	if tk.li >= len(tk.lines) {
		return "", 0, false
	}
	tok := tk.lines[tk.li][tk.ti]
	tk.ti++
	return tok, tk.lineNo[tk.li], true
}

// restOfLine returns the unread tokens of the current line and moves to the next line.
func (tk *tokenizer) restOfLine() []string {
	if tk.li >= len(tk.lines) {
		return nil
	}
	var rest []string
	if tk.ti < len(tk.lines[tk.li]) {
		rest = tk.lines[tk.li][tk.ti:]
	}
	tk.li++
	tk.ti = 0
	return rest
}

func (tk *tokenizer) skipLine() {
	_ = tk.restOfLine()
}

// floats reads the next n tokens as finite numbers, crossing lines as needed.
func (tk *tokenizer) floats(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		tok, _, ok := tk.next()
		if !ok {
			return nil, fmt.Errorf("unexpected end of file after %d of %d values", i, n)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d of %d is not a number: %q", i+1, n, tok)
		}
		out[i] = v
	}
	return out, nil
}
