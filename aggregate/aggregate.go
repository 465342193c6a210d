// Package aggregate reads every sample directory matching a glob and folds
// the per-sample results into one matrix. Samples are visited in the order
// the glob yields them, one at a time.
package aggregate

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/carbocation/readquant"
	"github.com/carbocation/readquant/posmodel"
	"github.com/carbocation/readquant/quantparser"
	"go.uber.org/zap"
)

// Index names head the row-label column of each kind of matrix.
const (
	QuantIndex    = "target_id"
	QCIndex       = "sample"
	PositionIndex = "position"
)

// ThreePrimeBiasFile is where salmon keeps the observed 3' positional bias,
// relative to a sample directory.
const ThreePrimeBiasFile = "aux_info/obs3_pos.gz"

// Policy decides what a malformed sample does to the whole aggregation.
type Policy int

const (
	// PolicyDefault skips malformed samples when reading quantifications or
	// 3' bias, and aborts when reading QC.
	PolicyDefault Policy = iota
	PolicySkip
	PolicyAbort
)

var policyNames = map[string]Policy{
	"default": PolicyDefault,
	"skip":    PolicySkip,
	"abort":   PolicyAbort,
}

func (p Policy) String() string {
	for k, v := range policyNames {
		if v == p {
			return k
		}
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps "default", "skip" or "abort" to a Policy.
func ParsePolicy(name string) (Policy, error) {
	if p, exists := policyNames[strings.ToLower(name)]; exists {
		return p, nil
	}

	return PolicyDefault, fmt.Errorf("Policy %q not recognized. Valid policies: default, skip, abort", name)
}

func (p Policy) aborts(abortByDefault bool) bool {
	switch p {
	case PolicySkip:
		return false
	case PolicyAbort:
		return true
	}
	return abortByDefault
}

type Options struct {
	// Logger receives a warning for every skipped sample. Nil discards them.
	Logger *zap.Logger

	OnError Policy

	// Progress, if set, is called before each sample is read.
	Progress func(i int, path string)

	// FS enumerates and opens samples. Its zero value reads the local disk.
	FS readquant.FileSystem
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// fold calls read for every path matching pattern. A sample missing a file is
// always skipped. Any other failure is skipped or ends the fold according to
// the policy.
func fold(pattern string, opts Options, abortByDefault bool, read func(path string) error) error {
	log := opts.logger()

	paths, err := opts.FS.Glob(pattern)
	if err != nil {
		return fmt.Errorf("enumerating %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		log.Warn("no samples matched", zap.String("pattern", pattern))
	}

	for i, path := range paths {
		if opts.Progress != nil {
			opts.Progress(i, path)
		}

		err := read(path)
		if err == nil {
			continue
		}

		var missing *quantparser.MissingFileError
		switch {
		case errors.As(err, &missing):
			log.Warn("skipping sample with a missing file", zap.String("path", path), zap.String("file", missing.Path))
		case opts.OnError.aborts(abortByDefault):
			log.Error("aborting on sample", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("%s: %w", path, err)
		default:
			log.Warn("skipping malformed sample", zap.String("path", path), zap.Error(err))
		}
	}

	return nil
}

func newParser(sel quantparser.Selector, kind quantparser.Kind, opts Options) (*quantparser.Parser, error) {
	sel.Kind = kind
	if sel.Options.Opener == nil {
		sel.Options.Opener = opts.FS
	}
	return quantparser.New(sel)
}

// ReadQuants returns a features × samples matrix of the expression values of
// every sample directory matching pattern, keyed by the matched path.
// Samples without their quantification file are skipped with a warning.
func ReadQuants(pattern string, sel quantparser.Selector, opts Options) (*Matrix, error) {
	p, err := newParser(sel, quantparser.Quant, opts)
	if err != nil {
		return nil, err
	}

	m := NewMatrix(QuantIndex)
	err = fold(pattern, opts, false, func(path string) error {
		s, err := p.ReadQuant(path)
		if err != nil {
			return err
		}
		if s.Dropped > 0 {
			opts.logger().Warn("dropped non-finite values", zap.String("path", path), zap.Int("dropped", s.Dropped))
		}

		m.AddColumn(path, s.IDs, s.Values)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ReadQCs returns a samples × metrics matrix of the technical QC of every
// sample directory matching pattern. By default a malformed sample aborts the
// whole read and no matrix is returned.
func ReadQCs(pattern string, sel quantparser.Selector, opts Options) (*Matrix, error) {
	p, err := newParser(sel, quantparser.QC, opts)
	if err != nil {
		return nil, err
	}

	m := NewMatrix(QCIndex)
	err = fold(pattern, opts, true, func(path string) error {
		rec, err := p.ReadQC(path)
		if err != nil {
			return err
		}
		for _, file := range rec.Missing {
			opts.logger().Warn("QC file not found, its metrics are omitted", zap.String("path", path), zap.String("file", file))
		}

		m.AddRow(path, rec.Metrics, recordValues(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Read3PBias returns a positions × samples matrix of smoothed 3' bias
// curves. pattern is a sample directory glob ending in a slash, to which
// ThreePrimeBiasFile is appended; each column is keyed by the matched sample
// directory.
func Read3PBias(pattern string, opts Options) (*Matrix, error) {
	positions := make([]string, posmodel.CurvePoints)
	for i := range positions {
		positions[i] = strconv.Itoa(i)
	}

	m := NewMatrix(PositionIndex)
	err := fold(pattern+ThreePrimeBiasFile, opts, false, func(path string) error {
		model, err := posmodel.ReadFile(opts.FS, path)
		if errors.Is(err, fs.ErrNotExist) {
			return &quantparser.MissingFileError{Path: path, Err: err}
		} else if err != nil {
			return err
		}

		curve, err := posmodel.ThreePrimeCurve(model)
		if err != nil {
			return err
		}

		m.AddColumn(strings.TrimSuffix(path, ThreePrimeBiasFile), positions, curve)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func recordValues(rec *quantparser.QCRecord) []float64 {
	out := make([]float64, len(rec.Metrics))
	for i, metric := range rec.Metrics {
		out[i], _ = rec.Get(metric)
	}
	return out
}
