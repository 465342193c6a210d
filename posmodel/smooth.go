package posmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// ThreePrimeModel is the position, in encounter order, of the model that
	// describes 3' bias.
	ThreePrimeModel = 2

	// ThreePrimeBins is the number of positional bins in each model.
	ThreePrimeBins = 20

	// CurvePoints is the number of points in a smoothed curve.
	CurvePoints = 100

	rbfLengthScale = 50.0
	rbfNoise       = 1e-10
)

// ThreePrimeCurve fits a zero-mean Gaussian process with a fixed RBF kernel to
// the 3' bias model, spread over relative positions 0..100, and returns its
// posterior mean at CurvePoints evenly spaced positions over the same range.
func ThreePrimeCurve(m *Model) ([]float64, error) {
	y, ok := m.Vector(ThreePrimeModel)
	if !ok {
		return nil, fmt.Errorf("%w: expected at least %d models, found %d", ErrMalformedBinaryModel, ThreePrimeModel+1, len(m.Bins))
	}
	if len(y) != ThreePrimeBins {
		return nil, fmt.Errorf("%w: model %d has %d bins, expected %d", ErrMalformedBinaryModel, ThreePrimeModel, len(y), ThreePrimeBins)
	}

	x := floats.Span(make([]float64, ThreePrimeBins), 0, 100)
	xs := floats.Span(make([]float64, CurvePoints), 0, 100)

	return gpPredict(x, y, xs, rbfLengthScale, rbfNoise)
}

func rbf(a, b, lengthScale float64) float64 {
	d := (a - b) / lengthScale
	return math.Exp(-0.5 * d * d)
}

// gpPredict returns the posterior mean K(xs, x) (K(x, x) + noise*I)^-1 y.
func gpPredict(x, y, xs []float64, lengthScale, noise float64) ([]float64, error) {
	n := len(x)

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rbf(x[i], x[j], lengthScale)
			if i == j {
				v += noise
			}
			K.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(K); !ok {
		return nil, fmt.Errorf("kernel matrix is not positive definite")
	}

	alpha := mat.NewVecDense(n, nil)
	// A Condition error still carries a solution; the kernel is smooth enough
	// that it is expected to be poorly conditioned.
	var cond mat.Condition
	if err := chol.SolveVecTo(alpha, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil && !errors.As(err, &cond) {
		return nil, err
	}

	Kstar := mat.NewDense(len(xs), n, nil)
	for i := range xs {
		for j := range x {
			Kstar.Set(i, j, rbf(xs[i], x[j], lengthScale))
		}
	}

	out := mat.NewVecDense(len(xs), nil)
	out.MulVec(Kstar, alpha)

	return out.RawVector().Data, nil
}
