package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// hermitianTolerance is the relative tolerance spec.md §9 specifies for the
// Laplacian symmetry check.
const hermitianTolerance = 1e-8

// Embedding is the output of SpectralEmbedder: eigenvectors sorted by
// ascending eigenvalue, median-filtered along time, plus their cumulative
// row norms.
type Embedding struct {
	Evecs  *mat.Dense // [n][n]
	Cnorm  [][]float64 // [n][n], Cnorm[i][j] = sqrt(sum_{k<=j} evecs[i][k]^2)
}

// NormalizedLaplacian computes I - D^-1/2 A D^-1/2 over affinity matrix A.
func NormalizedLaplacian(a [][]float64) *mat.Dense {
	n := len(a)
	deg := rowSums(a)
	invSqrt := make([]float64, n)
	for i, d := range deg {
		if d > 0 {
			invSqrt[i] = 1 / math.Sqrt(d)
		}
	}

	l := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -invSqrt[i] * a[i][j] * invSqrt[j]
			if i == j {
				v += 1
			}
			l.Set(i, j, v)
		}
	}
	return l
}

// checkHermitian verifies L is symmetric within hermitianTolerance relative
// to the matrix's own scale, failing with NotHermitianError otherwise, per
// spec.md §4.5 and §9.
func checkHermitian(l *mat.Dense) error {
	n, _ := l.Dims()
	maxVal, maxDev := 0.0, 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := l.At(i, j)
			if math.Abs(v) > maxVal {
				maxVal = math.Abs(v)
			}
			dev := math.Abs(v - l.At(j, i))
			if dev > maxDev {
				maxDev = dev
			}
		}
	}
	scale := maxVal
	if scale == 0 {
		scale = 1
	}
	if maxDev/scale > hermitianTolerance {
		return &NotHermitianError{MaxDeviation: maxDev, Tolerance: hermitianTolerance}
	}
	return nil
}

// Embed computes the spectral embedding of affinity matrix a: the
// normalized Laplacian's eigenvectors (symmetric solver, per spec.md §9 —
// "non-symmetric solvers will return complex eigenvectors and break
// downstream clustering"), sorted ascending by eigenvalue, median-filtered
// along time with kernel (9,1), with cumulative row norms.
func Embed(a [][]float64) (*Embedding, error) {
	n := len(a)
	l := NormalizedLaplacian(a)
	if err := checkHermitian(l); err != nil {
		return nil, err
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, l.At(i, j))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, &ClusteringError{K: 0, Err: errEigenFailed}
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	evecs := mat.NewDense(n, n, nil)
	for newCol, oldCol := range order {
		for row := 0; row < n; row++ {
			evecs.Set(row, newCol, vectors.At(row, oldCol))
		}
	}

	medianFilterColumnsInPlace(evecs, 9)

	cnorm := make([][]float64, n)
	for i := 0; i < n; i++ {
		cnorm[i] = make([]float64, n)
		var sumSq float64
		for j := 0; j < n; j++ {
			v := evecs.At(i, j)
			sumSq += v * v
			cnorm[i][j] = math.Sqrt(sumSq)
		}
	}

	return &Embedding{Evecs: evecs, Cnorm: cnorm}, nil
}

var errEigenFailed = errEigen{}

type errEigen struct{}

func (errEigen) Error() string { return "symmetric eigendecomposition did not converge" }

// medianFilterColumnsInPlace applies a median filter of length kernelLen
// along each column (the time axis), per spec.md §4.5's kernel (9,1).
func medianFilterColumnsInPlace(m *mat.Dense, kernelLen int) {
	rows, cols := m.Dims()
	half := kernelLen / 2
	orig := mat.DenseCopyOf(m)
	window := make([]float64, 0, kernelLen)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			window = window[:0]
			for d := -half; d <= half; d++ {
				rr := r + d
				if rr >= 0 && rr < rows {
					window = append(window, orig.At(rr, c))
				}
			}
			m.Set(r, c, median(append([]float64(nil), window...)))
		}
	}
}
