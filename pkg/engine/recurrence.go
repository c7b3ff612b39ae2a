package engine

import (
	"math"
	"sort"
)

// recurrenceWidth excludes self-similarity links between frames closer
// than this many beats — "masking width 3" in spec.md §4.4, preventing a
// beat from recurring with its own neighborhood within the same bar.
const recurrenceWidth = 3

// Symmetrize produces M' where M'[i,j] = M'[j,i] = (M[i,j]+M[j,i])/2, per
// spec.md §4.4 and the S1-S3 testable scenarios in spec.md §8. It fails
// with ShapeError on non-square input.
func Symmetrize(m [][]float64) ([][]float64, error) {
	n := len(m)
	for _, row := range m {
		if len(row) != n {
			return nil, &ShapeError{Rows: n, Cols: len(row)}
		}
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := (m[i][j] + m[j][i]) / 2
			out[i][j] = v
			out[j][i] = v
		}
	}
	return out, nil
}

// RecurrenceMatrix builds a width-masked, symmetric affinity matrix over
// beat-synchronous chroma, following librosa's `recurrence_matrix(...,
// mode='affinity', sym=True)` shape: a k-nearest-neighbor connectivity
// graph (OR'd symmetric), converted to Gaussian-kernel weights using a
// global bandwidth derived from the neighbor distances. The returned matrix
// has also been through timeLagMedianFilter, which does not preserve
// symmetry; pass it through Symmetrize before combining it.
func RecurrenceMatrix(chromaSync [][]float64) [][]float64 {
	n := len(chromaSync)
	if n == 0 {
		return nil
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := sqEuclidean(chromaSync[i], chromaSync[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	k := 2 * int(math.Ceil(math.Log2(float64(n)+1)))
	if k < 1 {
		k = 1
	}

	neighbors := make([][]bool, n)
	var allNeighborDists []float64
	for i := range neighbors {
		neighbors[i] = make([]bool, n)
		type cand struct {
			j int
			d float64
		}
		cands := make([]cand, 0, n)
		for j := 0; j < n; j++ {
			if j == i || absInt(i-j) < recurrenceWidth {
				continue
			}
			cands = append(cands, cand{j, dist[i][j]})
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].d < cands[b].d })
		for idx := 0; idx < k && idx < len(cands); idx++ {
			neighbors[i][cands[idx].j] = true
			allNeighborDists = append(allNeighborDists, cands[idx].d)
		}
	}

	sigma := median(append([]float64(nil), allNeighborDists...))
	if sigma <= 0 {
		sigma = 1
	}

	R := make([][]float64, n)
	for i := range R {
		R[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if neighbors[i][j] || neighbors[j][i] {
				w := math.Exp(-dist[i][j] / sigma)
				R[i][j] = w
				R[j][i] = w
			}
		}
	}

	return timeLagMedianFilter(R, 7)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sqEuclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// timeLagMedianFilter applies a median filter of size (1, kernelLen) along
// the time-lag diagonal: each row is shifted so a fixed lag sits on a
// single column, filtered along that axis, then shifted back. This is
// librosa's `timelag_filter` idiom, which avoids smearing across unrelated
// lag offsets the way a naive row-wise median filter would.
func timeLagMedianFilter(R [][]float64, kernelLen int) [][]float64 {
	n := len(R)
	if n == 0 {
		return R
	}
	lagged := make([][]float64, n)
	for i := range lagged {
		lagged[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			lagged[i][j] = R[i][(j+i)%n]
		}
	}

	half := kernelLen / 2
	filtered := make([][]float64, n)
	for i := range filtered {
		filtered[i] = make([]float64, n)
	}
	window := make([]float64, 0, kernelLen)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			window = window[:0]
			for d := -half; d <= half; d++ {
				ii := i + d
				if ii >= 0 && ii < n {
					window = append(window, lagged[ii][j])
				}
			}
			filtered[i][j] = median(append([]float64(nil), window...))
		}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][(j+i)%n] = filtered[i][j]
		}
	}
	return out
}

// PathSimilarity builds the tri-diagonal path matrix from MFCC
// successive-frame similarity, per spec.md §4.4: d_i = sum_k
// (Msync[k,i+1]-Msync[k,i])^2, sigma = median(d), s_i = exp(-d_i/sigma),
// placed on the super- and sub-diagonals.
func PathSimilarity(mfccSync [][]float64) [][]float64 {
	n := len(mfccSync)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	if n < 2 {
		return out
	}

	d := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		d[i] = sqEuclidean(mfccSync[i], mfccSync[i+1])
	}
	sigma := median(append([]float64(nil), d...))
	if sigma <= 0 {
		sigma = 1
	}

	for i := 0; i < n-1; i++ {
		s := math.Exp(-d[i] / sigma)
		out[i][i+1] = s
		out[i+1][i] = s
	}
	return out
}

// CombineAffinity blends the recurrence and path matrices per spec.md
// §4.4: mu = (deg_path . (deg_path + deg_rec)) / sum((deg_path+deg_rec)^2);
// A = mu*R_sym + (1-mu)*R_path.
func CombineAffinity(rSym, rPath [][]float64) [][]float64 {
	n := len(rSym)
	degRec := rowSums(rSym)
	degPath := rowSums(rPath)

	var num, den float64
	for i := 0; i < n; i++ {
		combined := degPath[i] + degRec[i]
		num += degPath[i] * combined
		den += combined * combined
	}
	mu := 0.5
	if den > 0 {
		mu = num / den
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = mu*rSym[i][j] + (1-mu)*rPath[i][j]
		}
	}
	return out
}

func rowSums(m [][]float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		var s float64
		for _, v := range row {
			s += v
		}
		out[i] = s
	}
	return out
}
