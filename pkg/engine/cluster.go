package engine

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	kmeansMaxIter = 300
	kmeansNInit   = 20
	kmeansSeed    = 0
)

// ClusterResult is the selected cluster count and per-beat labels.
type ClusterResult struct {
	K      int
	Labels []int
}

// SelectClusters implements spec.md §4.6: v2 (default) scans k descending
// from 48 to 3 and picks the fitness-maximizing k; v1 (deprecated) scans
// even k ascending from 4 to 62. If cfg.Clusters is positive, clustering
// still runs once at that fixed k (no selection).
func SelectClusters(evecs [][]float64, cnorm [][]float64, fixedK int, useV1 bool) (*ClusterResult, error) {
	n := len(evecs)
	if fixedK > 0 {
		labels, err := kmeansLabels(normalizedEmbedding(evecs, cnorm, fixedK), fixedK)
		if err != nil {
			return nil, err
		}
		return &ClusterResult{K: fixedK, Labels: labels}, nil
	}
	if useV1 {
		return selectClustersV1(evecs, cnorm, n)
	}
	return selectClustersV2(evecs, cnorm, n)
}

// selectClustersV2 is the default selector: descending k, fitness =
// k*silhouette*segRatio*orphanPenalty. Per the resolved Open Question in
// SPEC_FULL.md §4, ties keep whichever k triggers last under `>=` during
// the descending scan — the literal behavior of the reference
// implementation, not merely "highest k wins".
func selectClustersV2(evecs, cnorm [][]float64, n int) (*ClusterResult, error) {
	maxK := min(48, n-1)
	if maxK < 3 {
		maxK = 3
	}

	var best *ClusterResult
	bestFitness := math.Inf(-1)

	for k := maxK; k >= 3; k-- {
		if k >= n {
			continue
		}
		x := normalizedEmbedding(evecs, cnorm, k)
		labels, err := kmeansLabels(x, k)
		if err != nil {
			continue
		}
		s, err := silhouetteAverage(x, labels)
		if err != nil {
			continue
		}
		segCount, minSeg := segmentStats(labels)
		ratio := float64(segCount) / float64(k)
		orphanPenalty := 1.0
		if minSeg == 1 {
			orphanPenalty = 0.8
		}
		fitness := float64(k) * s * ratio * orphanPenalty

		if fitness >= bestFitness {
			bestFitness = fitness
			best = &ClusterResult{K: k, Labels: labels}
		}
	}

	if best == nil {
		return nil, &ClusteringError{K: 0, Err: errNoValidK}
	}
	return best, nil
}

// selectClustersV1 is the deprecated selector: scans even k in [4,64),
// picking the largest k whose segments-per-cluster ratio is at least
// min(maxObservedRatio, 4).
func selectClustersV1(evecs, cnorm [][]float64, n int) (*ClusterResult, error) {
	type candidate struct {
		k      int
		labels []int
		ratio  float64
	}
	var candidates []candidate
	maxRatio := 0.0

	for k := 4; k < 64; k += 2 {
		if k >= n {
			break
		}
		x := normalizedEmbedding(evecs, cnorm, k)
		labels, err := kmeansLabels(x, k)
		if err != nil {
			continue
		}
		segCount, _ := segmentStats(labels)
		ratio := float64(segCount) / float64(k)
		if ratio > maxRatio {
			maxRatio = ratio
		}
		candidates = append(candidates, candidate{k, labels, ratio})
	}

	if len(candidates) == 0 {
		return nil, &ClusteringError{K: 0, Err: errNoValidK}
	}

	threshold := math.Min(maxRatio, 4)
	best := candidates[0]
	for _, c := range candidates {
		if c.ratio >= threshold && c.k >= best.k {
			best = c
		}
	}
	return &ClusterResult{K: best.k, Labels: best.labels}, nil
}

type errNoValidKType struct{}

func (errNoValidKType) Error() string { return "no candidate k produced a valid clustering" }

var errNoValidK = errNoValidKType{}

// normalizedEmbedding computes X = evecs[:, :k] / Cnorm[:, k-1], row-wise
// normalizing by the k-th cumulative norm.
func normalizedEmbedding(evecs, cnorm [][]float64, k int) [][]float64 {
	n := len(evecs)
	x := make([][]float64, n)
	for i := 0; i < n; i++ {
		x[i] = make([]float64, k)
		denom := cnorm[i][k-1]
		if denom == 0 {
			denom = 1
		}
		for j := 0; j < k; j++ {
			x[i][j] = evecs[i][j] / denom
		}
	}
	return x
}

// kmeansLabels runs Lloyd's algorithm with kmeansNInit random restarts,
// each for at most kmeansMaxIter iterations, keeping the lowest-inertia
// result, deterministically seeded.
func kmeansLabels(x [][]float64, k int) ([]int, error) {
	n := len(x)
	if n == 0 || k <= 0 || k > n {
		return nil, &ClusteringError{K: k, Err: errNoValidK}
	}

	rng := rand.New(rand.NewPCG(kmeansSeed, kmeansSeed))

	var bestLabels []int
	bestInertia := math.Inf(1)

	for init := 0; init < kmeansNInit; init++ {
		centers := kmeansPlusPlusInit(x, k, rng)
		labels := make([]int, n)
		for iter := 0; iter < kmeansMaxIter; iter++ {
			changed := false
			for i, p := range x {
				c := nearestCenter(p, centers)
				if labels[i] != c {
					labels[i] = c
					changed = true
				}
			}
			centers = recomputeCenters(x, labels, k, len(x[0]))
			if !changed && iter > 0 {
				break
			}
		}
		inertia := totalInertia(x, labels, centers)
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = append([]int(nil), labels...)
		}
	}

	return bestLabels, nil
}

func kmeansPlusPlusInit(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), x[rng.IntN(n)]...))

	dist := make([]float64, n)
	for len(centers) < k {
		var total float64
		for i, p := range x {
			d := sqEuclidean(p, centers[len(centers)-1])
			if len(centers) == 1 || d < dist[i] {
				dist[i] = d
			}
			total += dist[i]
		}
		if total <= 0 {
			centers = append(centers, append([]float64(nil), x[rng.IntN(n)]...))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		chosen := n - 1
		for i, d := range dist {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centers = append(centers, append([]float64(nil), x[chosen]...))
	}
	return centers
}

func nearestCenter(p []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		d := sqEuclidean(p, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func recomputeCenters(x [][]float64, labels []int, k, dim int) [][]float64 {
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, p := range x {
		c := labels[i]
		floats.Add(sums[c], p)
		counts[c]++
	}
	centers := make([][]float64, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			centers[c] = append([]float64(nil), x[c%len(x)]...)
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
		centers[c] = sums[c]
	}
	return centers
}

func totalInertia(x [][]float64, labels []int, centers [][]float64) float64 {
	var sum float64
	for i, p := range x {
		sum += sqEuclidean(p, centers[labels[i]])
	}
	return sum
}

// silhouetteAverage computes the mean silhouette coefficient over x/labels;
// per spec.md §9, a degenerate labeling (fewer than 2 distinct clusters)
// is undefined and reported as a ClusteringError.
func silhouetteAverage(x [][]float64, labels []int) (float64, error) {
	n := len(x)
	distinct := map[int]bool{}
	for _, l := range labels {
		distinct[l] = true
	}
	if len(distinct) < 2 {
		return 0, &ClusteringError{K: len(distinct), Err: errDegenerateLabeling}
	}

	var total float64
	for i := 0; i < n; i++ {
		a := meanIntraClusterDist(x, labels, i)
		b := minInterClusterDist(x, labels, i)
		s := 0.0
		if m := math.Max(a, b); m > 0 {
			s = (b - a) / m
		}
		total += s
	}
	return total / float64(n), nil
}

type errDegenerateLabelingType struct{}

func (errDegenerateLabelingType) Error() string { return "fewer than 2 distinct labels" }

var errDegenerateLabeling = errDegenerateLabelingType{}

func meanIntraClusterDist(x [][]float64, labels []int, i int) float64 {
	var dists []float64
	for j := range x {
		if j != i && labels[j] == labels[i] {
			dists = append(dists, math.Sqrt(sqEuclidean(x[i], x[j])))
		}
	}
	if len(dists) == 0 {
		return 0
	}
	return stat.Mean(dists, nil)
}

func minInterClusterDist(x [][]float64, labels []int, i int) float64 {
	byCluster := map[int][]float64{}
	for j := range x {
		if labels[j] != labels[i] {
			byCluster[labels[j]] = append(byCluster[labels[j]], math.Sqrt(sqEuclidean(x[i], x[j])))
		}
	}
	best := math.Inf(1)
	for _, dists := range byCluster {
		avg := stat.Mean(dists, nil)
		if avg < best {
			best = avg
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// segmentStats computes the number of maximal same-label runs and the
// shortest run length.
func segmentStats(labels []int) (segCount int, minSeg int) {
	if len(labels) == 0 {
		return 0, 0
	}
	segCount = 1
	runLen := 1
	minSeg = math.MaxInt32
	for i := 1; i < len(labels); i++ {
		if labels[i] != labels[i-1] {
			segCount++
			if runLen < minSeg {
				minSeg = runLen
			}
			runLen = 1
		} else {
			runLen++
		}
	}
	if runLen < minSeg {
		minSeg = runLen
	}
	return segCount, minSeg
}
