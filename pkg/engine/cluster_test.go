package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockEvecs builds a toy embedding with three well-separated blocks along
// orthogonal axes, so k-means should recover exactly 3 clusters regardless
// of the selector's scan range.
func blockEvecs(perBlock int) ([][]float64, [][]float64) {
	n := perBlock * 3
	evecs := make([][]float64, n)
	cnorm := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 3)
		row[i/perBlock] = 10
		evecs[i] = row
		cnorm[i] = []float64{10, 10, 10}
	}
	return evecs, cnorm
}

func TestSelectClustersFixedK(t *testing.T) {
	evecs, cnorm := blockEvecs(5)
	res, err := SelectClusters(evecs, cnorm, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.K)
	assert.Len(t, res.Labels, 15)
}

func TestKmeansLabelsRecoversBlocks(t *testing.T) {
	evecs, _ := blockEvecs(6)
	labels, err := kmeansLabels(evecs, 3)
	require.NoError(t, err)
	require.Len(t, labels, 18)

	for block := 0; block < 3; block++ {
		first := labels[block*6]
		for i := 1; i < 6; i++ {
			assert.Equal(t, first, labels[block*6+i], "block %d should be a single cluster", block)
		}
	}
}

func TestSilhouetteAverageRejectsDegenerateLabeling(t *testing.T) {
	x := [][]float64{{0, 0}, {1, 1}, {2, 2}}
	labels := []int{0, 0, 0}

	_, err := silhouetteAverage(x, labels)
	require.Error(t, err)
	var cerr *ClusteringError
	assert.ErrorAs(t, err, &cerr)
}

func TestSegmentStats(t *testing.T) {
	segCount, minSeg := segmentStats([]int{0, 0, 1, 1, 1, 2})
	assert.Equal(t, 3, segCount)
	assert.Equal(t, 1, minSeg)
}
