package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymmetrize3x3(t *testing.T) {
	in := [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	want := [][]float64{{1, 3, 5}, {3, 5, 7}, {5, 7, 9}}

	got, err := Symmetrize(in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSymmetrize2x2(t *testing.T) {
	in := [][]float64{{1, 2}, {3, 4}}
	want := [][]float64{{1, 2.5}, {2.5, 4}}

	got, err := Symmetrize(in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSymmetrizeNonSquare(t *testing.T) {
	in := [][]float64{{1, 2, 3}, {4, 5, 6}}

	_, err := Symmetrize(in)
	require.Error(t, err)
	var shapeErr *ShapeError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestSymmetrizeIsExactlyEqualToTranspose(t *testing.T) {
	in := [][]float64{
		{0, 1, 2, 3},
		{4, 0, 5, 6},
		{7, 8, 0, 9},
		{1, 2, 3, 0},
	}
	got, err := Symmetrize(in)
	require.NoError(t, err)

	n := len(got)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.Equal(t, got[i][j], got[j][i], "M[%d][%d] != M[%d][%d]", i, j, j, i)
		}
	}
}

func TestCombineAffinityIsSymmetricAndNonNegative(t *testing.T) {
	chroma := [][]float64{
		{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	mfcc := make([][]float64, len(chroma))
	for i := range mfcc {
		mfcc[i] = []float64{float64(i), float64(i) * 2}
	}

	rSym, err := Symmetrize(RecurrenceMatrix(chroma))
	require.NoError(t, err)
	rPath := PathSimilarity(mfcc)
	a := CombineAffinity(rSym, rPath)

	n := len(a)
	require.Equal(t, len(chroma), n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.GreaterOrEqual(t, a[i][j], 0.0)
			assert.InDelta(t, a[i][j], a[j][i], 1e-9)
		}
	}
}

func TestPathSimilarityIsTriDiagonal(t *testing.T) {
	mfcc := [][]float64{{0, 0}, {1, 1}, {2, 2}, {10, 10}}
	s := PathSimilarity(mfcc)

	for i := range s {
		for j := range s[i] {
			if j == i-1 || j == i+1 {
				continue
			}
			assert.Zero(t, s[i][j], "expected off-tridiagonal entry (%d,%d) to be zero", i, j)
		}
	}
}
