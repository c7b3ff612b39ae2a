package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func mustDense(n int, data []float64) *mat.Dense {
	return mat.NewDense(n, n, data)
}

func symmetricAffinity() [][]float64 {
	return [][]float64{
		{0, 1, 0, 0},
		{1, 0, 1, 0},
		{0, 1, 0, 1},
		{0, 0, 1, 0},
	}
}

func TestNormalizedLaplacianIsHermitian(t *testing.T) {
	l := NormalizedLaplacian(symmetricAffinity())
	require.NoError(t, checkHermitian(l))
}

func TestCheckHermitianRejectsAsymmetricMatrix(t *testing.T) {
	n := 3
	l := mustDense(n, []float64{
		0, 1, 0,
		0, 0, 1, // row 1 col 0 should be 1 to be symmetric; it's 0
		0, 1, 0,
	})
	err := checkHermitian(l)
	require.Error(t, err)
	var herr *NotHermitianError
	assert.ErrorAs(t, err, &herr)
}

func TestEmbedProducesSquareEvecsAndNonDecreasingCumulativeNorms(t *testing.T) {
	a := symmetricAffinity()
	emb, err := Embed(a)
	require.NoError(t, err)

	n := len(a)
	rows, cols := emb.Evecs.Dims()
	assert.Equal(t, n, rows)
	assert.Equal(t, n, cols)
	require.Len(t, emb.Cnorm, n)

	for i := 0; i < n; i++ {
		require.Len(t, emb.Cnorm[i], n)
		for j := 1; j < n; j++ {
			assert.GreaterOrEqual(t, emb.Cnorm[i][j], emb.Cnorm[i][j-1]-1e-9, "cumulative norm must be non-decreasing")
		}
	}
}
