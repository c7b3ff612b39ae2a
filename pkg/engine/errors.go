// Package engine implements the remix pipeline: beat detection, spectral
// segmentation, clustering, jump-graph construction, and the stochastic
// play-vector walk.
package engine

import "fmt"

// DecodeError reports that the input audio file could not be read or its
// format is unsupported.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EmptyBeatsError reports that the tracker produced zero beats for the
// input, usually because the audio is silence or too short to grid.
type EmptyBeatsError struct {
	Path string
}

func (e *EmptyBeatsError) Error() string {
	return fmt.Sprintf("no beats detected in %s", e.Path)
}

// ShapeError reports that a non-square matrix was passed to an operation
// that requires one, such as the symmetrizer.
type ShapeError struct {
	Rows, Cols int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected square matrix, got %dx%d", e.Rows, e.Cols)
}

// NotHermitianError reports that a matrix expected to be symmetric within
// tolerance failed the check; this guards against feeding a non-symmetric
// solver downstream.
type NotHermitianError struct {
	MaxDeviation float64
	Tolerance    float64
}

func (e *NotHermitianError) Error() string {
	return fmt.Sprintf("matrix is not symmetric within tolerance %g: max deviation %g", e.Tolerance, e.MaxDeviation)
}

// CacheIOError reports a failure reading or writing the on-disk downbeat
// cache (a missing cache file is not reported). Callers should treat this as
// a recoverable warning: after a read failure the downbeats are recomputed,
// after a write failure the computed ones are kept, and the pipeline
// continues.
type CacheIOError struct {
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("downbeat cache %s: %v", e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// ClusteringError reports that silhouette scoring could not be computed,
// typically because a candidate k produced fewer than two distinct labels.
type ClusteringError struct {
	K   int
	Err error
}

func (e *ClusteringError) Error() string {
	return fmt.Sprintf("clustering failed at k=%d: %v", e.K, e.Err)
}

func (e *ClusteringError) Unwrap() error { return e.Err }
