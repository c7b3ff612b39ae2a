//go:build !tensorflow

package engine

import "fmt"

// newTFBackend is a stub for builds without the "tensorflow" tag, mirroring
// the teacher's rekordbox_go_analyzer_stub.go pairing pattern.
func newTFBackend(cfg Config) (downbeatBackend, error) {
	return nil, fmt.Errorf("tensorflow backend not built (build with -tags tensorflow)")
}
