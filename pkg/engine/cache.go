package engine

import (
	"encoding/binary"
	"fmt"
	"os"
)

// downbeatCacheMagic guards against reading an unrelated binary file as a
// downbeat cache.
const downbeatCacheMagic = uint32(0x444f_574e) // "DOWN"

// cachePathFor returns the side-file path for an input, honoring an
// explicit override.
func cachePathFor(inputPath, override string) string {
	if override != "" {
		return override
	}
	return inputPath + ".downbeats"
}

// writeDownbeatCache persists downbeats as a (N,2) float64 matrix: a magic
// header, a row count, then N*2 little-endian float64 values. Per spec.md
// §6 this format is advisory; the caller is expected to downgrade any
// returned error to a CacheIOError warning rather than fail the run.
func writeDownbeatCache(path string, downbeats []Downbeat) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, downbeatCacheMagic); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint64(len(downbeats))); err != nil {
		return err
	}
	for _, d := range downbeats {
		if err := binary.Write(f, binary.LittleEndian, d.TimeSec); err != nil {
			return err
		}
		if err := binary.Write(f, binary.LittleEndian, float64(d.BarPos)); err != nil {
			return err
		}
	}
	return nil
}

// readDownbeatCache reads a cache written by writeDownbeatCache. A magic
// mismatch or truncated file is reported as an error for the caller to
// downgrade.
func readDownbeatCache(path string) ([]Downbeat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != downbeatCacheMagic {
		return nil, fmt.Errorf("bad downbeat cache magic: %x", magic)
	}

	var n uint64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	out := make([]Downbeat, n)
	for i := range out {
		var t, bar float64
		if err := binary.Read(f, binary.LittleEndian, &t); err != nil {
			return nil, err
		}
		if err := binary.Read(f, binary.LittleEndian, &bar); err != nil {
			return nil, err
		}
		out[i] = Downbeat{TimeSec: t, BarPos: int(bar)}
	}
	return out, nil
}
