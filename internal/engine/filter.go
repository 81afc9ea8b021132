package engine

import (
	"math/rand"
	"syscall"

	"github.com/bentsi/charybdisfs/internal/faults"
	"github.com/bentsi/charybdisfs/internal/syscalltag"
)

// runFiltered is the fault filter (component F): it samples the registry
// for a rule matching tag, applies it if selected, and otherwise (or after
// a latency fault) runs body - the bare passthrough. body's error, if any,
// is expected to already be FUSE-errno-shaped (see errnoError).
//
// This is the small-table dispatcher the design notes call for: each
// operation method of fileSystem is itself the table entry, and calls runFiltered
// once at its own boundary rather than routing through one central
// fuseutil.FileSystem implementation that dispatches by reflection.
func (fs *fileSystem) runFiltered(tag syscalltag.Tag, body func() error) error {
	fault := fs.sampleFault(tag)
	if fault == nil {
		return body()
	}

	err := fault.Apply()
	if err != nil {
		if ae, ok := err.(*faults.AppliedError); ok {
			return syscall.Errno(ae.Errno)
		}
		return err
	}

	// A latency fault consumed the sampled outcome but still falls through
	// to the passthrough body.
	return body()
}

// sampleFault implements the 100-bucket cumulative selection algorithm:
// draw r in [0, 99], walk the candidates in iteration order subtracting
// probability, and select the first candidate that drives r below zero.
// The probability-budget invariant the registry enforces on Add guarantees
// this never runs past the candidate list.
func (fs *fileSystem) sampleFault(tag syscalltag.Tag) faults.Fault {
	candidates := fs.registry.GetBySysCall(tag)
	if len(candidates) == 0 {
		return nil
	}

	r := rand.Intn(100)
	for _, c := range candidates {
		r -= c.Fault.Probability()
		if r < 0 {
			return c.Fault
		}
	}
	return nil
}
