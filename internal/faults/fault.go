// Package faults implements the tagged union of fault rules that the
// registry stores and the filter applies: LatencyFault, which sleeps, and
// ErrorFault, which fails an operation with a chosen errno.
package faults

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bentsi/charybdisfs/internal/syscalltag"
)

// Status tracks whether a fault has ever fired.
type Status string

const (
	StatusNew     Status = "new"
	StatusApplied Status = "applied"
)

// Fault is the common surface both variants satisfy.
type Fault interface {
	SysCall() syscalltag.Tag
	Probability() int
	Status() Status
	// Apply performs the fault's effect. For LatencyFault this sleeps and
	// returns nil; for ErrorFault this returns an *AppliedError carrying the
	// configured errno. Status transitions to StatusApplied exactly once,
	// on the first call.
	Apply() error
	ToDict() map[string]any
}

// AppliedError is returned by ErrorFault.Apply. The operations engine
// converts it to a FUSE error reply carrying Errno.
type AppliedError struct {
	Errno int
}

func (e *AppliedError) Error() string {
	return fmt.Sprintf("injected fault: errno %d", e.Errno)
}

// LatencyFault sleeps for Delay microseconds before the passthrough body
// runs.
type LatencyFault struct {
	sysCall     syscalltag.Tag
	probability int
	delay       time.Duration
	status      atomic.Value // Status
}

// NewLatency builds a LatencyFault. delay is in microseconds and must be
// non-negative; the caller (registry.Add) validates probability range.
func NewLatency(sysCall syscalltag.Tag, probability int, delayMicros int64) *LatencyFault {
	f := &LatencyFault{
		sysCall:     sysCall,
		probability: probability,
		delay:       time.Duration(delayMicros) * time.Microsecond,
	}
	f.status.Store(StatusNew)
	return f
}

func (f *LatencyFault) SysCall() syscalltag.Tag { return f.sysCall }
func (f *LatencyFault) Probability() int        { return f.probability }
func (f *LatencyFault) Status() Status          { return f.status.Load().(Status) }

func (f *LatencyFault) Apply() error {
	f.status.Store(StatusApplied)
	time.Sleep(f.delay)
	return nil
}

func (f *LatencyFault) ToDict() map[string]any {
	return map[string]any{
		"fault_type":  "LatencyFault",
		"sys_call":    f.sysCall.WireForm(),
		"probability": f.probability,
		"status":      string(f.Status()),
		"delay":       int64(f.delay / time.Microsecond),
	}
}

// ErrorFault fails the operation with Errno instead of running the
// passthrough body.
type ErrorFault struct {
	sysCall     syscalltag.Tag
	probability int
	errno       int
	status      atomic.Value // Status
}

// NewError builds an ErrorFault. errno is not validated against the POSIX
// errno space, per spec.
func NewError(sysCall syscalltag.Tag, probability int, errno int) *ErrorFault {
	f := &ErrorFault{
		sysCall:     sysCall,
		probability: probability,
		errno:       errno,
	}
	f.status.Store(StatusNew)
	return f
}

func (f *ErrorFault) SysCall() syscalltag.Tag { return f.sysCall }
func (f *ErrorFault) Probability() int        { return f.probability }
func (f *ErrorFault) Status() Status          { return f.status.Load().(Status) }
func (f *ErrorFault) Errno() int              { return f.errno }

func (f *ErrorFault) Apply() error {
	f.status.Store(StatusApplied)
	return &AppliedError{Errno: f.errno}
}

func (f *ErrorFault) ToDict() map[string]any {
	return map[string]any{
		"fault_type":  "ErrorFault",
		"sys_call":    f.sysCall.WireForm(),
		"probability": f.probability,
		"status":      string(f.Status()),
		"error_no":    f.errno,
	}
}

// FromDict parses a fault dict as received over the control API. It never
// errors: an unknown fault_type or missing required fields yields (nil,
// false) rather than a failure, per spec.
func FromDict(d map[string]any) (Fault, bool) {
	typ, ok := stringField(d, "fault_type")
	if !ok {
		return nil, false
	}

	sysCallStr, ok := stringField(d, "sys_call")
	if !ok {
		return nil, false
	}
	sysCall := syscalltag.FromWireForm(sysCallStr)
	if sysCall == syscalltag.Unknown {
		return nil, false
	}

	probability, ok := intField(d, "probability")
	if !ok || probability < 0 || probability > 100 {
		return nil, false
	}

	switch typ {
	case "LatencyFault":
		delay, ok := intField(d, "delay")
		if !ok || delay < 0 {
			return nil, false
		}
		return NewLatency(sysCall, probability, int64(delay)), true
	case "ErrorFault":
		errno, ok := intField(d, "error_no")
		if !ok {
			return nil, false
		}
		return NewError(sysCall, probability, errno), true
	default:
		return nil, false
	}
}

func stringField(d map[string]any, key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intField accepts float64 (what encoding/json produces for numbers when a
// dict is decoded into map[string]any) as well as native int and int64, so
// FromDict works uniformly whether the dict was built in Go or decoded off
// the wire. A json.Number value is not accepted.
func intField(d map[string]any, key string) (int, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
