// Package registry holds the process-wide set of active fault rules. It is
// deliberately a value the caller constructs and wires into both the
// operations engine and the control API, rather than a package singleton -
// so tests can run several independent registries side by side.
package registry

import (
	"fmt"
	"sync"

	"github.com/bentsi/charybdisfs/internal/faults"
	"github.com/bentsi/charybdisfs/internal/syscalltag"
	"github.com/google/uuid"
)

// Registry is safe for concurrent use. All operations are atomic with
// respect to each other under a single mutex.
type Registry struct {
	mu    sync.Mutex
	rules map[string]faults.Fault
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{rules: make(map[string]faults.Fault)}
}

// Add inserts fault under a freshly generated id. It fails when the
// insertion would push the probability budget for any concrete syscall tag
// above 100.
func (r *Registry) Add(f faults.Fault) (id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBudgetLocked(f.SysCall(), f.Probability(), ""); err != nil {
		return "", err
	}

	id = uuid.NewString()
	r.rules[id] = f
	return id, nil
}

// checkBudgetLocked verifies that adding a rule tagged tag with the given
// probability keeps every affected concrete tag's total at or below 100.
// excludeID lets a caller re-validate a registry as if one rule were
// absent; Add, the only caller, always passes "".
func (r *Registry) checkBudgetLocked(tag syscalltag.Tag, probability int, excludeID string) error {
	if probability < 0 || probability > 100 {
		return fmt.Errorf("probability %d out of range [0, 100]", probability)
	}

	if tag == syscalltag.ALL {
		// An ALL rule affects every concrete tag, so it must satisfy the
		// invariant for all of them, not just ones with an existing
		// concrete-tagged rule.
		for _, concrete := range syscalltag.AllConcrete() {
			total := probability
			for id, f := range r.rules {
				if id == excludeID {
					continue
				}
				if syscalltag.Matches(f.SysCall(), concrete) {
					total += f.Probability()
				}
			}
			if total > 100 {
				return fmt.Errorf("adding ALL rule with probability %d would violate budget on %s (total %d)", probability, concrete, total)
			}
		}
		return nil
	}

	total := probability
	for id, f := range r.rules {
		if id == excludeID {
			continue
		}
		if syscalltag.Matches(f.SysCall(), tag) {
			total += f.Probability()
		}
	}
	if total > 100 {
		return fmt.Errorf("adding rule with probability %d on %s would violate budget (total %d)", probability, tag, total)
	}
	return nil
}

// Remove deletes id and returns the fault that was removed, or (nil, false)
// when absent.
func (r *Registry) Remove(id string) (faults.Fault, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.rules[id]
	if !ok {
		return nil, false
	}
	delete(r.rules, id)
	return f, true
}

// Get returns the fault stored under id.
func (r *Registry) Get(id string) (faults.Fault, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.rules[id]
	return f, ok
}

// RuleWithID pairs a fault with its id, for callers that need to iterate in
// a stable-enough way to apply the fault filter's cumulative algorithm.
type RuleWithID struct {
	ID    string
	Fault faults.Fault
}

// GetBySysCall returns rules whose tag equals tag or is ALL. When tag is
// itself ALL, only rules tagged exactly ALL are returned.
func (r *Registry) GetBySysCall(tag syscalltag.Tag) []RuleWithID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []RuleWithID
	for id, f := range r.rules {
		if tag == syscalltag.ALL {
			if f.SysCall() == syscalltag.ALL {
				out = append(out, RuleWithID{id, f})
			}
			continue
		}
		if syscalltag.Matches(f.SysCall(), tag) {
			out = append(out, RuleWithID{id, f})
		}
	}
	return out
}

// All returns every rule currently registered.
func (r *Registry) All() []RuleWithID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RuleWithID, 0, len(r.rules))
	for id, f := range r.rules {
		out = append(out, RuleWithID{id, f})
	}
	return out
}

// AllIDs returns every rule id currently registered.
func (r *Registry) AllIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.rules))
	for id := range r.rules {
		out = append(out, id)
	}
	return out
}
