// Package affinity pins the calling OS thread to a CPU set parsed from the
// SCEE_WORK_CPUSET / SCEE_VALIDATION_CPUSET environment variables. Pinning
// is best-effort: an empty set is a no-op, and any failure to pin is
// logged rather than treated as fatal — affinity is a performance hint,
// not a correctness requirement, for this variant.
package affinity

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseCPUSet parses a comma/range-separated CPU list, e.g. "0,2-3,7".
func ParseCPUSet(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var cpus []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, found := strings.Cut(part, "-")
		if !found {
			n, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("affinity: invalid cpu %q: %w", lo, err)
			}
			cpus = append(cpus, n)
			continue
		}
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("affinity: invalid range start %q: %w", lo, err)
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return nil, fmt.Errorf("affinity: invalid range end %q: %w", hi, err)
		}
		for c := start; c <= end; c++ {
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}

// Pin binds the calling goroutine's current OS thread to cpus. Callers
// must call runtime.LockOSThread before Pin and keep it locked for the
// lifetime of the pinning, or the scheduler is free to move the goroutine
// to an unpinned thread on its next reschedule.
func Pin(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}
	return unix.SchedSetaffinity(0, &set)
}
