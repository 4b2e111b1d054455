package engine

import "sort"

// Barrier is the fan-in point of a parallel section. It opens once every
// named track has arrived.
type Barrier struct {
	arrived map[string]bool
}

// NewBarrier creates a barrier waiting on the given track labels.
func NewBarrier(labels ...string) *Barrier {
	b := &Barrier{arrived: make(map[string]bool, len(labels))}
	for _, l := range labels {
		b.arrived[l] = false
	}
	return b
}

// Arrive marks a track as finished. It returns true only for the arrival
// that opens the barrier. Unknown or repeated arrivals return false.
func (b *Barrier) Arrive(label string) bool {
	done, ok := b.arrived[label]
	if !ok || done {
		return false
	}
	b.arrived[label] = true
	return b.Open()
}

// Open reports whether every track has arrived.
func (b *Barrier) Open() bool {
	for _, done := range b.arrived {
		if !done {
			return false
		}
	}
	return true
}

// Waiting returns the labels that have not arrived yet.
func (b *Barrier) Waiting() []string {
	var out []string
	for l, done := range b.arrived {
		if !done {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
