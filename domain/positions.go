package domain

// positionAllocator hands out contiguous per-list card positions. It is
// seeded once per apply from a single aggregate max-position query and then
// consumed in memory, so a burst of creations against the same list never
// re-queries the store or leaves gaps.
//
// Allocators are transient, single-call state. They must never be shared
// across applies.
type positionAllocator struct {
	next map[string]int
}

// newPositionAllocator seeds counters from the max existing position per
// list. Lists absent from maxByList are treated as empty and start at 0.
func newPositionAllocator(maxByList map[string]int) *positionAllocator {
	next := make(map[string]int, len(maxByList))
	for listID, max := range maxByList {
		next[listID] = max + 1
	}
	return &positionAllocator{next: next}
}

// Next consumes the next position for the given list.
func (p *positionAllocator) Next(listID string) int {
	n := p.next[listID]
	p.next[listID] = n + 1
	return n
}
