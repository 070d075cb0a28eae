// Package paging holds the helpers shared by every paginated store.
package paging

// Merge appends incoming to existing, skipping any item whose key is already
// present. The first occurrence wins, including duplicates within incoming.
func Merge[T any, K comparable](existing, incoming []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(existing)+len(incoming))
	out := make([]T, 0, len(existing)+len(incoming))
	for _, item := range existing {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	for _, item := range incoming {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Dedupe returns items with later duplicates removed.
func Dedupe[T any, K comparable](items []T, key func(T) K) []T {
	return Merge(nil, items, key)
}

// Guard hands out monotonically increasing tickets for a collection. A
// response may only be applied while its ticket is still current, so a
// response for a superseded request is dropped. Guard is not synchronized;
// stores call it under their own lock.
type Guard struct {
	current uint64
}

// Begin starts a new generation, invalidating every earlier ticket.
func (g *Guard) Begin() uint64 {
	g.current++
	return g.current
}

// Current returns the latest ticket without starting a new generation.
func (g *Guard) Current() uint64 {
	return g.current
}

// Valid reports whether ticket belongs to the current generation.
func (g *Guard) Valid(ticket uint64) bool {
	return ticket == g.current
}

// NormalizePage clamps a requested page number to 1 or above.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
