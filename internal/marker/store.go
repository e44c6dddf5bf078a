package marker

import (
	"sort"
	"sync"
)

// ProjectionStore is the mutable per-marker projection table owned by the
// host. Implementations must keep at most one projection per (marker, image).
type ProjectionStore interface {
	// Set adds or overwrites the projection of markerID in p.ImageID.
	Set(markerID string, p Projection)
	// Clear removes the projection of markerID in imageID, if any.
	Clear(markerID, imageID string)
	// Entries returns the projections of markerID sorted by image ID.
	Entries(markerID string) []Projection
}

// MemoryStore is an in-memory ProjectionStore safe for concurrent use.
//
// A single lock guards the whole table; callers writing distinct
// (marker, image) entries never need further coordination.
type MemoryStore struct {
	mu          sync.RWMutex
	projections map[string]map[string]Projection
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projections: make(map[string]map[string]Projection),
	}
}

// Set adds or overwrites a projection.
func (s *MemoryStore) Set(markerID string, p Projection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byImage, ok := s.projections[markerID]
	if !ok {
		byImage = make(map[string]Projection)
		s.projections[markerID] = byImage
	}
	byImage[p.ImageID] = p
}

// Clear removes a projection. Clearing a missing entry is a no-op.
func (s *MemoryStore) Clear(markerID, imageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byImage, ok := s.projections[markerID]
	if !ok {
		return
	}
	delete(byImage, imageID)
	if len(byImage) == 0 {
		delete(s.projections, markerID)
	}
}

// Entries returns a copy of the projections of markerID sorted by image ID.
func (s *MemoryStore) Entries(markerID string) []Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byImage := s.projections[markerID]
	out := make([]Projection, 0, len(byImage))
	for _, p := range byImage {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ImageID < out[j].ImageID
	})
	return out
}

// PinnedOf collects the pinned projections of the given markers from any
// store, in marker order then image order.
func PinnedOf(store ProjectionStore, markerIDs []string) []Pin {
	var pins []Pin
	for _, id := range markerIDs {
		for _, p := range store.Entries(id) {
			if !p.Pinned {
				continue
			}
			pins = append(pins, Pin{MarkerID: id, ImageID: p.ImageID, Pixel: p.Pixel})
		}
	}
	return pins
}

// PinCounts returns the number of pinned projections per marker. Markers
// without pins are present with a zero count.
func PinCounts(store ProjectionStore, markerIDs []string) map[string]int {
	counts := make(map[string]int, len(markerIDs))
	for _, id := range markerIDs {
		n := 0
		for _, p := range store.Entries(id) {
			if p.Pinned {
				n++
			}
		}
		counts[id] = n
	}
	return counts
}
