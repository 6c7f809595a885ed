package crawler

import "sync/atomic"

// State is the mutable context of one crawl. A State is created per crawl
// and may be shared with a progress reporter running on another goroutine.
type State struct {
	// Visited holds every URL scheduled so far.
	Visited *VisitedSet

	processed atomic.Int64
	known     atomic.Int64
}

// NewState creates a fresh crawl state.
func NewState() *State {
	return &State{Visited: NewVisitedSet()}
}

// Progress returns how many URLs were processed and how many are known.
// Known grows while the crawl discovers new references.
func (s *State) Progress() (processed, known int) {
	return int(s.processed.Load()), int(s.known.Load())
}

func (s *State) addKnown(n int) {
	s.known.Add(int64(n))
}

func (s *State) markProcessed() {
	s.processed.Add(1)
}
