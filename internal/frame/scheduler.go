// Package frame provides a display-frame callback scheduler and the render
// loop state machine driven by it.
package frame

import "sync"

// ID identifies a requested callback. The zero ID is never issued.
type ID uint64

// Scheduler runs requested callbacks once, on the next Dispatch. The host
// calls Dispatch once per display frame (ebiten's Update).
type Scheduler struct {
	mu      sync.Mutex
	nextID  ID
	pending map[ID]func()
	order   []ID
}

func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[ID]func())}
}

// Request schedules fn before the next repaint.
func (s *Scheduler) Request(fn func()) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.pending[id] = fn
	s.order = append(s.order, id)
	return id
}

// Cancel drops a pending callback. Unknown or already-run IDs are ignored.
func (s *Scheduler) Cancel(id ID) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Pending returns the number of callbacks waiting for the next Dispatch.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Dispatch runs the callbacks requested before this call, in request order.
// Callbacks requested while dispatching wait for the next frame.
func (s *Scheduler) Dispatch() int {
	s.mu.Lock()
	order := s.order
	s.order = nil
	s.mu.Unlock()

	ran := 0
	for _, id := range order {
		s.mu.Lock()
		fn, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if !ok {
			continue
		}
		fn()
		ran++
	}
	return ran
}
