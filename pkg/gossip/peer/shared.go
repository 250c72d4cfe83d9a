package peer

import "sync"

// SharedView is a View guarded by a mutex, shared across the sampling,
// anti-entropy and broadcast services (spec §5: all three touch the same
// bounded partial view, and an I/O wait must never hold the lock).
type SharedView struct {
	mu   sync.Mutex
	view *View
}

// NewShared wraps v in a SharedView.
func NewShared(v *View) *SharedView {
	return &SharedView{view: v}
}

// With runs fn with the view locked. fn must not block on network or
// storage I/O; callers needing I/O should copy what they need out of fn and
// do the I/O after With returns.
func (s *SharedView) With(fn func(v *View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.view)
}
