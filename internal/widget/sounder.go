package widget

import "sync"

// Sounder plays the agent-message notification sound. Playback only
// happens after Enable has been called from a user gesture; until then
// Play is a silent no-op. The playback function is injected so the
// rendering layer decides what "play" means.
type Sounder struct {
	mu       sync.Mutex
	unlocked bool
	play     func()
}

// NewSounder creates a locked sounder around a playback function.
// A nil play function yields a sounder that never makes noise.
func NewSounder(play func()) *Sounder {
	return &Sounder{play: play}
}

// Enable unlocks playback. Call this from the first user gesture.
func (s *Sounder) Enable() {
	s.mu.Lock()
	s.unlocked = true
	s.mu.Unlock()
}

// Play triggers the notification sound if unlocked
func (s *Sounder) Play() {
	s.mu.Lock()
	unlocked := s.unlocked
	fn := s.play
	s.mu.Unlock()

	if unlocked && fn != nil {
		fn()
	}
}

// Enabled reports whether playback has been unlocked
func (s *Sounder) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}
