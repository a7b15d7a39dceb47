package history

import "sync"

// SeenCommands tracks which command tokens have already been recorded per channel.
type SeenCommands struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewSeenCommands returns an empty set.
func NewSeenCommands() *SeenCommands {
	return &SeenCommands{seen: make(map[string]map[string]struct{})}
}

// Mark records kind for channel and reports whether this was its first occurrence.
func (s *SeenCommands) Mark(channel, kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.seen[channel]
	if !ok {
		set = make(map[string]struct{})
		s.seen[channel] = set
	}
	if _, dup := set[kind]; dup {
		return false
	}
	set[kind] = struct{}{}
	return true
}

// Seen reports whether kind was already marked for channel.
func (s *SeenCommands) Seen(channel, kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[channel][kind]
	return ok
}

// Clear forgets every token marked for channel.
func (s *SeenCommands) Clear(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, channel)
}
