package history

import (
	"context"
	"fmt"
	"sync"
)

// Mirror receives every appended line for durable storage. Neither method
// may block: QueueDelete orders the delete behind lines already enqueued and
// reports its result on the returned channel.
type Mirror interface {
	Enqueue(line Line) bool
	QueueDelete(channel string) <-chan error
}

// Options tune the store's accumulation policy.
type Options struct {
	// PayloadKinds are command kinds appended on every occurrence.
	// Defaults to {KindEvent}.
	PayloadKinds []string
	// ResetClearsSeen makes Reset also forget the channel's seen command tokens.
	ResetClearsSeen bool
}

// Store is the per-channel, insertion-ordered history of observed lines.
type Store struct {
	mu       sync.RWMutex
	channels map[string][]Line

	seen            *SeenCommands
	payload         map[string]bool
	resetClearsSeen bool
	mirror          Mirror
}

// NewStore creates an empty store. mirror may be nil.
func NewStore(mirror Mirror, opts Options) *Store {
	kinds := opts.PayloadKinds
	if len(kinds) == 0 {
		kinds = []string{KindEvent}
	}
	payload := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		payload[k] = true
	}
	return &Store{
		channels:        make(map[string][]Line),
		seen:            NewSeenCommands(),
		payload:         payload,
		resetClearsSeen: opts.ResetClearsSeen,
		mirror:          mirror,
	}
}

// IsPayload reports whether kind is appended on every occurrence: chat,
// rejected events, or a command whose text is narrative content.
func (s *Store) IsPayload(kind string) bool {
	return kind == KindChat || kind == KindRejectedEvent || s.payload[kind]
}

// Append adds line to its channel's history and hands it to the mirror.
// Repeats of a non-payload command token already recorded for the channel are
// skipped; the return value reports whether the line was stored.
func (s *Store) Append(line Line) bool {
	line.Channel = NormalizeChannel(line.Channel)
	if line.Kind == "" {
		line.Kind = KindChat
	}
	if !s.IsPayload(line.Kind) && !s.seen.Mark(line.Channel, line.Kind) {
		return false
	}
	s.mu.Lock()
	s.channels[line.Channel] = append(s.channels[line.Channel], line)
	s.mu.Unlock()

	if s.mirror != nil {
		s.mirror.Enqueue(line)
	}
	return true
}

// Restore loads previously persisted lines without mirroring them again.
func (s *Store) Restore(lines []Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		l.Channel = NormalizeChannel(l.Channel)
		if !s.IsPayload(l.Kind) {
			s.seen.Mark(l.Channel, l.Kind)
		}
		s.channels[l.Channel] = append(s.channels[l.Channel], l)
	}
}

// Clear empties the channel's history and queues deletion of its stored
// rows without waiting. Lines appended afterwards survive the delete. The
// returned channel yields the delete's result; it is nil without a mirror.
func (s *Store) Clear(channel string) <-chan error {
	channel = NormalizeChannel(channel)
	s.mu.Lock()
	s.channels[channel] = []Line{}
	s.mu.Unlock()
	if s.resetClearsSeen {
		s.seen.Clear(channel)
	}
	if s.mirror == nil {
		return nil
	}
	return s.mirror.QueueDelete(channel)
}

// Reset clears the channel and waits for the durable delete. The in-memory
// clear happens even if the delete fails.
func (s *Store) Reset(ctx context.Context, channel string) error {
	return AwaitDelete(ctx, channel, s.Clear(channel))
}

// AwaitDelete waits for a delete queued by Clear. A nil channel means there
// was nothing to delete.
func AwaitDelete(ctx context.Context, channel string, done <-chan error) error {
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("delete stored messages for %s: %w", NormalizeChannel(channel), err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lines returns a copy of the channel's history, oldest first.
func (s *Store) Lines(channel string) []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.channels[NormalizeChannel(channel)]
	out := make([]Line, len(src))
	copy(out, src)
	return out
}

// EventHistory returns the channel's event lines, most recent last.
func (s *Store) EventHistory(channel string) []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Line
	for _, l := range s.channels[NormalizeChannel(channel)] {
		if l.Kind == KindEvent {
			out = append(out, l)
		}
	}
	return out
}

// Counts returns the number of stored lines per channel.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.channels))
	for ch, lines := range s.channels {
		out[ch] = len(lines)
	}
	return out
}
