// Package bot routes chat lines through the enablement and authorization
// gates and runs the chronicle bot's commands.
package bot

import (
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chronicle-bot/history"
)

// State holds the in-memory AuthorizationSet and the mirrored global
// enable flag. The durable store stays the source of truth; State is only
// changed after a store write succeeds.
type State struct {
	mu      sync.RWMutex
	users   []string // insertion order, normalized
	enabled bool
}

// NewState seeds the state with the users and flag loaded at startup.
func NewState(users []string, enabled bool) *State {
	s := &State{enabled: enabled}
	for _, u := range users {
		s.add(u)
	}
	return s
}

// Enabled reports the global bot flag.
func (s *State) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *State) setEnabled(v bool) {
	s.mu.Lock()
	s.enabled = v
	s.mu.Unlock()
}

// Users returns a copy of the authorized users in insertion order.
func (s *State) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.users))
	copy(out, s.users)
	return out
}

// Contains reports case-insensitive membership.
func (s *State) Contains(name string) bool {
	name = NormalizeUsername(name)
	if name == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u == name {
			return true
		}
	}
	return false
}

func (s *State) add(name string) bool {
	name = NormalizeUsername(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u == name {
			return false
		}
	}
	s.users = append(s.users, name)
	return true
}

func (s *State) remove(name string) bool {
	name = NormalizeUsername(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u == name {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return true
		}
	}
	return false
}

// NormalizeUsername trims whitespace and a leading "@" and folds case.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// Message is one incoming chat line with its sender metadata.
type Message struct {
	Channel     string
	Username    string // login name
	DisplayName string
	Text        string
	IsMod       bool
	IsSelf      bool
	Timestamp   time.Time
}

// Name is the identity used in replies and stored history.
func (m Message) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}

// IsChannelOwnerOrMod reports whether the sender owns the channel or moderates it.
func IsChannelOwnerOrMod(m Message) bool {
	user := NormalizeUsername(m.Username)
	return m.IsMod || (user != "" && user == history.NormalizeChannel(m.Channel))
}

// IsUserAuthorized reports whether the sender passes the general
// authorization gate: channel owner, moderator, or a member of the set by
// display name or username.
func (s *State) IsUserAuthorized(m Message) bool {
	if IsChannelOwnerOrMod(m) {
		return true
	}
	return s.Contains(m.DisplayName) || s.Contains(m.Username)
}
