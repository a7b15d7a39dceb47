package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/onnwee/chronicle-bot/history"
)

var errStoreDown = errors.New("store unavailable")

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]bool
	enabled *bool
	failAll bool
}

func newFakeStore(users ...string) *fakeStore {
	fs := &fakeStore{users: map[string]bool{}}
	for _, u := range users {
		fs.users[u] = true
	}
	return fs
}

func (f *fakeStore) AddAuthorizedUser(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	if f.users[username] {
		return errors.New("already exists")
	}
	f.users[username] = true
	return nil
}

func (f *fakeStore) RemoveAuthorizedUser(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	if !f.users[username] {
		return errors.New("not found")
	}
	delete(f.users, username)
	return nil
}

func (f *fakeStore) SaveBotState(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.enabled = &enabled
	return nil
}

type said struct {
	Channel string
	Text    string
}

type fakeSayer struct {
	mu  sync.Mutex
	out []said
}

func (f *fakeSayer) Say(channel, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, said{channel, text})
}

func (f *fakeSayer) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.out))
	for i, s := range f.out {
		out[i] = s.Text
	}
	return out
}

type chronicleCall struct {
	Year, Summary string
	Events        []history.Line
}

type fakeChronicler struct {
	mu    sync.Mutex
	reply string
	calls []chronicleCall
}

func (f *fakeChronicler) Chronicle(_ context.Context, year, summary string, events []history.Line) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chronicleCall{year, summary, events})
	return f.reply
}

type fakeMirror struct {
	mu      sync.Mutex
	lines   []history.Line
	deleted []string
	delErr  error
}

func (m *fakeMirror) Enqueue(l history.Line) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, l)
	return true
}

func (m *fakeMirror) QueueDelete(ch string) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ch)
	done := make(chan error, 1)
	done <- m.delErr
	return done
}
