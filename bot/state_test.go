package bot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct{ in, want string }{
		{"@Alice", "alice"},
		{"  BOB ", "bob"},
		{"@", ""},
		{"", ""},
		{"carol", "carol"},
	}
	for _, tt := range tests {
		if got := NormalizeUsername(tt.in); got != tt.want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateAddRemoveKeepsOrder(t *testing.T) {
	s := NewState([]string{"Mod1", "zed", "mod1"}, true)
	if diff := cmp.Diff([]string{"mod1", "zed"}, s.Users()); diff != "" {
		t.Fatalf("seeded users mismatch (-want +got):\n%s", diff)
	}
	if !s.add("@Amy") {
		t.Fatal("add new user should succeed")
	}
	if s.add("amy") {
		t.Error("adding an existing user should report false")
	}
	if !s.remove("ZED") {
		t.Error("remove should be case-insensitive")
	}
	if s.remove("zed") {
		t.Error("removing a non-member should report false")
	}
	if diff := cmp.Diff([]string{"mod1", "amy"}, s.Users()); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUserAuthorized(t *testing.T) {
	s := NewState([]string{"mod1"}, true)
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"channel owner", Message{Channel: "#Demo", Username: "demo"}, true},
		{"moderator", Message{Channel: "demo", Username: "someone", IsMod: true}, true},
		{"listed by username", Message{Channel: "demo", Username: "mod1"}, true},
		{"listed by display name", Message{Channel: "demo", Username: "x_1", DisplayName: "MOD1"}, true},
		{"stranger", Message{Channel: "demo", Username: "rando", DisplayName: "Rando"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsUserAuthorized(tt.msg); got != tt.want {
				t.Errorf("IsUserAuthorized() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOwnerAuthorizedRegardlessOfSet(t *testing.T) {
	for _, users := range [][]string{nil, {"other"}, {"demo"}} {
		s := NewState(users, true)
		if !s.IsUserAuthorized(Message{Channel: "demo", Username: "Demo"}) {
			t.Errorf("owner not authorized with set %v", users)
		}
	}
}

func TestIsChannelOwnerOrModIgnoresSet(t *testing.T) {
	if IsChannelOwnerOrMod(Message{Channel: "demo", Username: "mod1"}) {
		t.Error("set membership must not satisfy the owner-or-moderator gate")
	}
	if !IsChannelOwnerOrMod(Message{Channel: "#demo", Username: "DEMO"}) {
		t.Error("owner should pass")
	}
}
