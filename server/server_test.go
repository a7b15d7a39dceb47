package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/chronicle-bot/bot"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeChat struct{ connected bool }

func (f fakeChat) Connected() bool { return f.connected }

type fakeBot struct {
	status   bot.Status
	resetErr error
	resets   []string
}

func (f *fakeBot) Status() bot.Status { return f.status }

func (f *fakeBot) ResetChannel(_ context.Context, ch string) error {
	f.resets = append(f.resets, ch)
	return f.resetErr
}

func newTestMux(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if deps.Bot == nil {
		deps.Bot = &fakeBot{}
	}
	return NewMux(ctx, deps)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	rr := serve(newTestMux(t, Deps{Store: fakePinger{}}), http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q, want 200 ok", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected correlation id header")
	}

	rr = serve(newTestMux(t, Deps{Store: fakePinger{err: errors.New("down")}}), http.MethodGet, "/healthz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz with store down = %d, want 503", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		deps       Deps
		wantStatus int
		wantCheck  string
	}{
		{"ready", Deps{Store: fakePinger{}, Chat: fakeChat{connected: true}}, http.StatusOK, ""},
		{"store down", Deps{Store: fakePinger{err: errors.New("down")}, Chat: fakeChat{connected: true}}, http.StatusServiceUnavailable, "database"},
		{"chat disconnected", Deps{Store: fakePinger{}, Chat: fakeChat{}}, http.StatusServiceUnavailable, "chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(newTestMux(t, tt.deps), http.MethodGet, "/readyz")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["failed_check"] != tt.wantCheck {
				t.Errorf("failed_check = %q, want %q", body["failed_check"], tt.wantCheck)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	fb := &fakeBot{status: bot.Status{Enabled: true, Channels: map[string]int{"demo": 3}, AuthorizedUsers: []string{"mod1"}}}
	rr := serve(newTestMux(t, Deps{Store: fakePinger{}, Bot: fb}), http.MethodGet, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var got bot.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(fb.status, got); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminResetChannel(t *testing.T) {
	fb := &fakeBot{}
	h := newTestMux(t, Deps{Store: fakePinger{}, Bot: fb, Auth: AuthOptions{Token: "tok"}})

	rr := serve(h, http.MethodDelete, "/admin/channels/Demo/context")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated reset = %d, want 401", rr.Code)
	}
	if len(fb.resets) != 0 {
		t.Fatal("reset ran without auth")
	}

	req := httptest.NewRequest(http.MethodDelete, "/admin/channels/Demo/context", nil)
	req.Header.Set("X-Admin-Token", "tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reset = %d, want 204", rr.Code)
	}
	if diff := cmp.Diff([]string{"demo"}, fb.resets); diff != "" {
		t.Errorf("resets mismatch (-want +got):\n%s", diff)
	}

	if rr := serve(h, http.MethodGet, "/admin/channels/demo/context"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on reset route = %d, want 405", rr.Code)
	}
}

func TestAdminResetChannelDeleteFailure(t *testing.T) {
	fb := &fakeBot{resetErr: errors.New("db down")}
	rr := serve(newTestMux(t, Deps{Store: fakePinger{}, Bot: fb}), http.MethodDelete, "/admin/channels/demo/context")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, Deps{Store: fakePinger{}, Bot: &fakeBot{}}, "127.0.0.1:0") }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
