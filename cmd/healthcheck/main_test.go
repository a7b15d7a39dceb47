package main

import "testing"

func TestHealthURL(t *testing.T) {
	tests := []struct{ addr, want string }{
		{"", "http://localhost:8080/healthz"},
		{":9090", "http://localhost:9090/healthz"},
		{"0.0.0.0:8080", "http://localhost:8080/healthz"},
		{"127.0.0.1:8081", "http://127.0.0.1:8081/healthz"},
		{"[::]:8080", "http://localhost:8080/healthz"},
	}
	for _, tt := range tests {
		if got := healthURL(tt.addr); got != tt.want {
			t.Errorf("healthURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
