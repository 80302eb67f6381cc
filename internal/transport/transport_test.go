package transport_test

import (
	"errors"
	"testing"

	"github.com/omochice/chatstream/internal/transport"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"ws", "ws://localhost:8080/chat", false},
		{"wss", "wss://example.com/chat?x=1", false},
		{"http scheme", "http://localhost:8080", true},
		{"no scheme", "localhost:8080", true},
		{"empty", "", true},
		{"missing host", "ws:///chat", true},
		{"fragment", "ws://localhost/chat#frag", true},
		{"bad escape", "ws://local%zzhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transport.ParseAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, transport.ErrInvalidAddress) {
				t.Errorf("ParseAddress(%q) error = %v, want ErrInvalidAddress", tt.address, err)
			}
		})
	}
}
