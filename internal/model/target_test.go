package model

import (
	"errors"
	"testing"
)

func TestNewTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr error
		host    string
	}{
		{name: "https URL", raw: "https://example.com", host: "example.com"},
		{name: "http URL with path", raw: "http://example.com/contact", host: "example.com"},
		{name: "URL with port", raw: "http://127.0.0.1:8080/index.html", host: "127.0.0.1"},
		{name: "surrounding whitespace", raw: "  https://example.com  ", host: "example.com"},
		{name: "empty", raw: "", wantErr: ErrEmptyTarget},
		{name: "whitespace only", raw: "   ", wantErr: ErrEmptyTarget},
		{name: "missing scheme", raw: "example.com", wantErr: ErrInvalidTarget},
		{name: "ftp scheme", raw: "ftp://example.com", wantErr: ErrInvalidTarget},
		{name: "javascript scheme", raw: "javascript:alert(1)", wantErr: ErrInvalidTarget},
		{name: "scheme only", raw: "https://", wantErr: ErrInvalidTarget},
		{name: "garbage", raw: "ht tp://bad host", wantErr: ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target, err := NewTarget(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewTarget(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTarget(%q) unexpected error: %v", tt.raw, err)
			}
			if target.Host() != tt.host {
				t.Errorf("Host() = %q, want %q", target.Host(), tt.host)
			}
			if target.IsZero() {
				t.Error("IsZero() = true for valid target")
			}
		})
	}
}

func TestTargetZeroValue(t *testing.T) {
	t.Parallel()

	var target Target
	if !target.IsZero() {
		t.Error("zero Target should report IsZero")
	}
}
