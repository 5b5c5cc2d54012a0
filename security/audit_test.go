package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewAuditor(t *testing.T) {
	auditor := NewAuditor(nil, true)
	if auditor == nil {
		t.Fatal("NewAuditor() returned nil")
	}
	if auditor.logger == nil {
		t.Error("nil logger should fall back to the default")
	}
}

func TestAuditorLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tests := []struct {
		name    string
		enabled bool
		wantLog bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			auditor := NewAuditor(logger, tt.enabled)

			auditor.LogEvent(Event{
				Type:      EventTokenIssued,
				UserID:    "user-123",
				ClientID:  "client-456",
				IPAddress: "192.168.1.1",
				Details:   map[string]any{"grant_type": "password"},
			})

			if hasLog := buf.Len() > 0; hasLog != tt.wantLog {
				t.Errorf("LogEvent() logged = %v, want %v", hasLog, tt.wantLog)
			}
		})
	}
}

func TestAuditorHashesUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	auditor := NewAuditor(logger, true)

	auditor.LogTokenIssued("user-123", "client-456", "127.0.0.1", "password", "read")

	out := buf.String()
	if strings.Contains(out, "user-123") {
		t.Error("raw user ID must not appear in audit output")
	}
	if !strings.Contains(out, "client-456") {
		t.Error("client ID should appear in audit output")
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Error("event type should appear in audit output")
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q", got)
	}

	h1 := hashForLogging("alice")
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
	if h1 != hashForLogging("alice") {
		t.Error("hash should be deterministic")
	}
	if h1 == hashForLogging("bob") {
		t.Error("different inputs should hash differently")
	}
}

func TestAuditorReuseEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	auditor := NewAuditor(logger, true)

	auditor.LogCodeReuse("client-1", "127.0.0.1")
	if !strings.Contains(buf.String(), EventAuthorizationCodeReuseDetected) {
		t.Error("missing code reuse event type")
	}

	buf.Reset()
	auditor.LogRefreshReuse("client-1", "127.0.0.1")
	if !strings.Contains(buf.String(), EventRefreshTokenReuseDetected) {
		t.Error("missing refresh reuse event type")
	}
}
