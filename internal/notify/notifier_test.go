package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildPasswordResetMessage(t *testing.T) {
	expires := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	link := "https://app.example.com/reset-password?token=abc&email=alice%40example.com"

	msg, err := BuildPasswordResetMessage("no-reply@example.com", "alice@example.com", link, expires)
	if err != nil {
		t.Fatalf("BuildPasswordResetMessage failed: %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.String()

	if !strings.Contains(raw, "Subject: Reset your password") {
		t.Error("missing subject")
	}
	if !strings.Contains(raw, "alice@example.com") {
		t.Error("missing recipient")
	}
	if !strings.Contains(raw, "token=3Dabc") && !strings.Contains(raw, "token=abc") {
		t.Error("missing reset link")
	}
}

func TestBuildPasswordResetMessage_BadAddress(t *testing.T) {
	if _, err := BuildPasswordResetMessage("no-reply@example.com", "not an address", "x", time.Now()); err == nil {
		t.Error("expected invalid recipient to fail")
	}
}

func TestLogNotifier_NeverLogsLink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	err := n.SendPasswordReset(context.Background(), "alice@example.com", "https://x/reset?token=secret-value", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if strings.Contains(f.String, "secret-value") {
				t.Errorf("reset secret leaked in field %s", f.Key)
			}
		}
	}
	if logs.Len() != 1 {
		t.Errorf("expected one log entry, got %d", logs.Len())
	}
}
