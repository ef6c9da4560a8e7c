package logging

import "testing"

func TestRedactMasksSecretKeys(t *testing.T) {
	fields := redact([]interface{}{"apiSecret", "sk_live_deadbeef", "userId", "u1"})
	if fields[1] != redactedValue {
		t.Fatalf("expected apiSecret to be redacted, got %v", fields[1])
	}
	if fields[3] != "u1" {
		t.Fatalf("expected non-secret field to pass through, got %v", fields[3])
	}
}

func TestRedactCaseInsensitive(t *testing.T) {
	fields := redact([]interface{}{"API_SECRET", "shh"})
	if fields[1] == "shh" {
		t.Fatalf("expected case-insensitive key match to redact value")
	}
}
