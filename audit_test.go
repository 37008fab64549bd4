package tokenguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func auditEnabled(cfg *Config) {
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
}

func TestAuditIssueAndRotateEvents(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, _ := buildTestEngine(t,
		withConfig(auditEnabled),
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
	)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	issued := waitForEvent(t, sink.Events(), AuditEventIssue)
	if issued.UserID != "user-1" || !issued.Success {
		t.Fatalf("unexpected issue event: %+v", issued)
	}
	if issued.SessionID != pair.SessionID {
		t.Fatalf("issue event session = %q, want %q", issued.SessionID, pair.SessionID)
	}

	if _, err := engine.Rotate(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	rotated := waitForEvent(t, sink.Events(), AuditEventRotate)
	if !rotated.Success || rotated.SessionID != pair.SessionID {
		t.Fatalf("unexpected rotate event: %+v", rotated)
	}
}

func TestAuditVerifyReportsEveryOutcome(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, _ := buildTestEngine(t,
		withConfig(auditEnabled),
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
	)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if res := engine.Verify(context.Background(), pair.AccessToken); !res.OK() {
		t.Fatalf("verify failed: %s", res.Reason)
	}
	ok := waitForEvent(t, sink.Events(), AuditEventVerify)
	if !ok.Success || ok.UserID != "user-1" || ok.SessionID != pair.SessionID {
		t.Fatalf("unexpected verify event: %+v", ok)
	}
	if ok.Severity != SeverityInfo {
		t.Fatalf("verify success severity = %q, want info", ok.Severity)
	}

	if res := engine.Verify(context.Background(), "garbage"); res.Reason != VerifyMalformedOrUntrusted {
		t.Fatalf("garbage = %s, want malformed", res.Reason)
	}
	denied := waitForEvent(t, sink.Events(), AuditEventVerifyDenied)
	if denied.Success || denied.Reason != VerifyMalformedOrUntrusted.String() {
		t.Fatalf("unexpected denial event: %+v", denied)
	}
}

func TestAuditReuseEventIsCritical(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, _ := buildTestEngine(t,
		withConfig(auditEnabled),
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
	)

	pair, err := engine.IssuePair(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if _, err := engine.Rotate(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if _, err := engine.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("replay err = %v, want ErrRefreshReuse", err)
	}

	reuse := waitForEvent(t, sink.Events(), AuditEventReuseDetected)
	if reuse.Severity != SeverityCritical {
		t.Fatalf("reuse severity = %q, want critical", reuse.Severity)
	}
	if reuse.UserID != "user-1" || reuse.FamilyID == "" {
		t.Fatalf("reuse event missing identity: %+v", reuse)
	}
	if _, ok := reuse.Metadata["revoked_tokens"]; !ok {
		t.Fatalf("reuse event missing revocation count: %+v", reuse)
	}
	if _, ok := reuse.Metadata["revocation_error"]; ok {
		t.Fatalf("healthy revocation reported an error: %+v", reuse)
	}

	revoked := waitForEvent(t, sink.Events(), AuditEventFamilyRevoked)
	if revoked.Severity != SeverityCritical || revoked.FamilyID != reuse.FamilyID {
		t.Fatalf("unexpected family revocation event: %+v", revoked)
	}
}

func TestAuditEventsCarryClientProvenance(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, _ := buildTestEngine(t,
		withConfig(auditEnabled),
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
	)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "test-agent/1.0")

	if _, err := engine.IssuePair(ctx, "user-1"); err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	event := waitForEvent(t, sink.Events(), AuditEventIssue)
	if event.IP != "203.0.113.7" || event.UserAgent != "test-agent/1.0" {
		t.Fatalf("provenance missing: %+v", event)
	}
}

type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestJSONWriterSinkOutput(t *testing.T) {
	var out syncWriter
	engine, _, _ := buildTestEngine(t,
		withConfig(auditEnabled),
		withBuilder(func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(&out)) }),
	)

	if _, err := engine.IssuePair(context.Background(), "user-1"); err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	engine.Close()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("no audit output written")
	}

	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	if event.EventType != AuditEventIssue {
		t.Fatalf("event type = %q, want %q", event.EventType, AuditEventIssue)
	}
}

func TestAuditDisabledDispatcherIsInert(t *testing.T) {
	engine, _, _ := buildTestEngine(t)

	if _, err := engine.IssuePair(context.Background(), "user-1"); err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if engine.AuditDropped() != 0 {
		t.Fatalf("dropped = %d on disabled audit", engine.AuditDropped())
	}
}
