package telemetry

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return NewLog(filepath.Join(t.TempDir(), "audit.jsonl"), "test-salt")
}

func TestRecord_ScrubsAtWriteTime(t *testing.T) {
	l := newTestLog(t)
	l.Record(Event{
		Kind:     "tool",
		Name:     "get_walk_data",
		ClientID: "client-a",
		Args: map[string]any{
			"user_id": 42,
			"purpose": "analytics",
			"token":   "super-secret",
			"nested":  map[string]any{"email": "a@b.example"},
			"list":    []any{map[string]any{"player_id": "p-9"}},
		},
		OK: true,
		MS: 12,
	})

	// The persisted artifact itself must be safe to share.
	raw, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(raw)
	for _, leak := range []string{"super-secret", "a@b.example", "p-9", `"user_id":42`} {
		if strings.Contains(line, leak) {
			t.Errorf("persisted line leaks %q: %s", leak, line)
		}
	}
	if !strings.Contains(line, "subject_hash") {
		t.Errorf("expected a subject hash on the persisted line")
	}
}

func TestRecord_SubjectHashLinksEvents(t *testing.T) {
	l := newTestLog(t)
	l.Record(Event{Kind: "tool", Name: "a", Args: map[string]any{"user_id": 42}, OK: true})
	l.Record(Event{Kind: "tool", Name: "b", Args: map[string]any{"user_id": 42}, OK: true})
	l.Record(Event{Kind: "tool", Name: "c", Args: map[string]any{"user_id": 7}, OK: true})

	events, err := l.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}

	hashes := map[string][]string{}
	for _, e := range events {
		if e.SubjectHash == "" {
			t.Fatalf("event %s has no subject hash", e.Name)
		}
		hashes[e.SubjectHash] = append(hashes[e.SubjectHash], e.Name)
	}
	if len(hashes) != 2 {
		t.Errorf("distinct hashes = %d, want 2 (users 42 and 7)", len(hashes))
	}
	for h, names := range hashes {
		if len(names) == 2 && !(contains(names, "a") && contains(names, "b")) {
			t.Errorf("hash %s links %v, want a and b", h, names)
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func TestQuery_Filters(t *testing.T) {
	l := newTestLog(t)
	ok := true
	fail := false

	l.Record(Event{Kind: "tool", Name: "get_walk_data", ClientID: "client-a", CorrID: "corr-1",
		Args: map[string]any{"purpose": "analytics"}, OK: true, MS: 5})
	l.Record(Event{Kind: "tool", Name: "get_walk_data", ClientID: "client-b", CorrID: "corr-2",
		Args: map[string]any{"purpose": "coaching"}, OK: false, Err: "denied_by_policy"})
	l.Record(Event{Kind: "governor", Name: "fetch_walk", ClientID: "client-a", CorrID: "corr-1",
		Args: map[string]any{"purpose": "analytics"}, OK: false, Err: "all_sources_failed"})

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by client", Filter{ClientID: "client-a"}, 2},
		{"by corr id", Filter{CorrID: "corr-1"}, 2},
		{"by purpose", Filter{Purpose: "coaching"}, 1},
		{"by ok", Filter{OK: &ok}, 1},
		{"by not ok", Filter{OK: &fail}, 2},
		{"by error code", Filter{ErrorCode: "denied_by_policy"}, 1},
		{"recent window", Filter{Since: time.Hour}, 3},
		{"combined", Filter{ClientID: "client-a", OK: &fail}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := l.Query(50, tc.filter)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(events) != tc.want {
				t.Errorf("matched %d events, want %d", len(events), tc.want)
			}
		})
	}
}

func TestQuery_NewestFirstAndBounded(t *testing.T) {
	l := newTestLog(t)
	for _, name := range []string{"one", "two", "three"} {
		l.Record(Event{Kind: "tool", Name: name, OK: true})
	}

	events, err := l.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want bound of 2", len(events))
	}
	if events[0].Name != "three" || events[1].Name != "two" {
		t.Errorf("order = %s,%s; want newest first", events[0].Name, events[1].Name)
	}
}

func TestQuery_ReadTimeScrubProtectsHistoricalRows(t *testing.T) {
	// Simulate a row persisted before the scrub policy covered emails:
	// write a raw line directly, bypassing Record.
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	raw := `{"ts":"2026-01-01T00:00:00Z","kind":"tool","name":"old","client_id":"c","args":{"email":"x@y.example"},"ok":true,"ms":1}` + "\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	l := NewLog(path, "salt")
	events, err := l.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if got := events[0].Args["email"]; got != Scrubbed {
		t.Errorf("email served as %v, want %q from the read-time pass", got, Scrubbed)
	}
}

func TestRecord_NeverFailsCaller(t *testing.T) {
	// A log pointing at an unwritable path must still be safe to use.
	l := NewLog(filepath.Join(string(os.PathSeparator), "dev", "null", "nope", "audit.jsonl"), "salt")
	l.Record(Event{Kind: "tool", Name: "x", OK: true}) // must not panic

	var nilLog *Log
	nilLog.Record(Event{Kind: "tool", Name: "y"}) // nil sink is a no-op
	if _, err := nilLog.Recent(5); err != nil {
		t.Errorf("nil log query should be a no-op, got %v", err)
	}
}

func TestScrub_Pure(t *testing.T) {
	in := map[string]any{"token": "t", "keep": "v"}
	out := Scrub(in).(map[string]any)
	if in["token"] != "t" {
		t.Errorf("Scrub mutated its input")
	}
	if out["token"] != Scrubbed || out["keep"] != "v" {
		t.Errorf("scrubbed = %v", out)
	}
}

func TestLogFile_OneJSONObjectPerLine(t *testing.T) {
	l := newTestLog(t)
	l.Record(Event{Kind: "tool", Name: "a", OK: true})
	l.Record(Event{Kind: "tool", Name: "b", OK: false, Err: "timeout"})

	f, err := os.Open(l.path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if !strings.HasPrefix(scanner.Text(), "{") || !strings.HasSuffix(scanner.Text(), "}") {
			t.Errorf("line %d is not a bare JSON object: %s", lines, scanner.Text())
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}
