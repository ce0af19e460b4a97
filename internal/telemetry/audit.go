// Package telemetry implements the append-only, privacy-scrubbed audit
// log.
//
// Events are one JSON object per line. Redaction is defense-in-depth
// and runs twice: at write time, so the persisted artifact is always
// safe to share, and again at read time, so a later change in the
// scrub policy still protects historical rows when they are served.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Event is one audit record.
type Event struct {
	TS          string         `json:"ts"`
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	ClientID    string         `json:"client_id"`
	RequestID   string         `json:"request_id,omitempty"`
	CorrID      string         `json:"corr_id,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	OK          bool           `json:"ok"`
	MS          int64          `json:"ms"`
	Err         string         `json:"error,omitempty"`
	SubjectHash string         `json:"subject_hash,omitempty"`
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Since     time.Duration // lookback window from now
	ClientID  string
	Purpose   string // matches args.purpose
	OK        *bool
	ErrorCode string
	CorrID    string
}

// Log is the append-only audit sink. A nil *Log is a valid no-op sink.
type Log struct {
	path string
	salt string
	mu   sync.Mutex
}

// NewLog creates a log appending to path. salt feeds the subject hash.
func NewLog(path, salt string) *Log {
	return &Log{path: path, salt: salt}
}

// Record appends one event. Fire-and-forget: failures are reported to
// stderr, never to the caller — auditing must not break the call path.
//
// The subject hash is computed from args["user_id"] before scrubbing,
// then the args are scrubbed so the persisted line holds neither the
// identifier nor any credential.
func (l *Log) Record(e Event) {
	if l == nil {
		return
	}
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.SubjectHash == "" {
		if raw := subjectOf(e.Args); raw != "" {
			e.SubjectHash = SubjectHash(l.salt, raw)
		}
	}
	if e.Args != nil {
		e.Args, _ = Scrub(e.Args).(map[string]any)
	}

	line, err := json.Marshal(e)
	if err != nil {
		log.Printf("WARNING: audit marshal: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Printf("WARNING: audit mkdir: %v", err)
			return
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.Printf("WARNING: audit open: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("WARNING: audit append: %v", err)
	}
}

// subjectOf extracts the raw subject identifier from event args.
func subjectOf(args map[string]any) string {
	switch v := args["user_id"].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

// Recent returns the newest n events, newest first.
func (l *Log) Recent(n int) ([]Event, error) {
	return l.Query(n, Filter{})
}

// Query returns at most n events matching f, newest first. Events are
// scrubbed again on the way out.
func (l *Log) Query(n int, f Filter) ([]Event, error) {
	if l == nil {
		return nil, nil
	}

	l.mu.Lock()
	file, err := os.Open(l.path)
	l.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("telemetry: open log: %w", err)
	}
	defer file.Close()

	var cutoff time.Time
	if f.Since > 0 {
		cutoff = time.Now().UTC().Add(-f.Since)
	}

	var matched []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // tolerate a torn or foreign line
		}
		if !matches(e, f, cutoff) {
			continue
		}
		if e.Args != nil {
			e.Args, _ = Scrub(e.Args).(map[string]any)
		}
		matched = append(matched, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: scan log: %w", err)
	}

	// Newest first, bounded to n.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	if n > 0 && len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

func matches(e Event, f Filter, cutoff time.Time) bool {
	if !cutoff.IsZero() {
		ts, err := time.Parse(time.RFC3339Nano, e.TS)
		if err != nil || ts.Before(cutoff) {
			return false
		}
	}
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.CorrID != "" && e.CorrID != f.CorrID {
		return false
	}
	if f.OK != nil && e.OK != *f.OK {
		return false
	}
	if f.ErrorCode != "" && e.Err != f.ErrorCode {
		return false
	}
	if f.Purpose != "" {
		p, _ := e.Args["purpose"].(string)
		if p != f.Purpose {
			return false
		}
	}
	return true
}
