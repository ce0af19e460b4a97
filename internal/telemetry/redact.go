package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Scrubbed replaces any value matched by the secret or PII key sets.
const Scrubbed = "[SCRUBBED]"

// secretKeys are credential-like keys replaced outright wherever they
// appear.
var secretKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"credential":    true,
	"secret":        true,
	"api_key":       true,
	"authorization": true,
	"password":      true,
}

// piiKeys are identifier-like keys replaced regardless of nesting
// depth or list membership.
var piiKeys = map[string]bool{
	"user_id":            true,
	"email":              true,
	"player_id":          true,
	"external_player_id": true,
	"subject":            true,
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return secretKeys[k] || piiKeys[k]
}

// Scrub returns a deep copy of v with every secret-like and PII-like
// key's value replaced. Two independent passes in spirit, one walk in
// practice: both key sets are checked at every node.
func Scrub(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveKey(k) {
				out[k] = Scrubbed
				continue
			}
			out[k] = Scrub(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Scrub(val)
		}
		return out
	default:
		return v
	}
}

// SubjectHash computes the salted pseudonymous digest of a raw subject
// identifier. It is one-way: events can be linked by subject without
// the identifier ever being stored.
func SubjectHash(salt, raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + raw))
	return hex.EncodeToString(sum[:])
}
