package policy

import "strings"

// RedactedToken replaces every field value matched by a redact path.
const RedactedToken = "[REDACTED]"

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// redactPath walks node along the dotted path and replaces terminal
// matches with RedactedToken, returning the number of replacements.
//
// Maps descend by key. When the current node is a list, the remaining
// path applies to every element — this is what lets a single path like
// "records.kcalories" minimize one field across many records.
// Paths that do not resolve are silent no-ops.
func redactPath(node any, path []string) int {
	if len(path) == 0 {
		return 0
	}

	switch n := node.(type) {
	case map[string]any:
		key := path[0]
		child, ok := n[key]
		if !ok {
			return 0
		}
		if len(path) == 1 {
			n[key] = RedactedToken
			return 1
		}
		return redactPath(child, path[1:])
	case []any:
		count := 0
		for _, elem := range n {
			count += redactPath(elem, path)
		}
		return count
	default:
		return 0
	}
}

// deepCopy clones a JSON-shaped value (maps, slices, scalars) so that
// redaction never aliases the caller's structure.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
