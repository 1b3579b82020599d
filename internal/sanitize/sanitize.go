package sanitize

import "regexp"

// The detection tool colorizes its JSON output, so string fields routinely
// arrive wrapped in terminal escape sequences. Two variants show up in the
// wild: well-formed color codes (ESC [ digits m) and truncated ones missing
// the bracket (ESC digits m). Free-text reports additionally contain bare
// "[31m" fragments left behind after the ESC byte was stripped upstream.
var (
	jsonEscape = regexp.MustCompile("\x1b\\[?\\d*m")
	textEscape = regexp.MustCompile("\x1b\\[[0-9;]*m|\\[\\d+m")
)

// String removes ANSI color escape sequences from a single string value,
// including the malformed bracket-less variant.
func String(s string) string {
	return jsonEscape.ReplaceAllString(s, "")
}

// Text removes ANSI color escape sequences from a free-text blob, also
// catching bare "[Nm" fragments that lost their ESC byte.
func Text(s string) string {
	return textEscape.ReplaceAllString(s, "")
}

// Value walks a decoded JSON value and rewrites every string leaf with
// String. Maps and slices are rebuilt; all other types pass through
// unchanged.
func Value(v any) any {
	switch val := v.(type) {
	case string:
		return String(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Value(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Value(item)
		}
		return out
	default:
		return v
	}
}
