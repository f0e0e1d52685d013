// Package tokenizer extracts named fields from raw log lines.
//
// Two structured formats are supported:
//   - logfmt: key=value pairs with optional double-quoted values
//   - JSON: objects flattened to dot-separated paths
//
// Field keys and values are kept verbatim; query evaluation decides how to
// compare them.
package tokenizer

const (
	// MaxKeyLength caps extracted key lengths. Longer keys are skipped.
	MaxKeyLength = 128

	// MaxValueLength caps extracted value lengths. Longer values are skipped.
	MaxValueLength = 4096

	// MaxPathDepth caps JSON nesting depth during flattening.
	MaxPathDepth = 16
)

// IsWhitespace returns true if c is ASCII whitespace.
func IsWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// skipSpaces returns the index of the first non-whitespace byte.
func skipSpaces(msg []byte) int {
	i := 0
	for i < len(msg) && IsWhitespace(msg[i]) {
		i++
	}
	return i
}
