// Package colindex derives per-line categorical metadata from raw log lines
// and stores it as one bitmap per category. Severity-only filters and
// histograms are answered from the bitmaps without re-reading file content.
package colindex

// Severity is a normalized log level inferred from line content.
type Severity uint8

const (
	Unknown Severity = iota
	Trace
	Debug
	Info
	Warn
	Error
	Fatal

	numSeverities
)

func (s Severity) String() string {
	switch s {
	case Trace:
		return "trace"
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Severities lists all classifications in ascending order, Unknown first.
func Severities() []Severity {
	return []Severity{Unknown, Trace, Debug, Info, Warn, Error, Fatal}
}

// ParseSeverity normalizes a level token ("WARNING", "crit", "err", ...) to
// a Severity. ok is false for tokens that are not level-like at all.
func ParseSeverity(val string) (Severity, bool) {
	// Fast ASCII lowercase; level tokens are short.
	lower := make([]byte, len(val))
	for i := 0; i < len(val); i++ {
		c := val[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}

	switch string(lower) {
	case "error", "err":
		return Error, true
	case "fatal", "critical", "crit", "emerg", "emergency", "alert", "panic":
		return Fatal, true
	case "warn", "warning":
		return Warn, true
	case "info", "notice", "informational":
		return Info, true
	case "debug":
		return Debug, true
	case "trace":
		return Trace, true
	default:
		return Unknown, false
	}
}
