package colindex

import (
	"lazytail/internal/tokenizer"
)

// classifyScanLen bounds how far into a line plain-word severity scanning
// looks. Levels live near the front of a log line; scanning the whole line
// would misclassify lines that merely mention "error" in a message body far
// from any level position.
const classifyScanLen = 80

// Classify infers a severity from raw line bytes. It recognizes, in order:
//
//   - JSON and logfmt level fields:  {"level":"warn"}, level=ERROR
//   - syslog priority prefixes:     <11> → severity from priority % 8
//   - a bare severity word near the start of the line: ERROR something broke
//
// Structured lines go through the same field extraction as query evaluation,
// so a line whose level field equals some severity token is always recorded
// under that severity. Filter jobs rely on this when they intersect candidate
// lines with a severity bitmap before evaluating the full predicate.
//
// Lines are immutable once appended, so a classification never needs to be
// revisited.
func Classify(line []byte) Severity {
	if fields, ok := tokenizer.FlattenJSON(line); ok {
		if sev, ok := severityFromFields(fields); ok {
			return sev
		}
	} else if fields := tokenizer.ExtractLogfmt(line); fields != nil {
		if sev, ok := severityFromFields(fields); ok {
			return sev
		}
	}
	if sev := classifySyslogPriority(line); sev != Unknown {
		return sev
	}
	return classifySeverityWord(line)
}

func severityFromFields(fields map[string]string) (Severity, bool) {
	if v, ok := fields["level"]; ok {
		if sev, ok := ParseSeverity(v); ok {
			return sev, true
		}
	}
	if v, ok := fields["severity"]; ok {
		if sev, ok := ParseSeverity(v); ok {
			return sev, true
		}
	}
	return Unknown, false
}

// classifySyslogPriority parses <priority> at the start of a message and
// derives severity from priority % 8.
func classifySyslogPriority(line []byte) Severity {
	if len(line) < 3 || line[0] != '<' {
		return Unknown
	}

	i := 1
	for i < len(line) && i < 5 && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 1 || i >= len(line) || line[i] != '>' {
		return Unknown
	}

	priority := 0
	for _, b := range line[1:i] {
		priority = priority*10 + int(b-'0')
	}

	switch priority % 8 {
	case 0, 1, 2: // emerg, alert, crit
		return Fatal
	case 3: // err
		return Error
	case 4: // warning
		return Warn
	case 5, 6: // notice, info
		return Info
	case 7: // debug
		return Debug
	}
	return Unknown
}

// classifySeverityWord scans word tokens near the front of the line and
// returns the first one that parses as a severity. Handles the common
// "ERROR something went wrong" and "2024-01-01 [WARN] ..." shapes.
func classifySeverityWord(line []byte) Severity {
	limit := len(line)
	if limit > classifyScanLen {
		limit = classifyScanLen
	}

	i := 0
	for i < limit {
		for i < limit && !isLetter(line[i]) {
			i++
		}
		start := i
		for i < limit && isWordChar(line[i]) {
			i++
		}
		if i > start {
			if sev, ok := ParseSeverity(string(line[start:i])); ok {
				return sev
			}
		}
		i++
	}
	return Unknown
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}
