package tokenizer

import "bytes"

// ExtractLogfmt parses a log line as logfmt and returns its key=value pairs.
// Returns nil if the line does not appear to be logfmt.
//
// Logfmt grammar (per kr/logfmt):
//
//	key   := ident
//	value := ident | '"' quoted_string '"'
//	ident := byte > ' ', excluding '=' and '"'
//	pair  := key '=' value | key '=' | key (bare key → true)
//
// Keys may contain hyphens, colons, slashes, and other printable characters.
// Bare keys (without '=') map to "true". Duplicate keys keep the last value.
func ExtractLogfmt(msg []byte) map[string]string {
	if !isLogfmt(msg) {
		return nil
	}

	var fields map[string]string
	i := 0

	for i < len(msg) {
		for i < len(msg) && IsWhitespace(msg[i]) {
			i++
		}
		if i >= len(msg) {
			break
		}

		keyStart, keyEnd, next := parseLogfmtKey(msg, i)
		i = next

		keyLen := keyEnd - keyStart
		if keyLen == 0 {
			i++
			continue
		}
		if keyLen > MaxKeyLength {
			for i < len(msg) && !IsWhitespace(msg[i]) {
				i++
			}
			continue
		}

		if i >= len(msg) || msg[i] != '=' {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[string(msg[keyStart:keyEnd])] = "true"
			continue
		}
		i++ // skip '='

		if i >= len(msg) || IsWhitespace(msg[i]) {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[string(msg[keyStart:keyEnd])] = ""
			continue
		}

		value, ok, next := parseLogfmtValue(msg, i)
		i = next
		if !ok {
			continue
		}

		if fields == nil {
			fields = make(map[string]string)
		}
		fields[string(msg[keyStart:keyEnd])] = value
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func isLogfmt(msg []byte) bool {
	if len(msg) == 0 {
		return false
	}
	first := skipSpaces(msg)
	if first < len(msg) && (msg[first] == '{' || msg[first] == '[') {
		return false
	}
	return bytes.IndexByte(msg, '=') >= 0
}

func parseLogfmtKey(msg []byte, i int) (keyStart, keyEnd, next int) {
	keyStart = i
	for i < len(msg) && msg[i] > ' ' && msg[i] != '=' && msg[i] != '"' {
		i++
	}
	return keyStart, i, i
}

func parseLogfmtValue(msg []byte, i int) (string, bool, int) {
	if msg[i] == '"' {
		return parseLogfmtQuotedValue(msg, i)
	}
	return parseLogfmtUnquotedValue(msg, i)
}

func parseLogfmtQuotedValue(msg []byte, i int) (string, bool, int) {
	i++ // skip opening quote
	var buf []byte
	for i < len(msg) && msg[i] != '"' {
		if msg[i] == '\\' && i+1 < len(msg) && (msg[i+1] == '"' || msg[i+1] == '\\') {
			buf = append(buf, msg[i+1])
			i += 2
			continue
		}
		buf = append(buf, msg[i])
		i++
	}
	if i < len(msg) {
		i++ // skip closing quote
	}
	if len(buf) > MaxValueLength {
		return "", false, i
	}
	return string(buf), true, i
}

func parseLogfmtUnquotedValue(msg []byte, i int) (string, bool, int) {
	valStart := i
	for i < len(msg) && msg[i] > ' ' && msg[i] != '=' && msg[i] != '"' {
		i++
	}
	valLen := i - valStart
	if valLen == 0 || valLen > MaxValueLength {
		return "", false, i
	}
	return string(msg[valStart:i]), true, i
}
