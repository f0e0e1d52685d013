package querylang

import "strings"

// Parse parses the text form of a query into its AST.
//
// The input is split on pipe characters (outside quotes) into stages,
// recognized left to right: an optional leading format stage (json or
// logfmt; absent means plain), any number of filter clauses, and an
// optional trailing aggregation ("count by (...)", optionally followed
// by "top N"). Errors carry the stage index and byte offset.
func Parse(input string) (*Query, error) {
	stages := splitStages(input)

	q := &Query{Format: FormatPlain}
	i := 0

	if len(stages) == 0 || (len(stages) == 1 && strings.TrimSpace(stages[0].text) == "") {
		return nil, newParseError(0, 0, ErrEmptyQuery, "empty query")
	}

	switch strings.TrimSpace(stages[0].text) {
	case "json":
		q.Format = FormatJSON
		i++
	case "logfmt":
		q.Format = FormatLogfmt
		i++
	case "plain":
		q.Format = FormatPlain
		i++
	}

	for ; i < len(stages); i++ {
		st := stages[i]
		s := &scanner{src: st.text, base: st.start, stage: st.index}
		s.skipSpace()

		if s.eof() {
			return nil, newParseError(st.start, st.index, ErrUnknownStage, "empty stage")
		}

		if q.Aggregate != nil {
			if q.Aggregate.Limit == 0 && s.peekWord("top") {
				n, err := s.parseTop()
				if err != nil {
					return nil, err
				}
				q.Aggregate.Limit = n
				continue
			}
			return nil, newParseError(s.abs(), st.index, ErrTrailingStage,
				"unexpected stage after aggregation: %q", strings.TrimSpace(st.text))
		}

		if s.peekWord("count") {
			agg, err := s.parseCountBy()
			if err != nil {
				return nil, err
			}
			q.Aggregate = agg
			continue
		}

		f, err := s.parseClause()
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, f)
	}

	return q, nil
}

// pipeStage is one pipe-separated segment of the input, with its offset
// preserved for error reporting.
type pipeStage struct {
	text  string
	start int
	index int
}

// splitStages splits the input on '|' outside quoted strings.
func splitStages(input string) []pipeStage {
	var stages []pipeStage
	start := 0
	var quote byte

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '|':
			stages = append(stages, pipeStage{text: input[start:i], start: start, index: len(stages)})
			start = i + 1
		}
	}
	stages = append(stages, pipeStage{text: input[start:], start: start, index: len(stages)})
	return stages
}

// scanner walks one stage's text, reporting errors with absolute offsets.
type scanner struct {
	src   string
	pos   int
	base  int
	stage int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

// abs is the current absolute byte offset in the original input.
func (s *scanner) abs() int { return s.base + s.pos }

func (s *scanner) skipSpace() {
	for !s.eof() && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
}

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) consumeStr(lit string) bool {
	if strings.HasPrefix(s.src[s.pos:], lit) {
		s.pos += len(lit)
		return true
	}
	return false
}

// peekWord reports whether the next token is exactly word, delimited by
// whitespace or end of stage.
func (s *scanner) peekWord(word string) bool {
	rest := s.src[s.pos:]
	if !strings.HasPrefix(rest, word) {
		return false
	}
	if len(rest) == len(word) {
		return true
	}
	c := rest[len(word)]
	return c == ' ' || c == '\t' || c == '('
}

func (s *scanner) consumeWord(word string) bool {
	if s.peekWord(word) {
		s.pos += len(word)
		return true
	}
	return false
}

// parseClause parses one "field op value" filter stage.
func (s *scanner) parseClause() (Filter, error) {
	field, err := s.parseFieldName()
	if err != nil {
		return Filter{}, err
	}
	s.skipSpace()

	op, err := s.parseOperator()
	if err != nil {
		return Filter{}, err
	}
	s.skipSpace()

	value, err := s.parseValue()
	if err != nil {
		return Filter{}, err
	}

	s.skipSpace()
	if !s.eof() {
		return Filter{}, newParseError(s.abs(), s.stage, ErrUnknownStage,
			"unexpected text after clause: %q", s.src[s.pos:])
	}

	return Filter{Field: field, Op: op, Value: value}, nil
}

// parseFieldName reads a field name: letters, digits, underscores, and dots
// (dots address nested JSON fields).
func (s *scanner) parseFieldName() (string, error) {
	start := s.pos
	for !s.eof() && isFieldChar(s.src[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		return "", newParseError(s.abs(), s.stage, ErrExpectedField,
			"expected field name")
	}
	return s.src[start:s.pos], nil
}

func isFieldChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c == '.'
}

func (s *scanner) parseOperator() (Op, error) {
	switch {
	case s.consumeStr("=="):
		return OpEq, nil
	case s.consumeStr("!="):
		return OpNe, nil
	case s.consumeStr("=~"), s.consumeStr("~="):
		return OpRegex, nil
	case s.consumeStr("!~"):
		return OpNotRegex, nil
	case s.consumeStr(">="):
		return OpGte, nil
	case s.consumeStr("<="):
		return OpLte, nil
	case s.consumeStr(">"):
		return OpGt, nil
	case s.consumeStr("<"):
		return OpLt, nil
	case s.consumeWord("contains"):
		return OpContains, nil
	}
	return 0, newParseError(s.abs(), s.stage, ErrExpectedOperator,
		"expected operator (==, !=, =~, !~, >, <, >=, <=, contains)")
}

func (s *scanner) parseValue() (string, error) {
	if s.eof() {
		return "", newParseError(s.abs(), s.stage, ErrExpectedValue, "expected value")
	}
	if c := s.peek(); c == '"' || c == '\'' {
		return s.parseQuoted(c)
	}
	return s.parseBareValue()
}

func (s *scanner) parseQuoted(quote byte) (string, error) {
	openPos := s.abs()
	s.pos++ // opening quote

	var b strings.Builder
	for !s.eof() {
		c := s.src[s.pos]
		s.pos++
		switch {
		case c == quote:
			return b.String(), nil
		case c == '\\' && !s.eof():
			esc := s.src[s.pos]
			s.pos++
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\'', '\\':
				b.WriteByte(esc)
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", newParseError(openPos, s.stage, ErrUnterminatedString, "unterminated string")
}

func (s *scanner) parseBareValue() (string, error) {
	start := s.pos
	for !s.eof() && s.src[s.pos] != ' ' && s.src[s.pos] != '\t' {
		s.pos++
	}
	if s.pos == start {
		return "", newParseError(s.abs(), s.stage, ErrExpectedValue, "expected value")
	}
	return s.src[start:s.pos], nil
}

// parseCountBy parses "count by (field, field, ...)".
func (s *scanner) parseCountBy() (*Aggregation, error) {
	s.consumeWord("count")
	s.skipSpace()

	if !s.consumeWord("by") {
		return nil, newParseError(s.abs(), s.stage, ErrBadAggregation,
			"expected 'by' after 'count'")
	}
	s.skipSpace()

	if s.peek() != '(' {
		return nil, newParseError(s.abs(), s.stage, ErrBadAggregation,
			"expected '(' after 'by'")
	}
	s.pos++

	var fields []string
	for {
		s.skipSpace()
		field, err := s.parseFieldName()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
		s.skipSpace()

		if s.peek() == ')' {
			s.pos++
			break
		}
		if s.peek() != ',' {
			return nil, newParseError(s.abs(), s.stage, ErrBadAggregation,
				"expected ',' or ')' in field list")
		}
		s.pos++
	}

	s.skipSpace()
	if !s.eof() {
		return nil, newParseError(s.abs(), s.stage, ErrUnknownStage,
			"unexpected text after aggregation: %q", s.src[s.pos:])
	}

	return &Aggregation{Fields: fields}, nil
}

// parseTop parses "top N".
func (s *scanner) parseTop() (int, error) {
	s.consumeWord("top")
	s.skipSpace()

	start := s.pos
	n := 0
	for !s.eof() && s.src[s.pos] >= '0' && s.src[s.pos] <= '9' {
		n = n*10 + int(s.src[s.pos]-'0')
		s.pos++
	}
	if s.pos == start || n == 0 {
		return 0, newParseError(s.abs(), s.stage, ErrBadAggregation,
			"expected positive count after 'top'")
	}

	s.skipSpace()
	if !s.eof() {
		return 0, newParseError(s.abs(), s.stage, ErrUnknownStage,
			"unexpected text after top: %q", s.src[s.pos:])
	}
	return n, nil
}
