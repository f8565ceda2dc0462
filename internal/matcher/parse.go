package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/common/model"
)

// ParseError describes malformed matcher text.
// Params: original input, byte offset of the failure, and reason.
// Returns: error surfaced next to the current view.
type ParseError struct {
	Input  string
	Offset int
	Reason string
}

// Error renders parse failure with position.
func (e *ParseError) Error() string {
	return fmt.Sprintf("bad matcher at offset %d: %s", e.Offset, e.Reason)
}

// Parse compiles matcher text such as `{env="prod", app=~"api.*"}` or `env=prod,app!=web`.
// Params: raw operator text.
// Returns: matchers (nil for blank text) or *ParseError.
func Parse(text string) (Matchers, error) {
	p := &parser{input: text, end: len(text)}
	p.skipSpace()
	if p.pos == p.end {
		return nil, nil
	}

	if p.input[p.pos] == '{' {
		closing := strings.LastIndexByte(text, '}')
		if closing < 0 || strings.TrimSpace(text[closing+1:]) != "" {
			return nil, p.fail(p.pos, "unclosed '{'")
		}
		p.pos++
		p.end = closing
	}

	var out Matchers
	for {
		p.skipSpace()
		if p.pos == p.end {
			break
		}
		m, err := p.parseMatcher()
		if err != nil {
			return nil, err
		}
		out = append(out, m)

		p.skipSpace()
		if p.pos == p.end {
			break
		}
		if p.input[p.pos] != ',' {
			return nil, p.fail(p.pos, fmt.Sprintf("expected ',' but found %q", p.input[p.pos]))
		}
		p.pos++
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

type parser struct {
	input string
	pos   int
	end   int
}

func (p *parser) fail(offset int, reason string) *ParseError {
	return &ParseError{Input: p.input, Offset: offset, Reason: reason}
}

func (p *parser) skipSpace() {
	for p.pos < p.end && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

// parseMatcher reads `name op value` starting at current position.
func (p *parser) parseMatcher() (*Matcher, error) {
	nameStart := p.pos
	var name string
	if p.input[p.pos] == '"' {
		quoted, err := p.readQuoted()
		if err != nil {
			return nil, err
		}
		name = quoted
	} else {
		for p.pos < p.end && !strings.ContainsRune(" \t\r\n=!~,{}\"", rune(p.input[p.pos])) {
			p.pos++
		}
		name = p.input[nameStart:p.pos]
	}
	if name == "" {
		return nil, p.fail(nameStart, "label name is required")
	}

	p.skipSpace()
	opStart := p.pos
	matchType, ok := p.readOperator()
	if !ok {
		return nil, p.fail(opStart, "expected one of =, !=, =~, !~")
	}

	p.skipSpace()
	valueStart := p.pos
	var value string
	if p.pos < p.end && p.input[p.pos] == '"' {
		quoted, err := p.readQuoted()
		if err != nil {
			return nil, err
		}
		value = quoted
	} else {
		for p.pos < p.end && p.input[p.pos] != ',' {
			if p.input[p.pos] == '"' {
				return nil, p.fail(p.pos, "unexpected '\"' in unquoted value")
			}
			p.pos++
		}
		value = strings.TrimSpace(p.input[valueStart:p.pos])
	}

	m, err := NewMatcher(matchType, model.LabelName(name), value)
	if err != nil {
		return nil, p.fail(valueStart, fmt.Sprintf("invalid regexp %q: %v", value, err))
	}
	return m, nil
}

func (p *parser) readOperator() (MatchType, bool) {
	rest := p.input[p.pos:p.end]
	switch {
	case strings.HasPrefix(rest, "=~"):
		p.pos += 2
		return MatchRegexp, true
	case strings.HasPrefix(rest, "!~"):
		p.pos += 2
		return MatchNotRegexp, true
	case strings.HasPrefix(rest, "!="):
		p.pos += 2
		return MatchNotEqual, true
	case strings.HasPrefix(rest, "="):
		p.pos++
		return MatchEqual, true
	}
	return 0, false
}

// readQuoted consumes one double-quoted Go string literal.
func (p *parser) readQuoted() (string, error) {
	start := p.pos
	for i := start + 1; i < p.end; i++ {
		switch p.input[i] {
		case '\\':
			i++
		case '"':
			unquoted, err := strconv.Unquote(p.input[start : i+1])
			if err != nil {
				return "", p.fail(start, "invalid quoted string")
			}
			p.pos = i + 1
			return unquoted, nil
		}
	}
	return "", p.fail(start, "unterminated quoted string")
}
