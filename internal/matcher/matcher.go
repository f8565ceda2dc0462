package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/common/model"
)

// MatchType is the comparison operator of one matcher.
type MatchType int

const (
	// MatchEqual requires exact value equality.
	MatchEqual MatchType = iota
	// MatchNotEqual requires value inequality.
	MatchNotEqual
	// MatchRegexp requires a full regexp match.
	MatchRegexp
	// MatchNotRegexp requires the full regexp not to match.
	MatchNotRegexp
)

var matchTypeText = map[MatchType]string{
	MatchEqual:     "=",
	MatchNotEqual:  "!=",
	MatchRegexp:    "=~",
	MatchNotRegexp: "!~",
}

// String returns operator text.
func (t MatchType) String() string {
	if text, ok := matchTypeText[t]; ok {
		return text
	}
	return fmt.Sprintf("MatchType(%d)", int(t))
}

// Matcher tests one label value.
// Params: operator, label name, operand, and compiled regexp for regexp operators.
// Returns: one predicate over a label value.
type Matcher struct {
	Type  MatchType
	Name  model.LabelName
	Value string

	re *regexp.Regexp
}

// NewMatcher builds one matcher, compiling anchored regexp for regexp operators.
// Params: operator, label name, and operand.
// Returns: matcher or regexp compile error.
func NewMatcher(matchType MatchType, name model.LabelName, value string) (*Matcher, error) {
	m := &Matcher{Type: matchType, Name: name, Value: value}
	if matchType == MatchRegexp || matchType == MatchNotRegexp {
		compiled, err := regexp.Compile("^(?:" + value + ")$")
		if err != nil {
			return nil, err
		}
		m.re = compiled
	}
	return m, nil
}

// Matches evaluates matcher against one label value.
// Params: label value (empty when label is absent).
// Returns: predicate result.
func (m *Matcher) Matches(value string) bool {
	switch m.Type {
	case MatchEqual:
		return value == m.Value
	case MatchNotEqual:
		return value != m.Value
	case MatchRegexp:
		return m.re.MatchString(value)
	case MatchNotRegexp:
		return !m.re.MatchString(value)
	}
	return false
}

// String renders matcher in canonical form.
func (m *Matcher) String() string {
	return string(m.Name) + m.Type.String() + strconv.Quote(m.Value)
}

// Matchers is a conjunction of matchers.
type Matchers []*Matcher

// Matches reports whether all matchers accept labels.
// Params: alert label set; absent labels compare as empty values.
// Returns: true when every matcher matches.
func (ms Matchers) Matches(labels model.LabelSet) bool {
	for _, m := range ms {
		if !m.Matches(string(labels[m.Name])) {
			return false
		}
	}
	return true
}

// String renders matchers as `{a="b", c!="d"}`.
func (ms Matchers) String() string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, m.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
