package grouping

import (
	"slices"
	"strings"

	"github.com/prometheus/common/model"
)

// Mode selects how alerts are partitioned into display groups.
// The zero value is the default mode that keeps backend grouping.
type Mode struct {
	keys []model.LabelName
}

// Default returns the mode that inherits each raw group's labels.
func Default() Mode {
	return Mode{}
}

// Custom returns a mode grouping by the given label keys.
// Params: operator-selected keys; blanks and duplicates are dropped, order is kept.
// Returns: custom mode, or the default mode when no key remains.
func Custom(keys ...string) Mode {
	seen := make(map[string]struct{}, len(keys))
	selected := make([]model.LabelName, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		selected = append(selected, model.LabelName(key))
	}
	if len(selected) == 0 {
		return Mode{}
	}
	return Mode{keys: selected}
}

// IsDefault reports whether mode keeps backend grouping.
func (m Mode) IsDefault() bool {
	return len(m.keys) == 0
}

// Keys returns selected label keys in operator order.
// Params: none.
// Returns: copy of keys, nil for the default mode.
func (m Mode) Keys() []string {
	if len(m.keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(m.keys))
	for _, key := range m.keys {
		out = append(out, string(key))
	}
	return out
}

// Equal reports whether both modes select the same keys in the same order.
func (m Mode) Equal(other Mode) bool {
	return slices.Equal(m.keys, other.keys)
}

// String renders mode for logs.
func (m Mode) String() string {
	if m.IsDefault() {
		return "default"
	}
	return "custom(" + strings.Join(m.Keys(), ",") + ")"
}
