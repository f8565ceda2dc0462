package grouping

import (
	"sort"

	"github.com/prometheus/common/model"

	"alertgroups/internal/domain"
)

// Project restricts labels to the selected keys.
// Params: alert label set and selected label names.
// Returns: non-nil sub-set with keys present in both; missing keys are absent, not empty.
func Project(labels model.LabelSet, keys []model.LabelName) model.LabelSet {
	projected := make(model.LabelSet, len(keys))
	for _, key := range keys {
		if value, ok := labels[key]; ok {
			projected[key] = value
		}
	}
	return projected
}

// LabelKeys collects distinct label names over all alerts.
// Params: raw groups.
// Returns: sorted label names offered as group-by suggestions.
func LabelKeys(groups []domain.RawGroup) []string {
	seen := make(map[model.LabelName]struct{})
	for _, group := range groups {
		for _, alert := range group.Alerts {
			for name := range alert.Labels {
				seen[name] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for name := range seen {
		keys = append(keys, string(name))
	}
	sort.Strings(keys)
	return keys
}
