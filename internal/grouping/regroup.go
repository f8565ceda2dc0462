package grouping

import (
	"github.com/prometheus/common/model"

	"alertgroups/internal/domain"
)

// Filter decides whether an alert stays in the stream before grouping.
// Params: alert label set.
// Returns: true to keep the alert.
type Filter interface {
	Matches(labels model.LabelSet) bool
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(labels model.LabelSet) bool

// Matches calls f.
func (f FilterFunc) Matches(labels model.LabelSet) bool {
	return f(labels)
}

type bucket struct {
	labels model.LabelSet
	alerts []domain.Alert
}

// Regroup partitions raw groups into ordered display groups.
// Params: raw groups in backend order, grouping mode, and optional filter (nil keeps all alerts).
// Returns: display groups ordered by first occurrence of each key in flattened alert order.
func Regroup(raw []domain.RawGroup, mode Mode, filter Filter) []domain.DisplayGroup {
	index := make(map[GroupKey]int)
	buckets := make([]*bucket, 0)

	for _, group := range raw {
		var (
			groupKey    GroupKey
			groupLabels model.LabelSet
		)
		if mode.IsDefault() {
			groupKey = CanonicalKey(group.Labels)
			groupLabels = group.Labels
		}

		for _, alert := range group.Alerts {
			if filter != nil && !filter.Matches(alert.Labels) {
				continue
			}

			key, labels := groupKey, groupLabels
			if !mode.IsDefault() {
				labels = Project(alert.Labels, mode.keys)
				key = CanonicalKey(labels)
			}

			position, ok := index[key]
			if !ok {
				position = len(buckets)
				index[key] = position
				buckets = append(buckets, &bucket{labels: labels.Clone()})
			}
			buckets[position].alerts = append(buckets[position].alerts, alert)
		}
	}

	out := make([]domain.DisplayGroup, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, domain.DisplayGroup{Labels: b.labels, Alerts: b.alerts})
	}
	return out
}
