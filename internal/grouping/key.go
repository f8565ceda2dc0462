package grouping

import (
	"sort"
	"strconv"

	"github.com/prometheus/common/model"
)

// GroupKey is an order-independent, comparable identity of one label set.
// Params: canonical encoding and grouped marker.
// Returns: map-key friendly group identity.
type GroupKey struct {
	canonical string
	grouped   bool
}

// NoGrouping is the identity of the empty label set.
// No non-empty label set canonicalizes to it.
var NoGrouping = GroupKey{}

// IsNoGrouping reports whether key identifies the empty label set.
// Params: none.
// Returns: true for the no-grouping bucket.
func (k GroupKey) IsNoGrouping() bool {
	return !k.grouped
}

// String renders key for logs.
// Params: none.
// Returns: canonical encoding or "<no grouping>".
func (k GroupKey) String() string {
	if !k.grouped {
		return "<no grouping>"
	}
	return k.canonical
}

// CanonicalKey builds group identity from labels regardless of insertion order.
// Params: label set (nil or empty means no grouping).
// Returns: comparable key; equal label sets produce equal keys.
func CanonicalKey(labels model.LabelSet) GroupKey {
	if len(labels) == 0 {
		return NoGrouping
	}

	names := make([]string, 0, len(labels))
	capacity := 0
	for name, value := range labels {
		names = append(names, string(name))
		capacity += len(name) + len(value) + 6
	}
	sort.Strings(names)

	canonical := make([]byte, 0, capacity)
	for index, name := range names {
		if index > 0 {
			canonical = append(canonical, ',')
		}
		canonical = strconv.AppendQuote(canonical, name)
		canonical = append(canonical, '=')
		canonical = strconv.AppendQuote(canonical, string(labels[model.LabelName(name)]))
	}
	return GroupKey{canonical: string(canonical), grouped: true}
}
