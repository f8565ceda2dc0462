package domain

import (
	"time"

	"github.com/prometheus/common/model"
)

// AlertState is backend-reported alert state.
// Params: active/suppressed/unprocessed constants.
// Returns: state shown on alert rows.
type AlertState string

const (
	// AlertStateActive marks firing alerts that are neither silenced nor inhibited.
	AlertStateActive AlertState = "active"
	// AlertStateSuppressed marks silenced or inhibited alerts.
	AlertStateSuppressed AlertState = "suppressed"
	// AlertStateUnprocessed marks alerts not yet processed by the backend.
	AlertStateUnprocessed AlertState = "unprocessed"
)

// AlertStatus carries backend suppression metadata.
// Params: state plus silence and inhibition references.
// Returns: opaque status passed through to rendering.
type AlertStatus struct {
	State       AlertState `json:"state"`
	SilencedBy  []string   `json:"silencedBy"`
	InhibitedBy []string   `json:"inhibitedBy"`
}

// Receiver names one notification receiver of the backend.
// Params: receiver name.
// Returns: receiver reference.
type Receiver struct {
	Name string `json:"name"`
}

// Alert is one alert instance as delivered by the backend.
// Params: fingerprint identity, label set, and opaque payload.
// Returns: alert carried unchanged through regrouping; only Labels is read.
type Alert struct {
	Fingerprint  string         `json:"fingerprint"`
	Labels       model.LabelSet `json:"labels"`
	Annotations  model.LabelSet `json:"annotations,omitempty"`
	StartsAt     time.Time      `json:"startsAt"`
	EndsAt       time.Time      `json:"endsAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	GeneratorURL string         `json:"generatorURL,omitempty"`
	Status       AlertStatus    `json:"status"`
	Receivers    []Receiver     `json:"receivers,omitempty"`
}

// Name returns the alertname label value.
// Params: none.
// Returns: alert name or empty string.
func (a Alert) Name() string {
	return string(a.Labels[model.AlertNameLabel])
}

// RawGroup is one group of alerts as produced by the backend grouping.
// Params: grouping labels (possibly empty), receiver, and ordered alerts.
// Returns: immutable engine input.
type RawGroup struct {
	Labels   model.LabelSet `json:"labels"`
	Receiver Receiver       `json:"receiver"`
	Alerts   []Alert        `json:"alerts"`
}

// DisplayGroup is one engine-computed group shown to operators.
// Params: identity labels (empty means no grouping) and ordered alerts.
// Returns: engine output unit consumed by rendering.
type DisplayGroup struct {
	Labels model.LabelSet `json:"labels"`
	Alerts []Alert        `json:"alerts"`
}

// AlertCount counts alerts across groups.
// Params: raw groups.
// Returns: total number of alerts.
func AlertCount(groups []RawGroup) int {
	total := 0
	for _, group := range groups {
		total += len(group.Alerts)
	}
	return total
}
