// Package view turns regrouped alerts into operator-facing pages.
package view

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"

	"alertgroups/internal/domain"
	"alertgroups/internal/grouping"
	"alertgroups/internal/matcher"
	"alertgroups/internal/state"
)

// NoGroupingTitle labels the group of alerts sharing no selected label.
const NoGroupingTitle = "No grouping"

// Capabilities gate row actions for the viewer.
type Capabilities struct {
	Silence   bool
	SeeSource bool
}

// FetchStatus is the latest fetch outcome of a source.
// Params: last error text and time, and consecutive failure count.
// Returns: render input that marks a page stale.
type FetchStatus struct {
	LastError           string
	LastErrorAt         time.Time
	ConsecutiveFailures int
}

// Chip is one label rendered as name/value pair.
type Chip struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Actions holds links offered for one alert row.
type Actions struct {
	Silence   string `json:"silence,omitempty"`
	SeeSource string `json:"see_source,omitempty"`
}

// Row is one alert inside a display group.
type Row struct {
	Fingerprint string            `json:"fingerprint"`
	Name        string            `json:"alertname"`
	Labels      []Chip            `json:"labels"`
	Annotations map[string]string `json:"annotations,omitempty"`
	State       string            `json:"state"`
	SilencedBy  []string          `json:"silenced_by,omitempty"`
	InhibitedBy []string          `json:"inhibited_by,omitempty"`
	Receivers   []string          `json:"receivers,omitempty"`
	StartsAt    time.Time         `json:"starts_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ActiveFor   time.Duration     `json:"-"`
	Actions     Actions           `json:"actions"`
}

// Group is one collapsible display group.
type Group struct {
	Labels []Chip `json:"labels"`
	Title  string `json:"title"`
	Count  int    `json:"count"`
	Rows   []Row  `json:"rows"`
}

// MatcherError reports a matcher that failed to parse.
type MatcherError struct {
	Input   string `json:"input"`
	Message string `json:"message"`
	Offset  int    `json:"offset"`
}

// Page is the rendered state of one source for one viewer.
type Page struct {
	Source       string        `json:"source"`
	SessionID    string        `json:"session_id,omitempty"`
	Revision     string        `json:"revision,omitempty"`
	FetchedAt    *time.Time    `json:"fetched_at,omitempty"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Stale        bool          `json:"stale"`
	FetchError   string        `json:"fetch_error,omitempty"`
	MatcherError *MatcherError `json:"matcher_error,omitempty"`
	GroupBy      []string      `json:"group_by"`
	Matcher      string        `json:"matcher"`
	LabelKeys    []string      `json:"label_keys"`
	AlertCount   int           `json:"alert_count"`
	Groups       []Group       `json:"groups"`
}

// Renderer converts display groups of one source into page groups.
type Renderer struct {
	source      string
	silenceBase string
	caps        Capabilities
}

// NewRenderer creates a renderer for one source.
// Params: source name, base URL of the backend UI, and viewer capabilities.
// Returns: renderer value safe for concurrent use.
func NewRenderer(source, silenceBase string, caps Capabilities) Renderer {
	return Renderer{source: source, silenceBase: strings.TrimRight(silenceBase, "/"), caps: caps}
}

// Source returns the source name the renderer belongs to.
func (r Renderer) Source() string {
	return r.source
}

// Render regroups a snapshot without session state.
// Params: snapshot, fetch status, grouping mode, optional filter, and current time.
// Returns: complete page.
func (r Renderer) Render(snapshot state.Snapshot, status FetchStatus, mode grouping.Mode, filter matcher.Matchers, now time.Time) Page {
	var (
		f    grouping.Filter
		text string
	)
	if len(filter) > 0 {
		f = filter
		text = filter.String()
	}
	display := grouping.Regroup(snapshot.Groups, mode, f)
	return r.page(snapshot, status, mode, text, grouping.LabelKeys(snapshot.Groups), display, now)
}

// page assembles page metadata around already regrouped groups.
func (r Renderer) page(snapshot state.Snapshot, status FetchStatus, mode grouping.Mode, matcherText string, labelKeys []string, display []domain.DisplayGroup, now time.Time) Page {
	page := Page{
		Source:      r.source,
		Revision:    snapshot.Revision,
		GeneratedAt: now,
		Stale:       status.ConsecutiveFailures > 0,
		FetchError:  status.LastError,
		GroupBy:     groupByKeys(mode),
		Matcher:     matcherText,
		LabelKeys:   labelKeys,
		Groups:      make([]Group, 0, len(display)),
	}
	if page.LabelKeys == nil {
		page.LabelKeys = []string{}
	}
	if !snapshot.FetchedAt.IsZero() {
		fetchedAt := snapshot.FetchedAt
		page.FetchedAt = &fetchedAt
	}
	if status.ConsecutiveFailures == 0 {
		page.FetchError = ""
	}
	for _, group := range display {
		rendered := r.group(group, now)
		page.AlertCount += rendered.Count
		page.Groups = append(page.Groups, rendered)
	}
	return page
}

func groupByKeys(mode grouping.Mode) []string {
	if keys := mode.Keys(); keys != nil {
		return keys
	}
	return []string{}
}

// group renders one display group with title and rows.
func (r Renderer) group(group domain.DisplayGroup, now time.Time) Group {
	out := Group{
		Labels: Chips(group.Labels),
		Count:  len(group.Alerts),
		Rows:   make([]Row, 0, len(group.Alerts)),
	}
	if len(out.Labels) == 0 {
		out.Title = NoGroupingTitle
	} else {
		out.Title = ChipsString(out.Labels)
	}
	for _, alert := range group.Alerts {
		out.Rows = append(out.Rows, r.row(alert, now))
	}
	return out
}

// row renders one alert with capability-gated actions.
func (r Renderer) row(alert domain.Alert, now time.Time) Row {
	row := Row{
		Fingerprint: alert.Fingerprint,
		Name:        alert.Name(),
		Labels:      Chips(alert.Labels),
		State:       string(alert.Status.State),
		SilencedBy:  alert.Status.SilencedBy,
		InhibitedBy: alert.Status.InhibitedBy,
		StartsAt:    alert.StartsAt,
		UpdatedAt:   alert.UpdatedAt,
	}
	if len(alert.Annotations) > 0 {
		row.Annotations = make(map[string]string, len(alert.Annotations))
		for name, value := range alert.Annotations {
			row.Annotations[string(name)] = string(value)
		}
	}
	for _, receiver := range alert.Receivers {
		row.Receivers = append(row.Receivers, receiver.Name)
	}
	if !alert.StartsAt.IsZero() && now.After(alert.StartsAt) {
		row.ActiveFor = now.Sub(alert.StartsAt)
	}
	if r.caps.Silence && r.silenceBase != "" && len(alert.Labels) > 0 {
		row.Actions.Silence = SilenceURL(r.silenceBase, alert.Labels)
	}
	if r.caps.SeeSource && alert.GeneratorURL != "" {
		row.Actions.SeeSource = alert.GeneratorURL
	}
	return row
}

// SilenceURL links into the backend silence editor prefilled with labels.
// Params: backend UI base URL and alert labels.
// Returns: `{base}/#/silences/new?filter=<escaped matchers>`.
func SilenceURL(base string, labels model.LabelSet) string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, string(name))
	}
	sort.Strings(names)
	matchers := make(matcher.Matchers, 0, len(names))
	for _, name := range names {
		m, err := matcher.NewMatcher(matcher.MatchEqual, model.LabelName(name), string(labels[model.LabelName(name)]))
		if err != nil {
			continue
		}
		matchers = append(matchers, m)
	}
	return strings.TrimRight(base, "/") + "/#/silences/new?filter=" + url.QueryEscape(matchers.String())
}

// Chips renders labels as a name-sorted chip list.
func Chips(labels model.LabelSet) []Chip {
	chips := make([]Chip, 0, len(labels))
	for name, value := range labels {
		chips = append(chips, Chip{Name: string(name), Value: string(value)})
	}
	sort.Slice(chips, func(i, j int) bool { return chips[i].Name < chips[j].Name })
	return chips
}

// ChipsString joins chips as `name="value"` separated by commas.
func ChipsString(chips []Chip) string {
	parts := make([]string, 0, len(chips))
	for _, chip := range chips {
		parts = append(parts, chip.Name+"="+strconv.Quote(chip.Value))
	}
	return strings.Join(parts, ", ")
}
