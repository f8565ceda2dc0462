package view

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/model"

	"alertgroups/internal/domain"
	"alertgroups/internal/grouping"
	"alertgroups/internal/matcher"
	"alertgroups/internal/state"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func alert(fp string, labels model.LabelSet) domain.Alert {
	return domain.Alert{
		Fingerprint:  fp,
		Labels:       labels,
		StartsAt:     testNow.Add(-5 * time.Minute),
		GeneratorURL: "http://prometheus/graph?fp=" + fp,
		Status:       domain.AlertStatus{State: domain.AlertStateActive},
	}
}

// testSnapshot holds two backend groups with three alerts.
func testSnapshot(revision string) state.Snapshot {
	return state.Snapshot{
		Source:    "prod",
		Revision:  revision,
		FetchedAt: testNow.Add(-time.Minute),
		Groups: []domain.RawGroup{
			{
				Labels: model.LabelSet{"alertname": "Foo"},
				Alerts: []domain.Alert{
					alert("foo-1", model.LabelSet{"alertname": "Foo", "appName": "app1", "env": "prod", "uniqueLabel": "true"}),
					alert("foo-2", model.LabelSet{"alertname": "Foo", "appName": "app2", "env": "staging"}),
				},
			},
			{
				Labels: model.LabelSet{"alertname": "Bar"},
				Alerts: []domain.Alert{
					alert("bar-1", model.LabelSet{"alertname": "Bar", "appName": "app1", "env": "prod"}),
				},
			},
		},
	}
}

func allCaps() Capabilities {
	return Capabilities{Silence: true, SeeSource: true}
}

func titles(page Page) []string {
	out := make([]string, 0, len(page.Groups))
	for _, group := range page.Groups {
		out = append(out, group.Title)
	}
	return out
}

func TestRenderDefaultKeepsBackendGroups(t *testing.T) {
	t.Parallel()

	r := NewRenderer("prod", "https://am.example.com/", allCaps())
	page := r.Render(testSnapshot("r1"), FetchStatus{}, grouping.Default(), nil, testNow)

	if diff := cmp.Diff([]string{`alertname="Foo"`, `alertname="Bar"`}, titles(page)); diff != "" {
		t.Fatalf("titles mismatch (-want +got):\n%s", diff)
	}
	if page.AlertCount != 3 || page.Groups[0].Count != 2 {
		t.Fatalf("unexpected counts total=%d first=%d", page.AlertCount, page.Groups[0].Count)
	}
	if page.Matcher != "" || len(page.GroupBy) != 0 {
		t.Fatalf("expected no filters, got matcher=%q group_by=%v", page.Matcher, page.GroupBy)
	}
	if diff := cmp.Diff([]string{"alertname", "appName", "env", "uniqueLabel"}, page.LabelKeys); diff != "" {
		t.Fatalf("label keys mismatch (-want +got):\n%s", diff)
	}
	if page.Stale || page.FetchError != "" {
		t.Fatalf("fresh page must not be stale")
	}
	if page.FetchedAt == nil || !page.FetchedAt.Equal(testNow.Add(-time.Minute)) {
		t.Fatalf("unexpected fetched_at %v", page.FetchedAt)
	}
}

func TestRenderCustomGroupBy(t *testing.T) {
	t.Parallel()

	r := NewRenderer("prod", "", allCaps())

	page := r.Render(testSnapshot("r1"), FetchStatus{}, grouping.Custom("appName"), nil, testNow)
	if diff := cmp.Diff([]string{`appName="app1"`, `appName="app2"`}, titles(page)); diff != "" {
		t.Fatalf("appName titles mismatch (-want +got):\n%s", diff)
	}
	if page.Groups[0].Count != 2 {
		t.Fatalf("expected app1 to merge foo-1 and bar-1, got %d", page.Groups[0].Count)
	}

	page = r.Render(testSnapshot("r1"), FetchStatus{}, grouping.Custom("uniqueLabel"), nil, testNow)
	if diff := cmp.Diff([]string{`uniqueLabel="true"`, NoGroupingTitle}, titles(page)); diff != "" {
		t.Fatalf("uniqueLabel titles mismatch (-want +got):\n%s", diff)
	}
	if len(page.Groups[1].Labels) != 0 || page.Groups[1].Count != 2 {
		t.Fatalf("expected unlabeled group with two alerts, got %+v", page.Groups[1])
	}

	page = r.Render(testSnapshot("r1"), FetchStatus{}, grouping.Custom("env", "appName"), nil, testNow)
	if diff := cmp.Diff([]string{`appName="app1", env="prod"`, `appName="app2", env="staging"`}, titles(page)); diff != "" {
		t.Fatalf("multi-key titles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"env", "appName"}, page.GroupBy); diff != "" {
		t.Fatalf("group_by must keep operator order (-want +got):\n%s", diff)
	}
}

func TestRenderWithMatcher(t *testing.T) {
	t.Parallel()

	filter, err := matcher.Parse(`env="prod"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := NewRenderer("prod", "", allCaps())
	page := r.Render(testSnapshot("r1"), FetchStatus{}, grouping.Default(), filter, testNow)

	if page.AlertCount != 2 || page.Matcher != `{env="prod"}` {
		t.Fatalf("unexpected filtered page count=%d matcher=%q", page.AlertCount, page.Matcher)
	}
	if len(page.LabelKeys) != 4 {
		t.Fatalf("label keys come from the unfiltered snapshot, got %v", page.LabelKeys)
	}
}

func TestRenderActionsRespectCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		base          string
		caps          Capabilities
		wantSilence   bool
		wantSeeSource bool
	}{
		{name: "all allowed", base: "https://am.example.com", caps: allCaps(), wantSilence: true, wantSeeSource: true},
		{name: "no silence permission", base: "https://am.example.com", caps: Capabilities{SeeSource: true}, wantSeeSource: true},
		{name: "no rule read permission", base: "https://am.example.com", caps: Capabilities{Silence: true}, wantSilence: true},
		{name: "no backend url", base: "", caps: allCaps(), wantSeeSource: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := NewRenderer("prod", tt.base, tt.caps).Render(testSnapshot("r1"), FetchStatus{}, grouping.Default(), nil, testNow)
			row := page.Groups[0].Rows[0]
			if (row.Actions.Silence != "") != tt.wantSilence {
				t.Fatalf("silence action=%q, want present=%v", row.Actions.Silence, tt.wantSilence)
			}
			if (row.Actions.SeeSource != "") != tt.wantSeeSource {
				t.Fatalf("see_source action=%q, want present=%v", row.Actions.SeeSource, tt.wantSeeSource)
			}
		})
	}
}

func TestRowFields(t *testing.T) {
	t.Parallel()

	snapshot := testSnapshot("r1")
	snapshot.Groups[0].Alerts[0].Annotations = model.LabelSet{"summary": "disk almost full"}
	snapshot.Groups[0].Alerts[0].GeneratorURL = ""
	snapshot.Groups[0].Alerts[0].Receivers = []domain.Receiver{{Name: "ops"}}

	page := NewRenderer("prod", "https://am", allCaps()).Render(snapshot, FetchStatus{}, grouping.Default(), nil, testNow)
	row := page.Groups[0].Rows[0]
	if row.Name != "Foo" || row.Fingerprint != "foo-1" || row.State != "active" {
		t.Fatalf("unexpected row identity %+v", row)
	}
	if row.Annotations["summary"] != "disk almost full" {
		t.Fatalf("unexpected annotations %v", row.Annotations)
	}
	if row.ActiveFor != 5*time.Minute {
		t.Fatalf("unexpected active duration %s", row.ActiveFor)
	}
	if row.Actions.SeeSource != "" {
		t.Fatalf("see_source must be omitted without generator url")
	}
	if diff := cmp.Diff([]string{"ops"}, row.Receivers); diff != "" {
		t.Fatalf("receivers mismatch (-want +got):\n%s", diff)
	}
	if row.Labels[0].Name != "alertname" || row.Labels[len(row.Labels)-1].Name != "uniqueLabel" {
		t.Fatalf("row labels must be sorted, got %+v", row.Labels)
	}
}

func TestRenderStaleStatus(t *testing.T) {
	t.Parallel()

	r := NewRenderer("prod", "", allCaps())
	page := r.Render(testSnapshot("r1"), FetchStatus{LastError: "fetch prod: transport: refused", ConsecutiveFailures: 2}, grouping.Default(), nil, testNow)
	if !page.Stale || page.FetchError == "" {
		t.Fatalf("expected stale page with fetch error, got stale=%v err=%q", page.Stale, page.FetchError)
	}
	if page.AlertCount != 3 {
		t.Fatalf("stale page must keep last good groups, got %d", page.AlertCount)
	}

	recovered := r.Render(testSnapshot("r2"), FetchStatus{LastError: "old", ConsecutiveFailures: 0}, grouping.Default(), nil, testNow)
	if recovered.Stale || recovered.FetchError != "" {
		t.Fatalf("recovered source must clear fetch error")
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	t.Parallel()

	page := NewRenderer("prod", "", allCaps()).Render(state.Snapshot{}, FetchStatus{}, grouping.Custom("env"), nil, testNow)
	if page.Groups == nil || len(page.Groups) != 0 || page.LabelKeys == nil {
		t.Fatalf("expected empty non-nil collections, got %+v", page)
	}
	if page.FetchedAt != nil || page.Revision != "" {
		t.Fatalf("expected no snapshot metadata, got %+v", page)
	}
}

func TestSilenceURL(t *testing.T) {
	t.Parallel()

	got := SilenceURL("https://am.example.com/", model.LabelSet{"instance": "web-1", "alertname": "Down"})
	prefix := "https://am.example.com/#/silences/new?filter="
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("unexpected silence url %q", got)
	}
	filter, err := url.QueryUnescape(strings.TrimPrefix(got, prefix))
	if err != nil {
		t.Fatalf("unescape: %v", err)
	}
	if filter != `{alertname="Down", instance="web-1"}` {
		t.Fatalf("unexpected filter %q", filter)
	}
}

func TestChipsString(t *testing.T) {
	t.Parallel()

	chips := Chips(model.LabelSet{"b": `x"y`, "a": "1"})
	if got := ChipsString(chips); got != `a="1", b="x\"y"` {
		t.Fatalf("unexpected chips %q", got)
	}
}
