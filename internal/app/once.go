package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"alertgroups/internal/clock"
	"alertgroups/internal/config"
	"alertgroups/internal/fetch"
	"alertgroups/internal/grouping"
	"alertgroups/internal/matcher"
	"alertgroups/internal/state"
	"alertgroups/internal/view"
)

// OnceOptions selects what a one-shot render shows.
type OnceOptions struct {
	Source  string
	GroupBy []string
	Matcher string
}

// RenderOnce fetches one source and writes its regrouped page as text.
// Params: context, loaded config, render options, fetcher factory (nil uses the Alertmanager client), clock, logger and output.
// Returns: *matcher.ParseError, fetch error, or render error.
func RenderOnce(ctx context.Context, cfg config.Config, opts OnceOptions, newFetcherFn func(config.SourceConfig, *slog.Logger) (fetch.Fetcher, error), clk clock.Clock, logger *slog.Logger, w io.Writer) error {
	src, ok := onceSource(cfg, opts.Source)
	if !ok {
		if opts.Source == "" {
			return fmt.Errorf("no polled source configured")
		}
		return fmt.Errorf("source %q is not a polled source", opts.Source)
	}
	filter, err := matcher.Parse(opts.Matcher)
	if err != nil {
		return err
	}
	if newFetcherFn == nil {
		newFetcherFn = newFetcher
	}
	fetcher, err := newFetcherFn(src, logger)
	if err != nil {
		return err
	}

	groups, err := fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	snapshot := state.NewSnapshot(src.Name, groups, clk.Now())

	caps := view.Capabilities{Silence: cfg.Access.SilenceAllowed(), SeeSource: cfg.Access.SeeSourceAllowed()}
	page := view.NewRenderer(src.Name, src.SilenceBaseURL(), caps).
		Render(snapshot, view.FetchStatus{}, grouping.Custom(opts.GroupBy...), filter, clk.Now())
	return view.RenderText(w, page)
}

// onceSource picks the named polled source or the first polled one.
func onceSource(cfg config.Config, name string) (config.SourceConfig, bool) {
	if name != "" {
		src, ok := cfg.SourceByName(name)
		return src, ok && src.Polled()
	}
	for _, src := range cfg.Source {
		if src.Polled() {
			return src, true
		}
	}
	return config.SourceConfig{}, false
}
