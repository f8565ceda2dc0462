package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"alertgroups/internal/app"
	"alertgroups/internal/clock"
	"alertgroups/internal/config"
	"alertgroups/internal/logging"
)

// main starts the alert grouping service or renders one source once.
// Params: CLI flags (--config-file or --config-dir, optional --once with --source/--group-by/--matcher).
// Returns: process exit code by startup/run result.
func main() {
	var (
		configFile = flag.String("config-file", "", "path to one TOML config file")
		configDir  = flag.String("config-dir", "", "path to directory with TOML config fragments")
		once       = flag.Bool("once", false, "fetch one source, print its groups and exit")
		source     = flag.String("source", "", "source to render with --once (default: first polled source)")
		groupBy    = flag.String("group-by", "", "comma-separated label keys for --once")
		matcherArg = flag.String("matcher", "", "label matcher for --once, e.g. {env=\"prod\"}")
	)
	flag.Parse()

	configSource, err := config.FromCLI(*configFile, *configDir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if *once {
		os.Exit(runOnce(configSource, app.OnceOptions{
			Source:  *source,
			GroupBy: splitKeys(*groupBy),
			Matcher: *matcherArg,
		}))
	}

	service, err := app.NewService(configSource, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}

func runOnce(configSource config.ConfigSource, opts app.OnceOptions) int {
	cfg, err := config.LoadSnapshot(configSource)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "config load failed:", err.Error())
		return 1
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "logger init failed:", err.Error())
		return 1
	}
	defer closeLog()

	if err := app.RenderOnce(context.Background(), cfg, opts, nil, clock.RealClock{}, logger, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "render failed:", err.Error())
		return 1
	}
	return 0
}

func splitKeys(value string) []string {
	var keys []string
	for _, key := range strings.Split(value, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
