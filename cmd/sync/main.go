// Command sync runs one incremental synchronization of all configured event
// sources into the event store.
//
// Flags:
//
//	-config           path to the YAML config (default: CONFIG_PATH or ./config.yaml)
//	-first-page-only  fetch only the first listing page of every source (alias -test)
//	-source           comma-separated source names to run (default: all enabled)
//
// Exit codes: 0 = run completed (individual sources may have failed),
// 1 = configuration or store setup error.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/heartmarshall/eventsync/internal/app"
)

func main() {
	var opts app.Options
	var sources string

	flag.StringVar(&opts.ConfigPath, "config", "", "path to YAML config")
	flag.BoolVar(&opts.FirstPageOnly, "first-page-only", false, "fetch only the first listing page of every source")
	flag.BoolVar(&opts.FirstPageOnly, "test", false, "alias for -first-page-only")
	flag.StringVar(&sources, "source", "", "comma-separated source names to run")
	flag.Parse()

	opts.Sources = splitList(sources)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, opts); err != nil {
		slog.Error("sync failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
