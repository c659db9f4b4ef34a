// aiasim runs the interrupt-subsystem verification scenarios against a
// configurable platform geometry.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/tinyrange/aia/internal/harness"
	"github.com/tinyrange/aia/internal/platform"
)

func run() error {
	var (
		configPath = flag.String("config", "", "platform geometry YAML (default: built-in geometry)")
		filter     = flag.String("run", "", "only run scenarios whose name contains this substring")
		list       = flag.Bool("list", false, "list scenario names and exit")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	scenarios := harness.Scenarios()
	if *list {
		for _, name := range harness.Names(scenarios) {
			fmt.Println(name)
		}
		return nil
	}

	cfg := platform.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = platform.Load(*configPath)
		if err != nil {
			return err
		}
		slog.Info("loaded platform config", "path", *configPath)
	}
	slog.Info("platform geometry",
		"harts", cfg.Harts,
		"sources", cfg.APLIC.Sources,
		"guests", cfg.IMSIC.Guests,
		"aplicBase", fmt.Sprintf("0x%x", cfg.APLIC.Base),
	)

	// The progress bar and debug logging fight over stderr; show the bar
	// only on a quiet interactive run.
	progress := term.IsTerminal(int(os.Stderr.Fd())) && !*verbose

	return harness.Run(cfg, scenarios, harness.Options{
		Filter:   *filter,
		Progress: progress,
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "aiasim: %v\n", err)
		os.Exit(1)
	}
}
