// Package harness runs end-to-end verification scenarios against a wired
// platform: every scenario drives the register files through the bus
// transactor and checks the observable contract of the domain controller
// and the interrupt files.
package harness

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/aia/internal/platform"
)

// Scenario is one named verification sequence. Each scenario runs against a
// freshly built platform so ordering between scenarios never matters.
type Scenario struct {
	Name string
	Run  func(p *platform.Platform) error
}

// Options controls a harness run.
type Options struct {
	// Filter keeps only scenarios whose name contains the substring.
	Filter string

	// Progress renders a progress bar across scenarios when set.
	Progress bool

	Logger *slog.Logger
}

// Run executes the scenario list against cfg, a fresh platform per
// scenario. The first failure aborts the run; a bus timeout inside a
// scenario is fatal by construction since it surfaces as a scenario error.
func Run(cfg platform.Config, scenarios []Scenario, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	selected := make([]Scenario, 0, len(scenarios))
	for _, sc := range scenarios {
		if strings.Contains(sc.Name, opts.Filter) {
			selected = append(selected, sc)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("harness: no scenario matches %q", opts.Filter)
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.Default(int64(len(selected)))
		defer bar.Close()
	}

	for _, sc := range selected {
		p, err := platform.New(cfg)
		if err != nil {
			return fmt.Errorf("harness: build platform: %w", err)
		}

		log.Debug("running scenario", "name", sc.Name)
		if err := sc.Run(p); err != nil {
			return fmt.Errorf("harness: scenario %q: %w", sc.Name, err)
		}
		if err := p.APLIC.Err(); err != nil {
			return fmt.Errorf("harness: scenario %q: delivery engine: %w", sc.Name, err)
		}

		log.Info("scenario passed", "name", sc.Name)
		if bar != nil {
			bar.Add(1)
		}
	}
	return nil
}

// Names lists the scenario names in run order.
func Names(scenarios []Scenario) []string {
	names := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		names = append(names, sc.Name)
	}
	return names
}
