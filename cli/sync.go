// ABOUTME: Sync and daemon CLI commands
// ABOUTME: Parses flags, builds adapters from config, and runs cycles
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harperreed/commsync/client"
	"github.com/harperreed/commsync/config"
	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/orchestrator"
	"github.com/harperreed/commsync/sources"
	"github.com/harperreed/commsync/state"
)

// SyncCommand runs one sync cycle. Config problems fail the command
// before any network traffic; individual source failures are reported in
// the summary but do not fail the exit code, so a scheduler does not
// alert on a flaky single source.
func SyncCommand(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "Full resync: clear local state and ignore the lookback window")
	hours := fs.Int("hours", 0, "Override the lookback window in hours")
	sourceList := fs.String("sources", "", "Comma-separated sources to sync (default: all)")
	url := fs.String("url", "", "Override the server URL")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *url != "" {
		cfg.ServerURL = *url
	}
	if *hours > 0 {
		cfg.LookbackHours = *hours
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	selected, err := parseSources(*sourceList)
	if err != nil {
		return err
	}

	o := newOrchestrator(cfg)
	adapters := buildAdapters(cfg, selected)

	report := o.RunCycle(context.Background(), adapters, *force)
	printCycleSummary(report)
	return nil
}

// DaemonCommand runs sync cycles on an interval until interrupted.
func DaemonCommand(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	interval := fs.Int("interval", 0, "Minutes between cycles (default: config value)")
	sourceList := fs.String("sources", "", "Comma-separated sources to sync (default: all)")
	url := fs.String("url", "", "Override the server URL")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *url != "" {
		cfg.ServerURL = *url
	}
	if *interval > 0 {
		cfg.SyncIntervalMinutes = *interval
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	selected, err := parseSources(*sourceList)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := newOrchestrator(cfg)
	o.Daemon(ctx, buildAdapters(cfg, selected), cfg.Interval())
	return nil
}

func newOrchestrator(cfg *config.Config) *orchestrator.Orchestrator {
	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = state.DefaultDir()
	}
	return orchestrator.New(client.New(cfg.ServerURL), stateDir, cfg.AgentID,
		cfg.Lookback(), cfg.MaxItemsPerSync)
}

// buildAdapters constructs the adapters for the selected sources in cycle
// order. An empty selection means all of them.
func buildAdapters(cfg *config.Config, selected []models.Source) []sources.Adapter {
	want := make(map[models.Source]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}

	var adapters []sources.Adapter
	for _, source := range models.AllSources {
		if len(want) > 0 && !want[source] {
			continue
		}
		switch source {
		case models.SourceGranola:
			adapters = append(adapters, sources.NewGranola(cfg.GranolaCachePath))
		case models.SourceFathom:
			adapters = append(adapters, sources.NewFathom(cfg.FathomAPIKey))
		case models.SourceIMessage:
			adapters = append(adapters, sources.NewIMessage(cfg.IMessageDBPath))
		case models.SourceWhatsApp:
			adapters = append(adapters, sources.NewWhatsApp(cfg.WhatsAppExportDir))
		case models.SourcePlaud:
			adapters = append(adapters, sources.NewPlaud(cfg.PlaudDataDir))
		case models.SourceGmail:
			adapters = append(adapters, sources.NewGmail())
		}
	}
	return adapters
}

// parseSources parses a comma-separated source selection, rejecting names
// the agent does not know.
func parseSources(list string) ([]models.Source, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var selected []models.Source
	for _, part := range strings.Split(list, ",") {
		name := models.Source(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if !models.ValidSource(name) {
			return nil, fmt.Errorf("unknown source %q (known: %s)", name, sourceNames())
		}
		selected = append(selected, name)
	}
	return selected, nil
}

func sourceNames() string {
	names := make([]string, len(models.AllSources))
	for i, s := range models.AllSources {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func printCycleSummary(report *orchestrator.CycleReport) {
	fmt.Printf("\nSync cycle %s\n", report.RunID)
	for _, sr := range report.Reports {
		switch {
		case sr.Unavailable:
			fmt.Printf("  ⚠ %-10s unavailable\n", sr.Source)
		case sr.Err != nil:
			fmt.Printf("  ✗ %-10s %v\n", sr.Source, sr.Err)
		default:
			fmt.Printf("  ✓ %-10s %d committed (%s)\n", sr.Source, sr.Committed, sr.Elapsed.Round(time.Millisecond))
		}
	}
	fmt.Printf("Total: %d items committed\n", report.TotalCommitted())
}
