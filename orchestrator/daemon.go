// ABOUTME: Daemon mode running sync cycles on a fixed interval
// ABOUTME: First cycle fires immediately; the loop stops on context cancel
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/commsync/sources"
)

// Daemon runs cycles forever on the given interval until ctx is cancelled.
// Cycle failures are reported and swallowed: a flaky server must not kill
// the resident agent.
func (o *Orchestrator) Daemon(ctx context.Context, adapters []sources.Adapter, interval time.Duration) {
	fmt.Printf("→ Daemon started, syncing every %s\n", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.runDaemonCycle(ctx, adapters)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("→ Daemon stopping")
			return
		case <-ticker.C:
			o.runDaemonCycle(ctx, adapters)
		}
	}
}

func (o *Orchestrator) runDaemonCycle(ctx context.Context, adapters []sources.Adapter) {
	if ctx.Err() != nil {
		return
	}

	report := o.RunCycle(ctx, adapters, false)
	if report.Succeeded() {
		fmt.Printf("✓ Cycle %s done, %d items committed\n", report.RunID, report.TotalCommitted())
	} else {
		fmt.Printf("⚠ Cycle %s finished with errors\n", report.RunID)
	}
}
