// ABOUTME: Per-source sync state machine and multi-source cycle fan-out
// ABOUTME: Extracts, delivers, and commits with exactly-once-effective semantics
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/commsync/client"
	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/sources"
	"github.com/harperreed/commsync/state"
)

// Delivery retry tuning. A transport failure re-derives the batch from the
// source before retrying, so a recovered server never sees a stale list.
const (
	maxDeliveryAttempts = 3
	retryBaseDelay      = 2 * time.Second
)

// Phase is where a source run currently is (or where it stopped).
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseExtracting Phase = "extracting"
	PhaseDelivering Phase = "delivering"
	PhaseCommitting Phase = "committing"
	PhaseDone       Phase = "done"
	PhaseErrorStop  Phase = "error"
)

// SourceReport is the outcome of one source's run inside a cycle.
type SourceReport struct {
	Source      models.Source
	Phase       Phase
	Extracted   int
	Created     int
	Skipped     int
	Failed      int
	Committed   int
	Unavailable bool
	Err         error
	Elapsed     time.Duration
}

// CycleReport aggregates one full cycle across all sources.
type CycleReport struct {
	RunID   string
	Started time.Time
	Reports []SourceReport
}

// Succeeded reports whether every non-unavailable source finished cleanly.
func (r *CycleReport) Succeeded() bool {
	for _, sr := range r.Reports {
		if sr.Err != nil {
			return false
		}
	}
	return true
}

// TotalCommitted sums committed ids across sources.
func (r *CycleReport) TotalCommitted() int {
	total := 0
	for _, sr := range r.Reports {
		total += sr.Committed
	}
	return total
}

// Orchestrator drives adapters through extraction, delivery, and commit.
// Failures in one source never touch another source's state.
type Orchestrator struct {
	Client   *client.Client
	StateDir string
	AgentID  string

	// Lookback is the incremental window size; MaxItems caps one batch.
	Lookback time.Duration
	MaxItems int

	// sleep is swapped out in tests to avoid real retry delays.
	sleep func(time.Duration)
}

// New creates an orchestrator with the given delivery client and tuning.
func New(c *client.Client, stateDir, agentID string, lookback time.Duration, maxItems int) *Orchestrator {
	return &Orchestrator{
		Client:   c,
		StateDir: stateDir,
		AgentID:  agentID,
		Lookback: lookback,
		MaxItems: maxItems,
		sleep:    time.Sleep,
	}
}

// RunCycle runs every adapter once and aggregates the reports. A panic in
// one adapter is contained and becomes that source's error.
func (o *Orchestrator) RunCycle(ctx context.Context, adapters []sources.Adapter, force bool) *CycleReport {
	report := &CycleReport{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}

	for _, adapter := range adapters {
		fmt.Printf("→ Syncing %s...\n", adapter.Name())
		sr := o.runSourceSafely(ctx, adapter, force, report.RunID)
		report.Reports = append(report.Reports, sr)

		switch {
		case sr.Unavailable:
			fmt.Printf("  ⚠ %s unavailable, skipped\n", sr.Source)
		case sr.Err != nil:
			fmt.Printf("  ✗ %s failed: %v\n", sr.Source, sr.Err)
		case sr.Extracted == 0:
			fmt.Printf("  ✓ %s: nothing new\n", sr.Source)
		default:
			fmt.Printf("  ✓ %s: %d created, %d skipped, %d failed (%d committed)\n",
				sr.Source, sr.Created, sr.Skipped, sr.Failed, sr.Committed)
		}
	}

	return report
}

// runSourceSafely wraps RunSource with panic containment so one broken
// adapter cannot take down the cycle.
func (o *Orchestrator) runSourceSafely(ctx context.Context, adapter sources.Adapter, force bool, runID string) (sr SourceReport) {
	defer func() {
		if r := recover(); r != nil {
			sr.Phase = PhaseErrorStop
			sr.Err = fmt.Errorf("source %s panicked: %v", adapter.Name(), r)
		}
	}()
	return o.RunSource(ctx, adapter, force, runID)
}

// RunSource walks one adapter through the state machine. Only items the
// server terminally acknowledged (created or skipped) are committed to
// local state; a transport failure leaves state untouched so the batch is
// re-derived and re-sent next cycle.
func (o *Orchestrator) RunSource(ctx context.Context, adapter sources.Adapter, force bool, runID string) SourceReport {
	started := time.Now()
	sr := SourceReport{Source: adapter.Name(), Phase: PhaseIdle}
	defer func() { sr.Elapsed = time.Since(started) }()

	lock, err := state.AcquireLock(o.StateDir, string(adapter.Name()))
	if err != nil {
		sr.Phase = PhaseErrorStop
		sr.Err = fmt.Errorf("could not lock %s state: %w", adapter.Name(), err)
		return sr
	}
	defer lock.Release()

	st, err := state.Open(o.StateDir, adapter.Name())
	if err != nil {
		sr.Phase = PhaseErrorStop
		sr.Err = fmt.Errorf("could not open %s state: %w", adapter.Name(), err)
		return sr
	}

	window := sources.Window(o.Lookback)
	syncType := client.SyncIncremental
	if force {
		st.Clear()
		window = sources.Unbounded()
		syncType = client.SyncFull
	}

	var result *client.PushResult
	var items []models.CanonicalItem

	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		sr.Phase = PhaseExtracting
		items, err = adapter.Extract(ctx, window, st, o.MaxItems)
		if err != nil {
			if errors.Is(err, sources.ErrUnavailable) {
				sr.Phase = PhaseDone
				sr.Unavailable = true
				return sr
			}
			sr.Phase = PhaseErrorStop
			sr.Err = fmt.Errorf("extraction from %s failed: %w", adapter.Name(), err)
			return sr
		}
		sr.Extracted = len(items)

		if len(items) == 0 {
			sr.Phase = PhaseDone
			return sr
		}

		sr.Phase = PhaseDelivering
		result, err = o.deliver(ctx, adapter, items, syncType, runID)
		if err == nil {
			break
		}

		var te *client.TransportError
		if !errors.As(err, &te) || attempt == maxDeliveryAttempts {
			sr.Phase = PhaseErrorStop
			sr.Err = fmt.Errorf("delivery from %s failed: %w", adapter.Name(), err)
			return sr
		}

		fmt.Printf("  ⚠ Delivery attempt %d/%d failed (%v), retrying...\n",
			attempt, maxDeliveryAttempts, te)
		o.sleep(retryBaseDelay * time.Duration(attempt))
	}

	sr.Phase = PhaseCommitting
	byID := make(map[string]models.CanonicalItem, len(items))
	for _, item := range items {
		byID[item.ExternalID] = item
	}

	for _, outcome := range result.Results {
		switch outcome.Status {
		case client.StatusCreated:
			sr.Created++
		case client.StatusSkipped:
			sr.Skipped++
		default:
			sr.Failed++
		}
		if !outcome.Terminal() {
			continue
		}

		st.Add(outcome.ID)
		sr.Committed++
		if item, ok := byID[outcome.ID]; ok {
			st.SetHighWater(item.Timestamp)
		}
	}

	if err := st.Save(); err != nil {
		sr.Phase = PhaseErrorStop
		sr.Err = fmt.Errorf("could not save %s state: %w", adapter.Name(), err)
		return sr
	}

	sr.Phase = PhaseDone
	return sr
}

// deliver routes the batch through the adapter's own delivery path when it
// has one, otherwise through the shared batch push.
func (o *Orchestrator) deliver(ctx context.Context, adapter sources.Adapter, items []models.CanonicalItem, syncType client.SyncType, runID string) (*client.PushResult, error) {
	if bd, ok := adapter.(sources.BatchDeliverer); ok {
		return bd.Deliver(ctx, o.Client, items)
	}

	metadata := map[string]string{
		"runId":   runID,
		"agentId": o.AgentID,
	}
	return o.Client.PushItems(ctx, adapter.Name(), items, syncType, metadata)
}
