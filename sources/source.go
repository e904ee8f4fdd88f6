// ABOUTME: SourceAdapter contract shared by every interaction source
// ABOUTME: Defines the extraction window, dedup set, and source error taxonomy
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/commsync/client"
	"github.com/harperreed/commsync/models"
)

// ErrUnavailable signals that a source's backing store (file, database,
// directory, or API credential) is absent. The source is skipped for the
// cycle; it is not a fatal condition.
var ErrUnavailable = errors.New("source unavailable")

// AccessDeniedError signals a permission-gated local store, such as the
// iMessage database without Full Disk Access. Hint carries the remediation
// steps shown to the user.
type AccessDeniedError struct {
	Path string
	Hint string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Path)
}

// TimeRange bounds how far back an extraction looks. The interval is
// closed at Since and open at now: a record timestamped exactly at Since
// is included. A zero Since means unbounded (full resync).
type TimeRange struct {
	Since time.Time
}

// Window builds the lookback range ending now.
func Window(lookback time.Duration) TimeRange {
	return TimeRange{Since: time.Now().Add(-lookback)}
}

// Unbounded is the full-resync range.
func Unbounded() TimeRange {
	return TimeRange{}
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return r.Since.IsZero() || !t.Before(r.Since)
}

// SyncedSet answers whether an external id was already delivered. The
// per-source state store satisfies this.
type SyncedSet interface {
	Contains(id string) bool
}

// emptySet is used for full resyncs, where local dedup history is ignored.
type emptySet struct{}

func (emptySet) Contains(string) bool { return false }

// NoneSynced is a SyncedSet containing nothing.
var NoneSynced SyncedSet = emptySet{}

// BatchDeliverer is an optional adapter capability for sources whose
// items cannot go through the plain batch push (audio-bearing sources use
// the transcription endpoint instead). The orchestrator prefers this over
// client.PushItems when an adapter implements it. The commit contract is
// identical: a transport-level error means no outcomes and no state
// advance.
type BatchDeliverer interface {
	Deliver(ctx context.Context, c *client.Client, items []models.CanonicalItem) (*client.PushResult, error)
}

// Adapter pulls raw records from one external source and converts them to
// canonical items. Extract returns items newest-first, already filtered to
// "inside the window, not yet synced", truncated to cap; anything beyond
// the cap is picked up on the next cycle. Implementations drop individual
// malformed records (logged, never fatal) and return ErrUnavailable or
// *AccessDeniedError when the whole source cannot be read.
type Adapter interface {
	Name() models.Source
	Describe() string
	Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error)
}
