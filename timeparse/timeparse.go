// ABOUTME: Ordered timestamp-format matching for heterogeneous sources
// ABOUTME: Converts epoch, ISO-8601, RFC-2822, and Apple-epoch times to time.Time
package timeparse

import (
	"math"
	"time"
)

// Format pairs a Go time layout with a stable identifier so callers can
// record which layout matched.
type Format struct {
	ID     string
	Layout string
}

// Result is a tagged parse outcome: the parsed instant plus the id of the
// format that produced it.
type Result struct {
	Time   time.Time
	Format string
}

// ISO is the default matcher list for timestamps that arrive as strings.
// Formats are tried in priority order; the first match wins. Layouts
// without a zone are interpreted as UTC.
var ISO = []Format{
	{ID: "rfc3339nano", Layout: time.RFC3339Nano},
	{ID: "rfc3339", Layout: time.RFC3339},
	{ID: "iso-no-zone", Layout: "2006-01-02T15:04:05"},
	{ID: "iso-space", Layout: "2006-01-02 15:04:05"},
	{ID: "date-only", Layout: "2006-01-02"},
}

// RFC2822 covers the email Date header variants, most to least common.
var RFC2822 = []Format{
	{ID: "rfc1123z", Layout: time.RFC1123Z},
	{ID: "rfc1123z-short-day", Layout: "Mon, 2 Jan 2006 15:04:05 -0700"},
	{ID: "rfc1123", Layout: time.RFC1123},
	{ID: "rfc1123-short-day", Layout: "Mon, 2 Jan 2006 15:04:05 MST"},
	{ID: "rfc822z", Layout: time.RFC822Z},
	{ID: "rfc822", Layout: time.RFC822},
	{ID: "rfc3339", Layout: time.RFC3339},
}

// ParseWith tries each format in order and returns the first successful
// parse. The boolean is false when no format matched.
func ParseWith(raw string, formats []Format) (Result, bool) {
	for _, f := range formats {
		if t, err := time.Parse(f.Layout, raw); err == nil {
			return Result{Time: t.UTC(), Format: f.ID}, true
		}
	}
	return Result{}, false
}

// Parse matches raw against the default ISO list.
func Parse(raw string) (Result, bool) {
	return ParseWith(raw, ISO)
}

// FromEpoch converts a numeric epoch value to an instant, classifying the
// magnitude as seconds, milliseconds, or nanoseconds. Source caches store
// whichever unit their author picked; mixing them up shifts every record
// by a factor of a thousand, so the unit is recorded in the result.
func FromEpoch(n float64) Result {
	switch {
	case math.Abs(n) > 1e16:
		return Result{Time: time.Unix(0, int64(n)).UTC(), Format: "epoch-ns"}
	case math.Abs(n) > 1e10:
		sec := int64(n) / 1000
		ms := int64(n) % 1000
		return Result{Time: time.Unix(sec, ms*int64(time.Millisecond)).UTC(), Format: "epoch-ms"}
	default:
		return Result{Time: time.Unix(int64(n), 0).UTC(), Format: "epoch-s"}
	}
}

// ParseAny accepts the raw value straight out of decoded JSON: strings go
// through the ISO matcher list, numbers through the epoch classifier.
func ParseAny(v any) (Result, bool) {
	switch val := v.(type) {
	case string:
		return Parse(val)
	case float64:
		return FromEpoch(val), true
	case int64:
		return FromEpoch(float64(val)), true
	case int:
		return FromEpoch(float64(val)), true
	default:
		return Result{}, false
	}
}

// appleEpoch is 2001-01-01T00:00:00Z; Apple system databases store
// nanoseconds since this reference date rather than the Unix epoch.
var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// FromAppleNanoseconds converts an Apple-epoch nanosecond timestamp (the
// iMessage message.date column) to an instant.
func FromAppleNanoseconds(n int64) time.Time {
	return appleEpoch.Add(time.Duration(n)).UTC()
}

// ToAppleNanoseconds converts an instant to Apple-epoch nanoseconds for
// use in query bounds against Apple system databases.
func ToAppleNanoseconds(t time.Time) int64 {
	return int64(t.Sub(appleEpoch))
}
