// ABOUTME: Granola source adapter reading the local meeting-notes cache
// ABOUTME: Tolerates the cache's double-encoded JSON and shifting key names
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/timeparse"
)

// Granola reads meeting notes from the Granola desktop app's cache file.
type Granola struct {
	CachePath string
}

// NewGranola creates the adapter for a cache file path.
func NewGranola(cachePath string) *Granola {
	return &Granola{CachePath: cachePath}
}

func (g *Granola) Name() models.Source { return models.SourceGranola }

func (g *Granola) Describe() string {
	return fmt.Sprintf("Granola meeting cache at %s", g.CachePath)
}

// Extract reads the cache and returns new in-window meetings newest-first.
func (g *Granola) Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error) {
	raws, err := g.listCachedMeetings()
	if err != nil {
		return nil, err
	}

	items := make([]models.CanonicalItem, 0, len(raws))
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item := g.normalize(raw); item != nil {
			items = append(items, *item)
		}
	}

	return filterAndCap(items, window, synced, cap), nil
}

// listCachedMeetings loads the cache file and digs the meeting list out of
// whichever shape this cache version uses. The cache is sometimes
// double-encoded: a JSON object whose "cache" value is itself a JSON
// string.
func (g *Granola) listCachedMeetings() ([]map[string]any, error) {
	data, err := os.ReadFile(g.CachePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("granola cache not found at %s: %w", g.CachePath, ErrUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read granola cache: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse granola cache: %w", err)
	}

	if outer, ok := asMap(decoded); ok {
		if inner, ok := outer["cache"].(string); ok {
			var unwrapped any
			if err := json.Unmarshal([]byte(inner), &unwrapped); err != nil {
				return nil, fmt.Errorf("failed to parse inner granola cache: %w", err)
			}
			decoded = unwrapped
		}
	}

	return meetingsFromCache(decoded), nil
}

// meetingsFromCache pulls a list of meeting objects out of the decoded
// cache: a bare array, a known collection key, or the values of a
// keyed map, in that order.
func meetingsFromCache(decoded any) []map[string]any {
	if list, ok := asList(decoded); ok {
		return onlyMaps(list)
	}

	m, ok := asMap(decoded)
	if !ok {
		return nil
	}

	for _, key := range []string{"meetings", "notes", "documents", "items"} {
		if list, ok := asList(m[key]); ok {
			return onlyMaps(list)
		}
		if keyed, ok := asMap(m[key]); ok {
			return sortedValues(keyed)
		}
	}

	return sortedValues(m)
}

func onlyMaps(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := asMap(v); ok {
			out = append(out, m)
		}
	}
	return out
}

// sortedValues returns the map-typed values of a keyed collection in key
// order, so repeated extractions see a stable sequence.
func sortedValues(m map[string]any) []map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		if v, ok := asMap(m[k]); ok {
			out = append(out, v)
		}
	}
	return out
}

// normalize maps one cached meeting to a canonical item. Returns nil when
// the record cannot be confidently mapped; missing data is preferred over
// wrong data.
func (g *Granola) normalize(meeting map[string]any) *models.CanonicalItem {
	rawTime := firstValue(meeting, "startTime", "start_time", "date")
	parsed, ok := timeparse.ParseAny(rawTime)
	if !ok {
		return nil
	}

	recordID := firstString(meeting, "id", "documentId", "document_id")
	title := firstString(meeting, "title", "name")
	externalID := models.DeriveExternalID(models.SourceGranola, recordID, title, stringify(rawTime))

	if title == "" {
		title = "Granola Meeting"
	}

	item := &models.CanonicalItem{
		ExternalID:   externalID,
		Source:       models.SourceGranola,
		Type:         models.TypeMeeting,
		Title:        title,
		Summary:      granolaSummary(meeting),
		Transcript:   granolaTranscript(meeting),
		Timestamp:    parsed.Time,
		Participants: granolaParticipants(meeting),
		ExternalLink: firstString(meeting, "link", "url"),
		Metadata: map[string]string{
			"timestampFormat": parsed.Format,
		},
	}

	if end := firstValue(meeting, "endTime", "end_time"); end != nil {
		if endParsed, ok := timeparse.ParseAny(end); ok {
			if d := endParsed.Time.Sub(parsed.Time); d > 0 {
				item.DurationSeconds = int(d.Seconds())
			}
		}
	}

	return item
}

// granolaTranscript flattens the transcript field, which may be a plain
// string, a list of speaker segments, or an object with a text field.
func granolaTranscript(meeting map[string]any) string {
	switch v := meeting["transcript"].(type) {
	case string:
		return v
	case []any:
		lines := ""
		for _, seg := range v {
			m, ok := asMap(seg)
			if !ok {
				continue
			}
			speaker := firstString(m, "speaker", "speakerName")
			if speaker == "" {
				speaker = "Unknown"
			}
			if lines != "" {
				lines += "\n"
			}
			lines += speaker + ": " + firstString(m, "text")
		}
		return lines
	case map[string]any:
		return firstString(v, "text")
	default:
		return ""
	}
}

func granolaSummary(meeting map[string]any) string {
	v := firstValue(meeting, "summary", "ai_summary", "notes")
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		return firstString(s, "text", "markdown")
	default:
		return ""
	}
}

func granolaParticipants(meeting map[string]any) []models.Participant {
	raw, _ := asList(firstValue(meeting, "participants", "attendees"))

	participants := make([]models.Participant, 0, len(raw))
	for _, entry := range raw {
		switch p := entry.(type) {
		case string:
			participants = append(participants, models.Participant{Name: p})
		case map[string]any:
			participants = append(participants, models.Participant{
				Name:  firstString(p, "name", "displayName"),
				Email: firstString(p, "email"),
			})
		}
	}
	return models.CleanParticipants(participants)
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
