// ABOUTME: Fathom source adapter polling the Fathom external API
// ABOUTME: Pages through recorded meetings and normalizes transcripts and invitees
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/timeparse"
)

// DefaultFathomAPIURL is the production Fathom external API base.
const DefaultFathomAPIURL = "https://api.fathom.ai/external/v1"

// Fathom polls the Fathom meetings API with cursor pagination.
type Fathom struct {
	APIKey     string
	APIBaseURL string

	httpClient *http.Client
}

// NewFathom creates the adapter. An empty API key makes the source
// unavailable rather than failing the cycle.
func NewFathom(apiKey string) *Fathom {
	return &Fathom{
		APIKey:     apiKey,
		APIBaseURL: DefaultFathomAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *Fathom) Name() models.Source { return models.SourceFathom }

func (f *Fathom) Describe() string {
	return fmt.Sprintf("Fathom meetings API at %s", f.APIBaseURL)
}

// meetingsPage is one page of the Fathom meetings listing.
type meetingsPage struct {
	Items  []map[string]any `json:"items"`
	Cursor string           `json:"cursor"`
}

// Extract pages through meetings created inside the window.
func (f *Fathom) Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("fathom API key not configured: %w", ErrUnavailable)
	}

	raws, err := f.listMeetings(ctx, window, cap)
	if err != nil {
		return nil, err
	}

	items := make([]models.CanonicalItem, 0, len(raws))
	for _, raw := range raws {
		if item := f.normalize(raw); item != nil {
			items = append(items, *item)
		}
	}

	return filterAndCap(items, window, synced, cap), nil
}

// listMeetings fetches pages until the cursor runs out or enough raw
// records are buffered to fill the batch cap.
func (f *Fathom) listMeetings(ctx context.Context, window TimeRange, cap int) ([]map[string]any, error) {
	var all []map[string]any
	cursor := ""

	for {
		page, err := f.fetchPage(ctx, window, cursor)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)

		cursor = page.Cursor
		if cursor == "" || (cap > 0 && len(all) >= cap) {
			break
		}
	}

	return all, nil
}

func (f *Fathom) fetchPage(ctx context.Context, window TimeRange, cursor string) (*meetingsPage, error) {
	params := url.Values{}
	params.Set("include_transcript", "true")
	if !window.Since.IsZero() {
		params.Set("created_after", window.Since.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.APIBaseURL+"/meetings?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fathom request: %w", err)
	}
	req.Header.Set("X-Api-Key", f.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fathom meetings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read fathom response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("fathom API rejected the configured key (%d): %w", resp.StatusCode, ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fathom API returned %d", resp.StatusCode)
	}

	var page meetingsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse fathom response: %w", err)
	}
	return &page, nil
}

// normalize maps one API meeting to a canonical item; nil when the record
// has no parseable creation time.
func (f *Fathom) normalize(meeting map[string]any) *models.CanonicalItem {
	rawTime := firstValue(meeting, "created_at", "recording_start_time")
	parsed, ok := timeparse.ParseAny(rawTime)
	if !ok {
		return nil
	}

	meetingURL := firstString(meeting, "url")
	meetingID := meetingURL
	if idx := lastSlash(meetingURL); idx >= 0 {
		meetingID = meetingURL[idx+1:]
	}
	title := firstString(meeting, "title", "meeting_title")

	item := &models.CanonicalItem{
		ExternalID: models.DeriveExternalID(models.SourceFathom,
			meetingID, title, stringify(rawTime)),
		Source:       models.SourceFathom,
		Type:         models.TypeMeeting,
		Title:        title,
		Summary:      fathomSummary(meeting),
		Transcript:   fathomTranscript(meeting),
		Timestamp:    parsed.Time,
		Participants: fathomParticipants(meeting),
		ExternalLink: firstString(meeting, "share_url", "url"),
		Metadata: map[string]string{
			"timestampFormat": parsed.Format,
		},
	}
	if item.Title == "" {
		item.Title = "Fathom Meeting"
	}

	if mt := firstString(meeting, "meeting_type"); mt != "" {
		item.Metadata["meetingType"] = mt
	}
	if lang := firstString(meeting, "transcript_language"); lang != "" {
		item.Metadata["transcriptLanguage"] = lang
	}
	if meetingURL != "" {
		item.Metadata["fathomUrl"] = meetingURL
	}

	start := firstString(meeting, "recording_start_time", "scheduled_start_time")
	end := firstString(meeting, "recording_end_time", "scheduled_end_time")
	if start != "" && end != "" {
		startParsed, okStart := timeparse.Parse(start)
		endParsed, okEnd := timeparse.Parse(end)
		if okStart && okEnd {
			if d := endParsed.Time.Sub(startParsed.Time); d > 0 {
				item.DurationSeconds = int(d.Seconds())
			}
		}
	}

	return item
}

// fathomTranscript flattens speaker-attributed transcript segments into
// "[cue] Speaker: text" lines.
func fathomTranscript(meeting map[string]any) string {
	segments, _ := asList(meeting["transcript"])

	out := ""
	for _, seg := range segments {
		m, ok := asMap(seg)
		if !ok {
			continue
		}

		speakerName := "Unknown"
		if speaker, ok := asMap(m["speaker"]); ok {
			if name := firstString(speaker, "display_name", "name"); name != "" {
				speakerName = name
			}
		}

		if out != "" {
			out += "\n"
		}
		out += fmt.Sprintf("[%s] %s: %s", firstString(m, "timestamp"), speakerName, firstString(m, "text"))
	}
	return out
}

func fathomSummary(meeting map[string]any) string {
	switch s := meeting["default_summary"].(type) {
	case map[string]any:
		return firstString(s, "markdown_formatted", "text")
	case string:
		return s
	default:
		return ""
	}
}

// fathomParticipants assembles calendar invitees plus the recording host,
// host first.
func fathomParticipants(meeting map[string]any) []models.Participant {
	var participants []models.Participant

	invitees, _ := asList(meeting["calendar_invitees"])
	for _, entry := range invitees {
		m, ok := asMap(entry)
		if !ok {
			continue
		}
		p := models.Participant{
			Name:       firstString(m, "name"),
			Email:      firstString(m, "email"),
			IsExternal: true,
		}
		if ext, ok := m["is_external"].(bool); ok {
			p.IsExternal = ext
		}
		participants = append(participants, p)
	}

	if host, ok := asMap(meeting["recorded_by"]); ok {
		name := firstString(host, "name")
		if name != "" && !containsName(participants, name) {
			participants = append([]models.Participant{{
				Name:   name,
				Email:  firstString(host, "email"),
				IsHost: true,
			}}, participants...)
		}
	}

	return models.CleanParticipants(participants)
}

func containsName(participants []models.Participant, name string) bool {
	for _, p := range participants {
		if p.Name == name {
			return true
		}
	}
	return false
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
