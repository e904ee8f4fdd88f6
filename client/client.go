// ABOUTME: HTTP client for the remote aggregation service sync API
// ABOUTME: Pushes canonical item batches and relays per-item delivery outcomes
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harperreed/commsync/models"
)

// SyncType describes how a batch relates to prior syncs.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
	SyncSingle      SyncType = "single"
)

// Outcome statuses the server reports per item.
const (
	StatusCreated = "created"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Outcome is the server's verdict on one pushed item. The id echoes the
// item's external id and is what local state is keyed on.
type Outcome struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Terminal reports whether the outcome means the item needs no retry.
func (o Outcome) Terminal() bool {
	return o.Status == StatusCreated || o.Status == StatusSkipped
}

// PushResult is the server's response to a batch push.
type PushResult struct {
	SyncID    string    `json:"syncId"`
	Received  int       `json:"received"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Results   []Outcome `json:"results"`
}

// TranscribeRequest carries an audio payload to the transcription endpoint.
type TranscribeRequest struct {
	AudioBase64 string             `json:"audioBase64,omitempty"`
	AudioURL    string             `json:"audioUrl,omitempty"`
	ExternalID  string             `json:"externalId"`
	Source      models.Source      `json:"source"`
	Timestamp   string             `json:"timestamp,omitempty"`
	PersonHint  *models.PersonHint `json:"personHint,omitempty"`
}

// TranscribeResult is the transcription endpoint's response.
type TranscribeResult struct {
	Status           string `json:"status"`
	InteractionID    string `json:"interactionId,omitempty"`
	PersonID         string `json:"personId,omitempty"`
	TranscriptLength int    `json:"transcriptLength,omitempty"`
	Error            string `json:"error,omitempty"`
}

// PersonMatch is a candidate identity from the person search endpoint.
type PersonMatch struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// SyncLogEntry is one row from the server-side sync log.
type SyncLogEntry struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	SyncType  string `json:"syncType"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	CreatedAt string `json:"createdAt"`
}

// TransportError is a batch-level delivery failure: a non-2xx response or
// a body that could not be interpreted. No per-item outcomes exist in this
// case, so the caller must not advance any local state.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sync API returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sync API transport failure: %s", e.Message)
}

// Client talks to the remote aggregation service. It holds no durable
// state; dedup state lives in the per-source state stores.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// pushRequest is the wire shape of a batch push.
type pushRequest struct {
	Source   models.Source          `json:"source"`
	SyncType SyncType               `json:"syncType"`
	Items    []models.CanonicalItem `json:"items"`
	Metadata map[string]string      `json:"metadata,omitempty"`
}

// PushItems delivers a batch of items for one source and returns the
// server's per-item outcomes. Any network error or non-2xx response is a
// single batch-level TransportError: callers must treat the whole batch as
// undelivered and retry it on a later cycle.
func (c *Client) PushItems(ctx context.Context, source models.Source, items []models.CanonicalItem, syncType SyncType, metadata map[string]string) (*PushResult, error) {
	var result PushResult
	err := c.postJSON(ctx, "/api/sync/push", pushRequest{
		Source:   source,
		SyncType: syncType,
		Items:    items,
		Metadata: metadata,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// TranscribeAudio sends one audio recording for server-side transcription
// and interaction creation.
func (c *Client) TranscribeAudio(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	var result TranscribeResult
	if err := c.postJSON(ctx, "/api/sync/transcribe", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchPerson looks up candidate identities by phone, email, or name.
// At most one criterion is sent, in that priority order.
func (c *Client) SearchPerson(ctx context.Context, phone, email, name string) ([]PersonMatch, error) {
	params := url.Values{}
	switch {
	case phone != "":
		params.Set("phone", phone)
	case email != "":
		params.Set("email", email)
	case name != "":
		params.Set("name", name)
	}

	var body struct {
		Matches []PersonMatch `json:"matches"`
	}
	if err := c.getJSON(ctx, "/api/sync/search-person", params, &body); err != nil {
		return nil, err
	}
	return body.Matches, nil
}

// SyncLogs fetches server-side sync logs, optionally filtered by source.
func (c *Client) SyncLogs(ctx context.Context, source models.Source) ([]SyncLogEntry, error) {
	params := url.Values{}
	if source != "" {
		params.Set("source", string(source))
	}

	var logs []SyncLogEntry
	if err := c.getJSON(ctx, "/api/sync/logs", params, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{StatusCode: resp.StatusCode, Message: snippet(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &TransportError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unparseable response: %v", err)}
		}
	}

	return nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
