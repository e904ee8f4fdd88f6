// ABOUTME: Tests for the Plaud audio recording adapter
// ABOUTME: Covers directory scanning, fingerprinting, and per-file delivery
package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/commsync/client"
	"github.com/harperreed/commsync/models"
)

func writeRecording(t *testing.T, dir, name string, content []byte, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlaudMissingDirIsUnavailable(t *testing.T) {
	p := NewPlaud(filepath.Join(t.TempDir(), "recordings"))
	_, err := p.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPlaudFindsAudioFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)

	writeRecording(t, dir, "standup.m4a", []byte("audio-a"), now.Add(-time.Hour))
	writeRecording(t, dir, "call with john.MP3", []byte("audio-b"), now.Add(-30*time.Minute))
	writeRecording(t, dir, "notes.txt", []byte("not audio"), now)

	sub := filepath.Join(dir, "2024")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeRecording(t, sub, "nested.wav", []byte("audio-c"), now.Add(-10*time.Minute))

	p := NewPlaud(dir)
	items, err := p.Extract(context.Background(), Window(24*time.Hour), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 recordings, got %d", len(items))
	}

	// Newest first; extension matching is case-insensitive.
	if items[0].Title != "nested" || items[1].Title != "call with john" || items[2].Title != "standup" {
		t.Errorf("wrong titles/order: %q, %q, %q", items[0].Title, items[1].Title, items[2].Title)
	}

	first := items[0]
	if first.Source != models.SourcePlaud || first.Type != models.TypeCall {
		t.Errorf("wrong classification: %+v", first)
	}
	if first.Metadata["audioPath"] != filepath.Join(sub, "nested.wav") {
		t.Errorf("audioPath = %q", first.Metadata["audioPath"])
	}
	if first.Metadata["sizeBytes"] != "7" {
		t.Errorf("sizeBytes = %q", first.Metadata["sizeBytes"])
	}
}

func TestPlaudModifiedFileGetsNewID(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	writeRecording(t, dir, "memo.m4a", []byte("first take"), now.Add(-time.Hour))

	p := NewPlaud(dir)
	before, err := p.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil || len(before) != 1 {
		t.Fatalf("first extract: %v, %d items", err, len(before))
	}

	writeRecording(t, dir, "memo.m4a", []byte("second, longer take"), now.Add(-30*time.Minute))

	after, err := p.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil || len(after) != 1 {
		t.Fatalf("second extract: %v, %d items", err, len(after))
	}
	if before[0].ExternalID == after[0].ExternalID {
		t.Error("re-recorded file should produce a new external id")
	}
}

func TestPlaudDeliverTranscribesEachFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	writeRecording(t, dir, "one.m4a", []byte("audio-one"), now.Add(-time.Hour))
	writeRecording(t, dir, "two.m4a", []byte("audio-two"), now.Add(-30*time.Minute))

	var got []client.TranscribeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req client.TranscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		got = append(got, req)
		_ = json.NewEncoder(w).Encode(client.TranscribeResult{Status: client.StatusCreated})
	}))
	defer server.Close()

	p := NewPlaud(dir)
	p.PersonName = "John Smith"

	items, err := p.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}

	c := client.New(server.URL)
	result, err := p.Deliver(context.Background(), c, items)
	if err != nil {
		t.Fatal(err)
	}

	if result.Processed != 2 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transcribe requests, got %d", len(got))
	}

	decoded, err := base64.StdEncoding.DecodeString(got[0].AudioBase64)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != "audio-two" { // items are newest first
		t.Errorf("first delivered audio = %q", decoded)
	}
	if got[0].Source != models.SourcePlaud || got[0].ExternalID != items[0].ExternalID {
		t.Errorf("request = %+v", got[0])
	}
	if got[0].PersonHint == nil || got[0].PersonHint.Name != "John Smith" {
		t.Errorf("person hint = %+v", got[0].PersonHint)
	}

	for i, outcome := range result.Results {
		if !outcome.Terminal() {
			t.Errorf("outcome %d not terminal: %+v", i, outcome)
		}
	}
}

func TestPlaudDeliverAbortsOnTransportFailure(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeRecording(t, dir, "one.m4a", []byte("audio-one"), now.Add(-time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewPlaud(dir)
	items, err := p.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}

	result, err := p.Deliver(context.Background(), client.New(server.URL), items)
	if result != nil {
		t.Errorf("expected nil result on transport failure, got %+v", result)
	}
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestPlaudDeliverUnreadableFileBecomesFailedOutcome(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeRecording(t, dir, "good.m4a", []byte("audio"), now.Add(-time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.TranscribeResult{Status: client.StatusCreated})
	}))
	defer server.Close()

	p := NewPlaud(dir)
	items, err := p.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}

	// A file deleted between extract and deliver cannot be read.
	ghost := items[0]
	ghost.ExternalID = "ghost"
	ghost.Metadata = map[string]string{"audioPath": filepath.Join(dir, "gone.m4a")}
	batch := []models.CanonicalItem{ghost, items[0]}

	result, err := p.Deliver(context.Background(), client.New(server.URL), batch)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Processed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Results[0].Status != client.StatusFailed || result.Results[0].ID != "ghost" {
		t.Errorf("results = %+v", result.Results)
	}
}
