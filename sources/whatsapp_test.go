// ABOUTME: Tests for the WhatsApp export adapter
// ABOUTME: Covers export line formats, media skipping, and conversation assembly
package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/commsync/models"
)

func writeExport(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWhatsAppMissingDirIsUnavailable(t *testing.T) {
	w := NewWhatsApp(filepath.Join(t.TempDir(), "missing"))
	_, err := w.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWhatsAppParseUSFormat(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "WhatsApp Chat with John Smith.txt",
		"1/15/24, 3:45 PM - John Smith: Hey there\n"+
			"1/15/24, 3:46 PM - You: Hi John\n"+
			"1/15/24, 3:47 PM - John Smith: <Media omitted>\n"+
			"1/15/24, 3:48 PM - John Smith: Did you see the doc?\n")

	w := NewWhatsApp(dir)
	items, err := w.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 conversation item, got %d", len(items))
	}

	item := items[0]
	if item.Title != "WhatsApp: John Smith" {
		t.Errorf("title = %q", item.Title)
	}
	if item.Metadata["messageCount"] != "3" {
		t.Errorf("media message should be skipped, messageCount = %q", item.Metadata["messageCount"])
	}
	if len(item.Participants) != 1 || item.Participants[0].Name != "John Smith" {
		t.Errorf("participants = %+v", item.Participants)
	}

	want := time.Date(2024, 1, 15, 15, 48, 0, 0, time.UTC)
	if !item.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want latest message time %v", item.Timestamp, want)
	}
}

func TestWhatsAppParseBracketFormat(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "WhatsApp Chat with Maria.txt",
		"[15/01/2024, 15:45:30] Maria: Hola\n"+
			"[15/01/2024, 15:46:02] Me: Hola Maria\n")

	w := NewWhatsApp(dir)
	items, err := w.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(items[0].Participants) != 1 || items[0].Participants[0].Name != "Maria" {
		t.Errorf("participants = %+v", items[0].Participants)
	}
}

func TestWhatsAppMultilineMessage(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "WhatsApp Chat with Sam.txt",
		"1/15/24, 3:45 PM - Sam: First line\nsecond line of the same message\n"+
			"1/15/24, 3:50 PM - Sam: Next message\n")

	w := NewWhatsApp(dir)
	items, err := w.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Metadata["messageCount"] != "2" {
		t.Errorf("continuation line should extend the message, count = %q", items[0].Metadata["messageCount"])
	}
}

func TestWhatsAppIgnoresNonExportTextFiles(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "notes.txt", "just some notes\nnothing structured here\n")
	writeExport(t, dir, "WhatsApp Chat with Ana.txt", "1/15/24, 3:45 PM - Ana: real message\n")

	w := NewWhatsApp(dir)
	items, err := w.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected only the real export, got %d items", len(items))
	}
}

func TestWhatsAppNewActivityYieldsNewID(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "WhatsApp Chat with Ana.txt", "1/15/24, 3:45 PM - Ana: hello\n")

	w := NewWhatsApp(dir)
	first, err := w.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if err != nil || len(first) != 1 {
		t.Fatalf("first extract: %v, %d items", err, len(first))
	}

	// Same chat, one newer message: the conversation item is replaced
	// wholesale under a new id.
	writeExport(t, dir, "WhatsApp Chat with Ana.txt",
		"1/15/24, 3:45 PM - Ana: hello\n1/16/24, 9:00 AM - Ana: more\n")

	second, err := w.Extract(context.Background(), Unbounded(), set{first[0].ExternalID: {}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Fatalf("expected updated conversation to re-extract, got %d items", len(second))
	}
	if second[0].ExternalID == first[0].ExternalID {
		t.Error("new activity must produce a new external id")
	}
	if second[0].Source != models.SourceWhatsApp || second[0].Type != models.TypeText {
		t.Errorf("wrong classification: %+v", second[0])
	}
}
