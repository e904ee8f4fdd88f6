// ABOUTME: Tests for the iMessage database adapter
// ABOUTME: Uses fixture chat.db files to verify grouping, windowing, and availability
package sources

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/timeparse"
)

// newFixtureDB creates a minimal Messages-shaped database.
func newFixtureDB(t *testing.T) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema := []string{
		`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT)`,
		`CREATE TABLE message (ROWID INTEGER PRIMARY KEY, guid TEXT, text TEXT, date INTEGER, is_from_me INTEGER, handle_id INTEGER)`,
		`CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, chat_identifier TEXT, display_name TEXT)`,
		`CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	return path, db
}

func insertMessage(t *testing.T, db *sql.DB, rowID int, guid, text string, at time.Time, fromMe bool, handleID, chatID int) {
	t.Helper()
	fm := 0
	if fromMe {
		fm = 1
	}
	if _, err := db.Exec(
		`INSERT INTO message (ROWID, guid, text, date, is_from_me, handle_id) VALUES (?, ?, ?, ?, ?, ?)`,
		rowID, guid, text, timeparse.ToAppleNanoseconds(at), fm, handleID,
	); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		`INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)`, chatID, rowID,
	); err != nil {
		t.Fatal(err)
	}
}

func TestIMessageMissingDBIsUnavailable(t *testing.T) {
	im := NewIMessage(filepath.Join(t.TempDir(), "chat.db"))
	_, err := im.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestIMessageWrongSchemaIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE unrelated (x INTEGER)`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	im := NewIMessage(path)
	_, extractErr := im.Extract(context.Background(), Unbounded(), NoneSynced, 10)
	if !errors.Is(extractErr, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for non-Messages database, got %v", extractErr)
	}
}

func TestIMessageGroupsConversations(t *testing.T) {
	path, db := newFixtureDB(t)

	if _, err := db.Exec(`INSERT INTO handle (ROWID, id) VALUES (1, '+13125550100'), (2, 'kate@example.com')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, '+13125550100', 'John Smith'), (2, 'kate@example.com', '')`); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	insertMessage(t, db, 1, "g1", "hey", now.Add(-30*time.Minute), false, 1, 1)
	insertMessage(t, db, 2, "g2", "hi back", now.Add(-29*time.Minute), true, 1, 1)
	insertMessage(t, db, 3, "g3", "lunch?", now.Add(-10*time.Minute), false, 2, 2)
	insertMessage(t, db, 4, "g4", "", now.Add(-5*time.Minute), false, 2, 2) // attachment-only row

	im := NewIMessage(path)
	items, err := im.Extract(context.Background(), Window(24*time.Hour), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(items))
	}

	// Newest conversation first.
	if items[0].Title != "iMessage with kate@example.com" {
		t.Errorf("first item title = %q", items[0].Title)
	}
	if items[0].Participants[0].Email != "kate@example.com" {
		t.Errorf("participants = %+v", items[0].Participants)
	}

	john := items[1]
	if john.Title != "iMessage with John Smith" {
		t.Errorf("second item title = %q", john.Title)
	}
	if john.Participants[0].Phone != "+13125550100" || john.Participants[0].Name != "John Smith" {
		t.Errorf("participants = %+v", john.Participants)
	}
	if !strings.Contains(john.Transcript, "John Smith: hey") || !strings.Contains(john.Transcript, "Me: hi back") {
		t.Errorf("transcript = %q", john.Transcript)
	}
	if john.Source != models.SourceIMessage || john.Type != models.TypeText {
		t.Errorf("wrong classification: %+v", john)
	}
}

func TestIMessageWindowExcludesOldMessages(t *testing.T) {
	path, db := newFixtureDB(t)

	if _, err := db.Exec(`INSERT INTO handle (ROWID, id) VALUES (1, '+13125550100')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, '+13125550100', '')`); err != nil {
		t.Fatal(err)
	}

	insertMessage(t, db, 1, "g1", "ancient history", time.Now().Add(-72*time.Hour), false, 1, 1)

	im := NewIMessage(path)
	items, err := im.Extract(context.Background(), Window(24*time.Hour), NoneSynced, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items outside the window, got %d", len(items))
	}
}

func TestIMessageIdempotentSecondExtract(t *testing.T) {
	path, db := newFixtureDB(t)

	if _, err := db.Exec(`INSERT INTO handle (ROWID, id) VALUES (1, '+13125550100')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, '+13125550100', '')`); err != nil {
		t.Fatal(err)
	}
	insertMessage(t, db, 1, "g1", "hello", time.Now().Add(-time.Hour), false, 1, 1)

	im := NewIMessage(path)
	first, err := im.Extract(context.Background(), Window(24*time.Hour), NoneSynced, 10)
	if err != nil || len(first) != 1 {
		t.Fatalf("first extract: %v, %d items", err, len(first))
	}

	second, err := im.Extract(context.Background(), Window(24*time.Hour), set{first[0].ExternalID: {}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("expected idempotent second extract, got %d items", len(second))
	}
}

func TestLooksLikePhone(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"+13125550100", true},
		{"312-555-0100", true},
		{"(312) 555-0100", true},
		{"kate@example.com", false},
		{"shortcode", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikePhone(tt.in); got != tt.want {
			t.Errorf("looksLikePhone(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
