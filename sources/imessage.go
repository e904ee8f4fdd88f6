// ABOUTME: iMessage source adapter reading the macOS Messages database
// ABOUTME: Groups recent messages into per-chat conversation items
package sources

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/timeparse"
)

// fullDiskAccessHint is shown when the Messages database exists but
// cannot be opened, which on macOS means the process lacks Full Disk
// Access.
const fullDiskAccessHint = "Open System Settings > Privacy & Security > Full Disk Access, " +
	"add your terminal (or the commsync binary), then restart it."

// IMessage reads conversations from the macOS Messages chat database.
// The database is opened read-only; a short busy timeout keeps a locked
// database from hanging the cycle.
type IMessage struct {
	DBPath string

	// messageFetchMultiplier bounds the raw row scan relative to the
	// batch cap; one conversation aggregates many messages.
	messageFetchMultiplier int
}

// NewIMessage creates the adapter for a chat.db path.
func NewIMessage(dbPath string) *IMessage {
	return &IMessage{DBPath: dbPath, messageFetchMultiplier: 10}
}

func (im *IMessage) Name() models.Source { return models.SourceIMessage }

func (im *IMessage) Describe() string {
	return fmt.Sprintf("iMessage database at %s", im.DBPath)
}

// handleInfo is contact routing data for one Messages handle row.
type handleInfo struct {
	identifier string
	phone      string
	email      string
}

// conversation is the raw grouped form of one chat's recent messages.
type conversation struct {
	chatIdentifier string
	displayName    string
	phone          string
	email          string
	messages       []chatMessage
	latestDate     int64 // Apple-epoch nanoseconds
}

type chatMessage struct {
	text     string
	date     int64
	isFromMe bool
}

// Extract groups recent messages into one canonical item per chat.
func (im *IMessage) Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error) {
	db, err := im.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	handles, err := im.loadHandles(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to load handles: %w", err)
	}

	conversations, err := im.listConversations(ctx, db, handles, window, cap)
	if err != nil {
		return nil, err
	}

	items := make([]models.CanonicalItem, 0, len(conversations))
	for _, conv := range conversations {
		if item := im.normalize(conv); item != nil {
			items = append(items, *item)
		}
	}

	return filterAndCap(items, window, synced, cap), nil
}

// open connects read-only and probes access. A missing file is
// ErrUnavailable; an unopenable existing file is an access problem and
// gets the Full Disk Access remediation hint.
func (im *IMessage) open() (*sql.DB, error) {
	if _, err := os.Stat(im.DBPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("imessage database not found at %s: %w", im.DBPath, ErrUnavailable)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=2000", im.DBPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open imessage database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("SELECT 1 FROM message LIMIT 1"); err != nil {
		_ = db.Close()
		if strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("not a Messages database at %s: %w", im.DBPath, ErrUnavailable)
		}
		return nil, &AccessDeniedError{Path: im.DBPath, Hint: fullDiskAccessHint}
	}

	return db, nil
}

func (im *IMessage) loadHandles(ctx context.Context, db *sql.DB) (map[int64]handleInfo, error) {
	rows, err := db.QueryContext(ctx, "SELECT ROWID, id FROM handle")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	handles := make(map[int64]handleInfo)
	for rows.Next() {
		var rowID int64
		var identifier string
		if err := rows.Scan(&rowID, &identifier); err != nil {
			return nil, err
		}

		info := handleInfo{identifier: identifier}
		if strings.Contains(identifier, "@") {
			info.email = identifier
		} else if looksLikePhone(identifier) {
			info.phone = identifier
		}
		handles[rowID] = info
	}
	return handles, rows.Err()
}

func looksLikePhone(s string) bool {
	stripped := strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(s)
	if strings.HasPrefix(stripped, "+") {
		stripped = stripped[1:]
	}
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// listConversations scans recent messages and groups them by chat. A row
// that fails to scan is skipped, not fatal.
func (im *IMessage) listConversations(ctx context.Context, db *sql.DB, handles map[int64]handleInfo, window TimeRange, cap int) ([]conversation, error) {
	var sinceApple int64
	if !window.Since.IsZero() {
		sinceApple = timeparse.ToAppleNanoseconds(window.Since)
	}

	limit := cap * im.messageFetchMultiplier
	if limit <= 0 {
		limit = 1000
	}

	rows, err := db.QueryContext(ctx, `
		SELECT
			m.guid,
			m.text,
			m.date,
			m.is_from_me,
			m.handle_id,
			COALESCE(c.chat_identifier, ''),
			COALESCE(c.display_name, '')
		FROM message m
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN chat c ON cmj.chat_id = c.ROWID
		WHERE m.date >= ?
		ORDER BY m.date DESC
		LIMIT ?
	`, sinceApple, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	grouped := make(map[string]*conversation)
	var order []string

	for rows.Next() {
		var guid string
		var text sql.NullString
		var date int64
		var isFromMe int
		var handleID sql.NullInt64
		var chatIdentifier, displayName string

		if err := rows.Scan(&guid, &text, &date, &isFromMe, &handleID, &chatIdentifier, &displayName); err != nil {
			fmt.Printf("  ✗ Skipping unreadable message row: %v\n", err)
			continue
		}
		if !text.Valid || text.String == "" {
			continue
		}

		key := chatIdentifier
		if key == "" {
			key = fmt.Sprintf("handle_%d", handleID.Int64)
		}

		conv, ok := grouped[key]
		if !ok {
			info := handles[handleID.Int64]
			conv = &conversation{
				chatIdentifier: key,
				displayName:    displayName,
				phone:          info.phone,
				email:          info.email,
				latestDate:     date,
			}
			grouped[key] = conv
			order = append(order, key)
		}

		conv.messages = append(conv.messages, chatMessage{
			text:     text.String,
			date:     date,
			isFromMe: isFromMe != 0,
		})
		if date > conv.latestDate {
			conv.latestDate = date
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading messages: %w", err)
	}

	conversations := make([]conversation, 0, len(order))
	for _, key := range order {
		conversations = append(conversations, *grouped[key])
	}
	return conversations, nil
}

// normalize builds one canonical text item from a conversation. The
// external id covers the chat identifier and the newest message date, so
// a chat with new activity produces a new item.
func (im *IMessage) normalize(conv conversation) *models.CanonicalItem {
	if len(conv.messages) == 0 {
		return nil
	}

	sort.Slice(conv.messages, func(i, j int) bool {
		return conv.messages[i].date < conv.messages[j].date
	})

	counterpart := conv.displayName
	if counterpart == "" {
		counterpart = conv.phone
	}
	if counterpart == "" {
		counterpart = conv.email
	}
	if counterpart == "" {
		counterpart = "Unknown"
	}

	var transcript strings.Builder
	for i, msg := range conv.messages {
		sender := counterpart
		if msg.isFromMe {
			sender = "Me"
		}
		if i > 0 {
			transcript.WriteByte('\n')
		}
		stamp := timeparse.FromAppleNanoseconds(msg.date).Format("15:04")
		fmt.Fprintf(&transcript, "[%s] %s: %s", stamp, sender, msg.text)
	}

	var participants []models.Participant
	switch {
	case conv.phone != "":
		participants = append(participants, models.Participant{Phone: conv.phone, Name: conv.displayName})
	case conv.email != "":
		participants = append(participants, models.Participant{Email: conv.email, Name: conv.displayName})
	case conv.displayName != "":
		participants = append(participants, models.Participant{Name: conv.displayName})
	}

	return &models.CanonicalItem{
		ExternalID: models.DeriveExternalID(models.SourceIMessage,
			conv.chatIdentifier, fmt.Sprintf("%d", conv.latestDate)),
		Source:       models.SourceIMessage,
		Type:         models.TypeText,
		Title:        fmt.Sprintf("iMessage with %s", counterpart),
		Transcript:   transcript.String(),
		Timestamp:    timeparse.FromAppleNanoseconds(conv.latestDate),
		Participants: participants,
		Metadata: map[string]string{
			"chatIdentifier": conv.chatIdentifier,
			"messageCount":   fmt.Sprintf("%d", len(conv.messages)),
		},
	}
}
