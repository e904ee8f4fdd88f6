// ABOUTME: WhatsApp source adapter for exported chat text files
// ABOUTME: Parses US, EU, and bracketed export line formats into conversation items
package sources

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/timeparse"
)

// whatsappLineFormats are the timestamp layouts seen in chat exports,
// tried in priority order. Exports carry no zone; times are taken as UTC.
var whatsappLineFormats = []timeparse.Format{
	{ID: "us-12h", Layout: "1/2/06, 3:04 PM"},
	{ID: "us-12h-4y", Layout: "1/2/2006, 3:04 PM"},
	{ID: "eu-24h", Layout: "2/1/06, 15:04"},
	{ID: "eu-24h-4y", Layout: "2/1/2006, 15:04"},
	{ID: "eu-24h-seconds", Layout: "2/1/2006, 15:04:05"},
}

var (
	// "1/15/24, 3:45 PM - Name: Message"
	whatsappDashLine = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}, \d{1,2}:\d{2}(?::\d{2})?(?:\s*[AP]M)?) - ([^:]+): (.*)$`)
	// "[15/01/2024, 15:45:30] Name: Message"
	whatsappBracketLine = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}, \d{1,2}:\d{2}(?::\d{2})?)\] ([^:]+): (.*)$`)
)

// WhatsApp reads chat exports (the "Export chat" text files) from a
// directory, one conversation item per file.
type WhatsApp struct {
	ExportDir string
}

// NewWhatsApp creates the adapter for an export directory.
func NewWhatsApp(exportDir string) *WhatsApp {
	return &WhatsApp{ExportDir: exportDir}
}

func (w *WhatsApp) Name() models.Source { return models.SourceWhatsApp }

func (w *WhatsApp) Describe() string {
	return fmt.Sprintf("WhatsApp chat exports in %s", w.ExportDir)
}

// exportedChat is the parsed form of one export file.
type exportedChat struct {
	chatName   string
	messages   []exportedMessage
	latestDate time.Time
}

type exportedMessage struct {
	date   time.Time
	sender string
	text   string
}

// Extract parses every export file in the directory. A file that fails to
// parse is skipped with a logged reason; it never aborts the listing.
func (w *WhatsApp) Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error) {
	if _, err := os.Stat(w.ExportDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("whatsapp export directory not found at %s: %w", w.ExportDir, ErrUnavailable)
	}

	var items []models.CanonicalItem
	walkErr := filepath.WalkDir(w.ExportDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}

		chat, parseErr := parseExportFile(path)
		if parseErr != nil {
			fmt.Printf("  ✗ Skipping %s: %v\n", filepath.Base(path), parseErr)
			return nil
		}
		if len(chat.messages) == 0 {
			// Not a chat export; a directory can hold unrelated text files.
			return nil
		}

		items = append(items, w.normalize(chat))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan whatsapp exports: %w", walkErr)
	}

	return filterAndCap(items, window, synced, cap), nil
}

// parseExportFile reads a chat export line by line. Lines that open a new
// message match one of the known formats; anything else continues the
// previous message's text.
func parseExportFile(path string) (exportedChat, error) {
	f, err := os.Open(path)
	if err != nil {
		return exportedChat{}, err
	}
	defer func() { _ = f.Close() }()

	chat := exportedChat{chatName: chatNameFromFilename(path)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		dateStr, sender, text, ok := matchExportLine(line)
		if !ok {
			// Continuation of a multi-line message.
			if n := len(chat.messages); n > 0 && strings.TrimSpace(line) != "" {
				chat.messages[n-1].text += "\n" + line
			}
			continue
		}

		if isMediaPlaceholder(text) {
			continue
		}

		parsed, ok := timeparse.ParseWith(strings.TrimSpace(dateStr), whatsappLineFormats)
		if !ok {
			continue
		}

		chat.messages = append(chat.messages, exportedMessage{
			date:   parsed.Time,
			sender: strings.TrimSpace(sender),
			text:   strings.TrimSpace(text),
		})
		if parsed.Time.After(chat.latestDate) {
			chat.latestDate = parsed.Time
		}
	}

	return chat, scanner.Err()
}

func matchExportLine(line string) (dateStr, sender, text string, ok bool) {
	if m := whatsappDashLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], m[3], true
	}
	if m := whatsappBracketLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], m[3], true
	}
	return "", "", "", false
}

func isMediaPlaceholder(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "<media omitted>") ||
		strings.Contains(lower, "image omitted") ||
		strings.Contains(lower, "audio omitted") ||
		strings.Contains(lower, "video omitted")
}

// chatNameFromFilename recovers the contact or group name from the
// export's filename convention.
func chatNameFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.TrimPrefix(name, "WhatsApp Chat with ")
	name = strings.TrimPrefix(name, "WhatsApp Chat - ")
	return strings.ReplaceAll(name, "_", " ")
}

// normalize builds one canonical text item from a parsed export. The
// external id covers the chat name and the newest message time, so a chat
// with new activity re-exports as a new item.
func (w *WhatsApp) normalize(chat exportedChat) models.CanonicalItem {
	var transcript strings.Builder
	seen := make(map[string]bool)
	var participants []models.Participant

	for i, msg := range chat.messages {
		if i > 0 {
			transcript.WriteByte('\n')
		}
		fmt.Fprintf(&transcript, "[%s] %s: %s", msg.date.Format("15:04"), msg.sender, msg.text)

		lower := strings.ToLower(msg.sender)
		if lower == "you" || lower == "me" || seen[msg.sender] {
			continue
		}
		seen[msg.sender] = true
		participants = append(participants, models.Participant{Name: msg.sender})
	}

	return models.CanonicalItem{
		ExternalID: models.DeriveExternalID(models.SourceWhatsApp,
			chat.chatName, chat.latestDate.Format(time.RFC3339)),
		Source:       models.SourceWhatsApp,
		Type:         models.TypeText,
		Title:        fmt.Sprintf("WhatsApp: %s", chat.chatName),
		Transcript:   transcript.String(),
		Timestamp:    chat.latestDate,
		Participants: participants,
		Metadata: map[string]string{
			"messageCount": fmt.Sprintf("%d", len(chat.messages)),
		},
	}
}
