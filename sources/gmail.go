// ABOUTME: Gmail source adapter for high-signal email interactions
// ABOUTME: Imports direct correspondence as canonical email items via Gmail API
package sources

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/timeparse"
)

const gmailPageSize = 100

// Gmail imports direct (non-list, non-promotional) email as canonical
// email items. Authentication uses the stored OAuth token; without one
// the source is unavailable and skipped.
type Gmail struct {
	service   *gmail.Service
	userEmail string
}

// NewGmail creates the adapter. The API service is built lazily on first
// extraction so an unauthenticated agent can still sync other sources.
func NewGmail() *Gmail {
	return &Gmail{}
}

func (g *Gmail) Name() models.Source { return models.SourceGmail }

func (g *Gmail) Describe() string {
	return "Gmail API (direct correspondence)"
}

func (g *Gmail) ensureService(ctx context.Context) error {
	if g.service != nil {
		return nil
	}

	token, err := LoadToken()
	if err != nil {
		return fmt.Errorf("gmail not authenticated, run 'commsync auth' first: %w", ErrUnavailable)
	}

	config := NewOAuthConfig()
	service, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return fmt.Errorf("failed to create gmail service: %w", err)
	}

	profile, err := service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get gmail profile: %w", err)
	}

	g.service = service
	g.userEmail = profile.EmailAddress
	return nil
}

// Extract lists in-window messages and normalizes each. A message that
// fails to fetch or parse is skipped with a logged reason.
func (g *Gmail) Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error) {
	if err := g.ensureService(ctx); err != nil {
		return nil, err
	}

	query := "-category:promotions -category:social -in:chats"
	if !window.Since.IsZero() {
		query = fmt.Sprintf("after:%d %s", window.Since.Unix(), query)
	}

	var items []models.CanonicalItem
	pageToken := ""

	for {
		call := g.service.Users.Messages.List("me").
			Q(query).
			MaxResults(gmailPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list gmail messages: %w", err)
		}

		for _, ref := range page.Messages {
			externalID := models.DeriveExternalID(models.SourceGmail, ref.Id)
			if synced != nil && synced.Contains(externalID) {
				continue
			}

			item, err := g.fetchAndNormalize(ctx, ref.Id, externalID)
			if err != nil {
				fmt.Printf("  ✗ Skipping message %s: %v\n", ref.Id, err)
				continue
			}
			if item != nil {
				items = append(items, *item)
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" || (cap > 0 && len(items) >= cap) {
			break
		}
	}

	return filterAndCap(items, window, synced, cap), nil
}

// fetchAndNormalize pulls one message's metadata headers and builds the
// canonical email item. Returns nil for mail that is not direct
// correspondence (no counterpart address).
func (g *Gmail) fetchAndNormalize(ctx context.Context, messageID, externalID string) (*models.CanonicalItem, error) {
	message, err := g.service.Users.Messages.Get("me", messageID).
		Format("metadata").
		MetadataHeaders("From", "To", "Cc", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	headers := headerMap(message.Payload)

	parsed, ok := timeparse.ParseWith(cleanDateHeader(headers["Date"]), timeparse.RFC2822)
	if !ok {
		// Fall back to the server's internal receive time (epoch ms).
		if message.InternalDate == 0 {
			return nil, nil
		}
		parsed = timeparse.FromEpoch(float64(message.InternalDate))
	}

	fromName, fromEmail := extractEmailAddress(headers["From"])
	toName, toEmail := extractEmailAddress(headers["To"])

	// Attribute the interaction to the counterpart, not ourselves.
	counterName, counterEmail := fromName, fromEmail
	if strings.EqualFold(fromEmail, g.userEmail) {
		counterName, counterEmail = toName, toEmail
	}
	if counterEmail == "" || strings.EqualFold(counterEmail, g.userEmail) {
		return nil, nil
	}

	return &models.CanonicalItem{
		ExternalID: externalID,
		Source:     models.SourceGmail,
		Type:       models.TypeEmail,
		Title:      headers["Subject"],
		Content:    message.Snippet,
		Timestamp:  parsed.Time,
		Participants: models.CleanParticipants([]models.Participant{
			{Name: counterName, Email: counterEmail},
		}),
		Metadata: map[string]string{
			"messageId":       message.Id,
			"threadId":        message.ThreadId,
			"timestampFormat": parsed.Format,
		},
	}, nil
}

func headerMap(payload *gmail.MessagePart) map[string]string {
	headers := make(map[string]string)
	if payload == nil {
		return headers
	}
	for _, h := range payload.Headers {
		headers[h.Name] = h.Value
	}
	return headers
}

// cleanDateHeader strips trailing zone comments like "(UTC)" that break
// layout-based parsing.
func cleanDateHeader(dateStr string) string {
	if idx := strings.Index(dateStr, " ("); idx > 0 {
		return dateStr[:idx]
	}
	return dateStr
}

// extractEmailAddress parses an address header into display name and
// address, tolerating bare addresses.
func extractEmailAddress(header string) (name, email string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ""
	}

	// Multi-recipient headers: take the first address.
	if addrs, err := mail.ParseAddressList(header); err == nil && len(addrs) > 0 {
		return addrs[0].Name, strings.ToLower(addrs[0].Address)
	}

	if addr, err := mail.ParseAddress(header); err == nil {
		return addr.Name, strings.ToLower(addr.Address)
	}

	if strings.Contains(header, "@") && !strings.ContainsAny(header, "<> ") {
		return "", strings.ToLower(header)
	}

	return "", ""
}
