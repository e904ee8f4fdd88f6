// ABOUTME: Tests for the Gmail adapter's header parsing helpers
// ABOUTME: The API surface itself is exercised against the live service
package sources

import (
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func TestExtractEmailAddress(t *testing.T) {
	tests := []struct {
		header    string
		wantName  string
		wantEmail string
	}{
		{"John Smith <john@example.com>", "John Smith", "john@example.com"},
		{`"Smith, John" <John@Example.COM>`, "Smith, John", "john@example.com"},
		{"john@example.com", "", "john@example.com"},
		{"Ann <ann@example.com>, Bob <bob@example.com>", "Ann", "ann@example.com"},
		{"", "", ""},
		{"not an address", "", ""},
	}
	for _, tt := range tests {
		name, email := extractEmailAddress(tt.header)
		if name != tt.wantName || email != tt.wantEmail {
			t.Errorf("extractEmailAddress(%q) = (%q, %q), want (%q, %q)",
				tt.header, name, email, tt.wantName, tt.wantEmail)
		}
	}
}

func TestCleanDateHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Mon, 2 Jan 2006 15:04:05 -0700 (UTC)", "Mon, 2 Jan 2006 15:04:05 -0700"},
		{"Mon, 2 Jan 2006 15:04:05 -0700", "Mon, 2 Jan 2006 15:04:05 -0700"},
		{"(weird)", "(weird)"},
	}
	for _, tt := range tests {
		if got := cleanDateHeader(tt.in); got != tt.want {
			t.Errorf("cleanDateHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeaderMap(t *testing.T) {
	payload := &gmail.MessagePart{
		Headers: []*gmail.MessagePartHeader{
			{Name: "Subject", Value: "Quarterly review"},
			{Name: "From", Value: "ann@example.com"},
		},
	}
	headers := headerMap(payload)
	if headers["Subject"] != "Quarterly review" || headers["From"] != "ann@example.com" {
		t.Errorf("headers = %+v", headers)
	}
	if got := headerMap(nil); len(got) != 0 {
		t.Errorf("nil payload should yield an empty map, got %+v", got)
	}
}
