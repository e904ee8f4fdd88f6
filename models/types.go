// ABOUTME: Data models for canonical interaction records
// ABOUTME: Defines CanonicalItem, Participant, and source/type enumerations
package models

import (
	"time"
)

// Source identifies where an interaction record was extracted from.
type Source string

const (
	SourceGranola  Source = "granola"
	SourceFathom   Source = "fathom"
	SourceIMessage Source = "imessage"
	SourceWhatsApp Source = "whatsapp"
	SourcePlaud    Source = "plaud"
	SourceGmail    Source = "gmail"
)

// AllSources lists every source the agent knows how to sync, in the
// order they are processed during a cycle.
var AllSources = []Source{
	SourceGranola,
	SourceFathom,
	SourceIMessage,
	SourceWhatsApp,
	SourcePlaud,
	SourceGmail,
}

// ValidSource reports whether s names a known source.
func ValidSource(s Source) bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// ItemType classifies an interaction.
type ItemType string

const (
	TypeMeeting ItemType = "meeting"
	TypeCall    ItemType = "call"
	TypeText    ItemType = "text"
	TypeEmail   ItemType = "email"
)

// Participant is one person attached to an interaction. At least one of
// Name, Phone, or Email must be set; unidentifiable entries are dropped
// during normalization.
type Participant struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	IsHost     bool   `json:"isHost,omitempty"`
	IsExternal bool   `json:"isExternal,omitempty"`
}

// Identified reports whether the participant carries at least one
// identifying field.
func (p Participant) Identified() bool {
	return p.Name != "" || p.Phone != "" || p.Email != ""
}

// CleanParticipants drops entries with no identifying field, preserving
// order.
func CleanParticipants(in []Participant) []Participant {
	out := make([]Participant, 0, len(in))
	for _, p := range in {
		if p.Identified() {
			out = append(out, p)
		}
	}
	return out
}

// CanonicalItem is the normalized interaction record every source adapter
// produces and the delivery client pushes. Items are immutable once
// produced; a re-extraction replaces the item wholesale.
//
// ExternalID is deterministic per underlying record (see DeriveExternalID)
// and unique within a source. The composite key (source, externalId) is
// what the remote service deduplicates on.
type CanonicalItem struct {
	ExternalID      string            `json:"externalId"`
	Source          Source            `json:"source"`
	Type            ItemType          `json:"type"`
	Title           string            `json:"title,omitempty"`
	Content         string            `json:"content,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Transcript      string            `json:"transcript,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	DurationSeconds int               `json:"duration,omitempty"`
	Participants    []Participant     `json:"participants,omitempty"`
	ExternalLink    string            `json:"externalLink,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// PersonHint helps the remote service match an interaction to a person.
type PersonHint struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}
