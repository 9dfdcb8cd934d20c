// Package note defines the note data model shared by the store, the session
// controller, the assistant and the exporter.
package note

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Note is one voice note. JSON field names match the persisted snapshot.
type Note struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	RawTranscription string `json:"rawTranscription"`
	PolishedNote     string `json:"polishedNote"`
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// New returns a blank note created at now.
func New(now time.Time) Note {
	return Note{
		ID:        NewID(),
		Timestamp: now.UnixMilli(),
	}
}

// NewID returns a fresh note identifier.
func NewID() string {
	return "note_" + uuid.NewString()
}

// HasContent reports whether the raw or polished text is non-blank.
func (n Note) HasContent() bool {
	return strings.TrimSpace(n.RawTranscription) != "" || strings.TrimSpace(n.PolishedNote) != ""
}

// IsEmpty reports whether the note has neither a title nor any text. Empty
// notes are left out of the assistant context.
func (n Note) IsEmpty() bool {
	return strings.TrimSpace(n.Title) == "" && !n.HasContent()
}

// Time returns the creation time.
func (n Note) Time() time.Time {
	return time.UnixMilli(n.Timestamp)
}

// MergeLive returns stored with live laid over the entry of the same ID (or
// added when absent), sorted by timestamp ascending. stored is not modified.
// A live note without an ID is ignored.
func MergeLive(stored []Note, live Note) []Note {
	out := make([]Note, 0, len(stored)+1)
	seen := false
	for _, n := range stored {
		if live.ID != "" && n.ID == live.ID {
			if !seen {
				out = append(out, live)
				seen = true
			}
			continue
		}
		out = append(out, n)
	}
	if live.ID != "" && !seen {
		out = append(out, live)
	}
	SortByTime(out)
	return out
}

// SortByTime orders notes oldest first, keeping the relative order of notes
// with equal timestamps.
func SortByTime(notes []Note) {
	slices.SortStableFunc(notes, func(a, b Note) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
}

// ContentState tags what a displayed text field currently holds.
type ContentState string

const (
	// Empty marks a field that has never been rendered.
	Empty ContentState = "empty"
	// Placeholder marks a field showing placeholder text instead of content.
	Placeholder ContentState = "placeholder"
	// Filled marks a field holding user or generated content.
	Filled ContentState = "filled"
)

// FieldStates carries the ContentState of the three note surfaces.
type FieldStates struct {
	Title    ContentState `json:"title"`
	Raw      ContentState `json:"raw"`
	Polished ContentState `json:"polished"`
}

// FreshStates is the state set of a newly created note: every surface shows
// its placeholder.
func FreshStates() FieldStates {
	return FieldStates{Title: Placeholder, Raw: Placeholder, Polished: Placeholder}
}

// StatesFor derives field states from loaded note content.
func StatesFor(n Note) FieldStates {
	s := FreshStates()
	if strings.TrimSpace(n.Title) != "" {
		s.Title = Filled
	}
	if strings.TrimSpace(n.RawTranscription) != "" {
		s.Raw = Filled
	}
	if strings.TrimSpace(n.PolishedNote) != "" {
		s.Polished = Filled
	}
	return s
}

const maxTitleRunes = 60

var (
	headingPrefix  = regexp.MustCompile(`^#+(\s+|$)`)
	leadingMarkup  = regexp.MustCompile("^[\\*_`#\\->\\s\\[\\]\\(.\\d)]+")
	trailingMarkup = regexp.MustCompile("[\\*_`#]+$")
)

// DeriveTitle picks a title from polished markdown: the first non-empty
// heading, otherwise the first line longer than three characters once list
// and emphasis markup is stripped. It returns "" and false when no line
// qualifies; callers then keep a user-entered title or fall back to the
// placeholder.
func DeriveTitle(markdown string) (string, bool) {
	lines := strings.Split(markdown, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		title := strings.TrimSpace(headingPrefix.ReplaceAllString(line, ""))
		if title != "" {
			return title, true
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		candidate := leadingMarkup.ReplaceAllString(line, "")
		candidate = strings.TrimSpace(trailingMarkup.ReplaceAllString(candidate, ""))
		if utf8.RuneCountInString(candidate) > 3 {
			return truncate(candidate, maxTitleRunes), true
		}
	}

	return "", false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
