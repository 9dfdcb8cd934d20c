package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
)

// documentXML returns the main part of a DOCX archive.
func documentXML(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("not a zip archive: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open document.xml: %v", err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read document.xml: %v", err)
		}
		return string(b)
	}
	t.Fatal("archive has no word/document.xml")
	return ""
}

func newExporter(t *testing.T) *Exporter {
	t.Helper()
	cat, err := i18n.New(i18n.English)
	if err != nil {
		t.Fatal(err)
	}
	return New(WithCatalog(cat.WithLocation(time.UTC)))
}

func TestNotes_OrdersOldestFirst(t *testing.T) {
	t.Parallel()

	notes := []note.Note{
		{ID: "5", Title: "Five", RawTranscription: "raw five", Timestamp: 5},
		{ID: "1", Title: "One", PolishedNote: "polished one", Timestamp: 1},
		{ID: "3", Title: "Three", RawTranscription: "raw three", Timestamp: 3},
	}
	var buf bytes.Buffer
	if err := newExporter(t).Notes(context.Background(), &buf, notes); err != nil {
		t.Fatalf("Notes: %v", err)
	}
	doc := documentXML(t, buf.Bytes())

	one, three, five := strings.Index(doc, "One"), strings.Index(doc, "Three"), strings.Index(doc, "Five")
	if one < 0 || three < 0 || five < 0 {
		t.Fatalf("missing titles in document:\n%s", doc)
	}
	if !(one < three && three < five) {
		t.Errorf("titles out of order: One@%d Three@%d Five@%d", one, three, five)
	}
}

func TestNotes_Sections(t *testing.T) {
	t.Parallel()

	notes := []note.Note{
		{ID: "a", PolishedNote: "# Summary\n\n- first\n  \n- second", Timestamp: 1},
		{ID: "b", Title: "Raw only", RawTranscription: "spoken words", Timestamp: 2},
	}
	var buf bytes.Buffer
	if err := newExporter(t).Notes(context.Background(), &buf, notes); err != nil {
		t.Fatalf("Notes: %v", err)
	}
	doc := documentXML(t, buf.Bytes())

	for _, want := range []string{"Untitled note", "Polished note", "- first", "- second", "Raw transcription", "spoken words", "1/1/1970, 12:00 AM"} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if n := strings.Count(doc, "Raw transcription"); n != 1 {
		t.Errorf("raw heading count = %d, want 1", n)
	}
	if n := strings.Count(doc, "Polished note"); n != 1 {
		t.Errorf("polished heading count = %d, want 1", n)
	}
}

func TestNotes_NothingToExport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		notes []note.Note
	}{
		{name: "no notes"},
		{name: "title only", notes: []note.Note{{ID: "a", Title: "Only a title"}}},
		{name: "whitespace", notes: []note.Note{{ID: "a", RawTranscription: " \n ", PolishedNote: "\t"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			err := newExporter(t).Notes(context.Background(), &buf, tc.notes)
			if !errors.Is(err, ErrNothingToExport) {
				t.Fatalf("err = %v, want ErrNothingToExport", err)
			}
			if buf.Len() != 0 {
				t.Errorf("refusal wrote %d bytes", buf.Len())
			}
		})
	}
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	e := newExporter(t)
	var buf bytes.Buffer
	if err := e.Answer(context.Background(), &buf, "line one\nline two"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	doc := documentXML(t, buf.Bytes())
	if !strings.Contains(doc, "line one") || !strings.Contains(doc, "line two") {
		t.Errorf("answer text missing:\n%s", doc)
	}

	buf.Reset()
	if err := e.Answer(context.Background(), &buf, "  \n"); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("blank answer err = %v, want ErrNothingToExport", err)
	}
}

func TestFilenames(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	if got := NotesFilename(now); got != "all_notes_2026-03-14.docx" {
		t.Errorf("NotesFilename = %q", got)
	}
	if got := AnswerFilename(now); got != "ai_response_1773480600000.docx" {
		t.Errorf("AnswerFilename = %q", got)
	}
}
