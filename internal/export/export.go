// Package export writes notes and chat answers as DOCX documents.
package export

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fumiama/go-docx"

	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/internal/observe"
)

// ErrNothingToExport is returned when no document would have content.
var ErrNothingToExport = errors.New("export: nothing to export")

// Export kinds, as reported to metrics.
const (
	KindNotes  = "notes"
	KindAnswer = "answer"
)

// ContentType is the MIME type of the produced documents.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Exporter renders documents with localised headings.
type Exporter struct {
	cat     *i18n.Catalog
	metrics *observe.Metrics
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithCatalog sets the catalog for headings and dates. Default Vietnamese.
func WithCatalog(cat *i18n.Catalog) Option {
	return func(e *Exporter) { e.cat = cat }
}

// WithMetrics sets the metrics sink. Default observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{}
	for _, o := range opts {
		o(e)
	}
	if e.cat == nil {
		e.cat = i18n.MustNew(i18n.Vietnamese)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Notes writes every note with raw or polished text, oldest first, one note
// per page. Each note gets its title, its date and a section for each
// non-blank text.
func (e *Exporter) Notes(ctx context.Context, w io.Writer, notes []note.Note) (err error) {
	defer func() { e.metrics.RecordExport(ctx, KindNotes, err) }()

	var keep []note.Note
	for _, n := range notes {
		if n.HasContent() {
			keep = append(keep, n)
		}
	}
	if len(keep) == 0 {
		return ErrNothingToExport
	}
	slices.SortStableFunc(keep, func(a, b note.Note) int { return cmp.Compare(a.Timestamp, b.Timestamp) })

	doc := docx.New().WithDefaultTheme().WithA4Page()
	for i, n := range keep {
		title := strings.TrimSpace(n.Title)
		if title == "" {
			title = e.cat.Text(i18n.UntitledNote)
		}
		doc.AddParagraph().Style("Heading1").AddText(title).Bold().Size("32")
		doc.AddParagraph().AddText(e.cat.DateTime(n.Time())).Italic().Size("22").Color("888888")

		section(doc, e.cat.Text(i18n.ExportPolishedHeading), n.PolishedNote)
		section(doc, e.cat.Text(i18n.ExportRawHeading), n.RawTranscription)

		if i < len(keep)-1 {
			doc.AddParagraph().AddPageBreaks()
		}
	}
	return write(doc, w)
}

// Answer writes a chat answer, one paragraph per line.
func (e *Exporter) Answer(ctx context.Context, w io.Writer, text string) (err error) {
	defer func() { e.metrics.RecordExport(ctx, KindAnswer, err) }()

	if strings.TrimSpace(text) == "" {
		return ErrNothingToExport
	}
	doc := docx.New().WithDefaultTheme().WithA4Page()
	for _, line := range strings.Split(text, "\n") {
		doc.AddParagraph().AddText(line)
	}
	return write(doc, w)
}

func section(doc *docx.Docx, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	doc.AddParagraph().Style("Heading2").AddText(heading)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.AddParagraph().AddText(line)
	}
}

func write(doc *docx.Docx, w io.Writer) error {
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("export: write document: %w", err)
	}
	return nil
}

// NotesFilename is the download name of a bulk export made at now.
func NotesFilename(now time.Time) string {
	return "all_notes_" + now.UTC().Format(time.DateOnly) + ".docx"
}

// AnswerFilename is the download name of an answer exported at now.
func AnswerFilename(now time.Time) string {
	return fmt.Sprintf("ai_response_%d.docx", now.UnixMilli())
}
