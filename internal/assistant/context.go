package assistant

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
)

// DefaultSystemPrompt is the chat instruction. It is a text/template with
// the fields Language (the answer language in the catalog's words) and Notes
// (the rendered note blocks).
const DefaultSystemPrompt = `Bạn là một trợ lý AI hữu ích chuyên phân tích các ghi chép giọng nói và trò chuyện với người dùng.
Nếu người dùng cung cấp ghi chép, nhiệm vụ của bạn là trả lời các câu hỏi của người dùng CHỈ dựa trên thông tin có trong các ghi chép này. Không sử dụng bất kỳ kiến thức bên ngoài nào trừ khi được yêu cầu rõ ràng. Nếu câu trả lời không có trong ghi chép, hãy nói rằng bạn không thể tìm thấy thông tin trong các ghi chép được cung cấp.
Bạn cũng có thể nhận được các tệp như hình ảnh, PDF hoặc tài liệu DOCX. Nếu người dùng cung cấp một tệp, bạn có thể phân tích nội dung của nó, trả lời các câu hỏi về nó, hoặc sử dụng nó làm ngữ cảnh cho cuộc trò chuyện.
Luôn trả lời bằng {{.Language}}.

Đây là các ghi chép (nếu có) theo thứ tự thời gian:

{{.Notes}}`

type promptData struct {
	Language string
	Notes    string
}

// ParseSystemPrompt compiles a system prompt template. An empty text selects
// DefaultSystemPrompt.
func ParseSystemPrompt(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultSystemPrompt
	}
	t, err := template.New("system").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("assistant: parse system prompt: %w", err)
	}
	return t, nil
}

// BuildContext renders the notes the assistant may answer from. live is laid
// over its stored copy; notes without a title or any text are skipped; the
// rest appear oldest first, one labelled block each. It returns the rendered
// blocks and how many notes they contain.
func BuildContext(cat *i18n.Catalog, stored []note.Note, live note.Note) (string, int) {
	var blocks []string
	for _, n := range note.MergeLive(stored, live) {
		if n.IsEmpty() {
			continue
		}
		blocks = append(blocks, renderNote(cat, n))
	}
	return strings.Join(blocks, "\n\n"), len(blocks)
}

func renderNote(cat *i18n.Catalog, n note.Note) string {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = cat.Text(i18n.UntitledNote)
	}
	polished := orNone(cat, n.PolishedNote)
	raw := orNone(cat, n.RawTranscription)

	var b strings.Builder
	b.WriteString(cat.Text(i18n.ChatNoteStart))
	fmt.Fprintf(&b, "\n%s: %s\n", cat.Text(i18n.ChatNoteTitle), title)
	fmt.Fprintf(&b, "%s: %s\n\n", cat.Text(i18n.ChatNoteDate), cat.DateTime(n.Time()))
	fmt.Fprintf(&b, "%s:\n%s\n\n", cat.Text(i18n.ChatNotePolished), polished)
	fmt.Fprintf(&b, "%s:\n%s\n", cat.Text(i18n.ChatNoteRaw), raw)
	b.WriteString(cat.Text(i18n.ChatNoteEnd))
	return b.String()
}

func orNone(cat *i18n.Catalog, s string) string {
	if strings.TrimSpace(s) == "" {
		return cat.Text(i18n.ChatNone)
	}
	return s
}
