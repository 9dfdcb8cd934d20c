package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
	llmmock "github.com/MrWong99/voicenotes/pkg/provider/llm/mock"
)

func testCatalog(t *testing.T) *i18n.Catalog {
	t.Helper()
	cat, err := i18n.New(i18n.Vietnamese)
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	return cat.WithLocation(time.UTC)
}

func newAssistant(t *testing.T, p *llmmock.Provider) *Assistant {
	t.Helper()
	a, err := New(Config{Provider: p, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mkNote(id string, ts int64, title, raw, polished string) note.Note {
	return note.Note{ID: id, Timestamp: ts, Title: title, RawTranscription: raw, PolishedNote: polished}
}

func TestNew_RequiresProvider(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestNew_RejectsBadPrompt(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Provider: &llmmock.Provider{}, SystemPrompt: "{{.Notes"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpen_Greeting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored []note.Note
		live   note.Note
		want   i18n.Key
	}{
		{name: "no notes", want: i18n.ChatGreetingEmpty},
		{name: "only empty live note", live: mkNote("a", 1, "", "", ""), want: i18n.ChatGreetingEmpty},
		{name: "stored note", stored: []note.Note{mkNote("a", 1, "Họp", "", "")}, want: i18n.ChatGreeting},
		{name: "live note with text", live: mkNote("b", 2, "", "xin chào", ""), want: i18n.ChatGreeting},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newAssistant(t, &llmmock.Provider{})
			msg, err := a.Open(tc.stored, tc.live)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if want := a.cat.Text(tc.want); msg.Text != want {
				t.Errorf("greeting = %q, want %q", msg.Text, want)
			}
			if msg.Role != RoleAssistant || msg.Exportable {
				t.Errorf("greeting = %+v, want non-exportable assistant message", msg)
			}
			if got := a.Messages(); len(got) != 1 || got[0].ID != msg.ID {
				t.Errorf("transcript = %+v, want greeting only", got)
			}
		})
	}
}

func TestBuildContext(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)

	stored := []note.Note{
		mkNote("late", 3000, "Muộn", "raw late", "polished late"),
		mkNote("live", 2000, "Cũ", "old raw", ""),
		mkNote("early", 1000, "", "raw early", ""),
		mkNote("blank", 500, "", "", ""),
	}
	live := mkNote("live", 2000, "Mới", "new raw", "")

	got, count := BuildContext(cat, stored, live)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if strings.Contains(got, "old raw") || !strings.Contains(got, "new raw") {
		t.Error("live note must replace its stored copy")
	}
	early := strings.Index(got, "raw early")
	mid := strings.Index(got, "new raw")
	late := strings.Index(got, "raw late")
	if !(early < mid && mid < late) {
		t.Errorf("notes not oldest first:\n%s", got)
	}
	if !strings.Contains(got, "Tiêu đề: "+cat.Text(i18n.UntitledNote)) {
		t.Error("untitled note should use the untitled label")
	}
	if !strings.Contains(got, "Nội dung đã trau chuốt:\nChưa có") {
		t.Errorf("missing polished fallback:\n%s", got)
	}
	if n := strings.Count(got, "--- Ghi chép bắt đầu ---"); n != 3 {
		t.Errorf("note blocks = %d, want 3", n)
	}
	if !strings.Contains(got, "Ngày: 1/1/1970 00:00") {
		t.Errorf("missing date line:\n%s", got)
	}
}

func TestOpen_SystemPrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "ok"}}}
	a, err := New(Config{
		Provider:       p,
		Catalog:        testCatalog(t),
		TargetLanguage: "English",
		SystemPrompt:   "Answer in {{.Language}}.\n{{.Notes}}",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Open([]note.Note{mkNote("a", 1, "Họp", "ngân sách", "")}, note.Note{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := p.Streams()
	if len(calls) != 1 {
		t.Fatalf("stream calls = %d, want 1", len(calls))
	}
	sys := calls[0].Req.SystemPrompt
	if !strings.HasPrefix(sys, "Answer in tiếng Anh.") || !strings.Contains(sys, "ngân sách") {
		t.Errorf("system prompt = %q", sys)
	}
}

func TestSend_StreamsFragments(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "**Ngân"}, {Text: " sách**"}, {Text: " đã duyệt."}}}
	a := newAssistant(t, p)
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}

	var frags []Message
	reply, err := a.Send(context.Background(), "  Quyết định gì?  ", func(m Message) { frags = append(frags, m) })
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != "**Ngân sách** đã duyệt." {
		t.Errorf("reply = %q", reply.Text)
	}
	if !strings.Contains(reply.HTML, "<strong>Ngân sách</strong>") {
		t.Errorf("reply HTML = %q", reply.HTML)
	}
	if !reply.Exportable || reply.Pending || reply.Error {
		t.Errorf("reply flags = %+v", reply)
	}
	if len(frags) != 4 {
		t.Fatalf("fragments = %d, want 3 partial and 1 final", len(frags))
	}
	for _, f := range frags[:3] {
		if !f.Pending || f.ID != reply.ID {
			t.Errorf("partial = %+v", f)
		}
	}
	if frags[3].Pending {
		t.Error("last fragment must be final")
	}

	msgs := a.Messages()
	if len(msgs) != 3 || msgs[1].Role != RoleUser || msgs[1].Text != "Quyết định gì?" || msgs[2].ID != reply.ID {
		t.Errorf("transcript = %+v", msgs)
	}

	req := p.Streams()[0].Req
	if last := req.Messages[len(req.Messages)-1]; last.Text() != "Quyết định gì?" {
		t.Errorf("last request message = %q", last.Text())
	}
}

func TestSend_HistoryCarriesTurns(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "trả lời"}}}
	a := newAssistant(t, p)
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"một", "hai"} {
		if _, err := a.Send(context.Background(), q, nil); err != nil {
			t.Fatalf("Send(%q): %v", q, err)
		}
	}
	second := p.Streams()[1].Req.Messages
	if len(second) != 3 {
		t.Fatalf("second request messages = %d, want 3", len(second))
	}
	if second[0].Text() != "một" || second[1].Text() != "trả lời" || second[2].Text() != "hai" {
		t.Errorf("unexpected history: %+v", second)
	}
}

func TestSend_ErrorYieldsApology(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    *llmmock.Provider
	}{
		{name: "request fails", p: &llmmock.Provider{StreamErr: errors.New("quota")}},
		{name: "stream fails", p: &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "nửa"}, {FinishReason: llm.FinishError, Text: "reset"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newAssistant(t, tc.p)
			if _, err := a.Open(nil, note.Note{}); err != nil {
				t.Fatal(err)
			}
			reply, err := a.Send(context.Background(), "hỏi", nil)
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if !reply.Error || reply.Exportable {
				t.Errorf("reply flags = %+v", reply)
			}
			if reply.Text != a.cat.Text(i18n.ChatError) {
				t.Errorf("reply = %q", reply.Text)
			}
			if _, err := a.Answer(reply.ID); !errors.Is(err, ErrNotExportable) {
				t.Errorf("Answer error = %v, want ErrNotExportable", err)
			}
			// Failed turns stay out of the model history.
			if _, err := a.Send(context.Background(), "lại", nil); err != nil {
				t.Fatal(err)
			}
			streams := tc.p.Streams()
			if n := len(streams[1].Req.Messages); n != 1 {
				t.Errorf("second request messages = %d, want 1", n)
			}
		})
	}
}

func TestSend_EmptyAnswerNotExportable(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, &llmmock.Provider{})
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}
	reply, err := a.Send(context.Background(), "hỏi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Exportable || reply.Error {
		t.Errorf("reply flags = %+v", reply)
	}
}

func TestSend_Refusals(t *testing.T) {
	t.Parallel()

	a := newAssistant(t, &llmmock.Provider{})
	if _, err := a.Send(context.Background(), "hi", nil); !errors.Is(err, ErrNoSession) {
		t.Errorf("Send without chat = %v, want ErrNoSession", err)
	}
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Send(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank Send = %v, want ErrEmptyMessage", err)
	}
	if got := len(a.Messages()); got != 1 {
		t.Errorf("blank Send changed transcript to %d messages", got)
	}
}

// gatedProvider blocks StreamCompletion until release is closed.
type gatedProvider struct {
	llmmock.Provider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Provider.StreamCompletion(ctx, req)
}

func TestSend_BusyWhileInFlight(t *testing.T) {
	t.Parallel()

	g := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{})}
	g.StreamChunks = []llm.Chunk{{Text: "xong"}}
	a, err := New(Config{Provider: g, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}

	done := make(chan Message)
	go func() {
		m, _ := a.Send(context.Background(), "một", nil)
		done <- m
	}()
	<-g.entered

	if _, err := a.Send(context.Background(), "hai", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send = %v, want ErrBusy", err)
	}
	if err := a.SetInput("nháp"); !errors.Is(err, ErrBusy) {
		t.Errorf("SetInput while busy = %v, want ErrBusy", err)
	}
	close(g.release)
	if m := <-done; m.Text != "xong" {
		t.Errorf("reply = %q", m.Text)
	}
	if err := a.SetInput("nháp"); err != nil {
		t.Errorf("SetInput after answer: %v", err)
	}
}

func TestSend_CloseDuringFlightDropsAnswer(t *testing.T) {
	t.Parallel()

	g := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{})}
	g.StreamChunks = []llm.Chunk{{Text: "muộn"}}
	a, err := New(Config{Provider: g, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.Send(context.Background(), "một", nil)
	}()
	<-g.entered
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}
	close(g.release)
	<-done

	if got := a.Messages(); len(got) != 1 {
		t.Errorf("new chat transcript = %d messages, want greeting only", len(got))
	}
}

func TestAttachments(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Đây là một biểu đồ."}}}
	a := newAssistant(t, p)

	img, err := NewAttachment("chart.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("NewAttachment: %v", err)
	}
	if err := a.Attach(img); !errors.Is(err, ErrNoSession) {
		t.Errorf("Attach without chat = %v, want ErrNoSession", err)
	}
	if _, err := a.Open(nil, note.Note{}); err != nil {
		t.Fatal(err)
	}
	if err := a.Attach(img); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if info := a.Attachment(); info == nil || info.Name != "chart.png" || info.Size != 4 {
		t.Errorf("staged = %+v", info)
	}

	// An attachment alone is a valid message.
	reply, err := a.Send(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != "Đây là một biểu đồ." {
		t.Errorf("reply = %q", reply.Text)
	}
	if a.Attachment() != nil {
		t.Error("attachment must be consumed by Send")
	}
	msgs := a.Messages()
	if user := msgs[1]; user.Attachment == nil || !strings.HasPrefix(user.Attachment.PreviewURL, "data:image/png;base64,") {
		t.Errorf("user message attachment = %+v", user.Attachment)
	}
	turn := p.Streams()[0].Req.Messages[0]
	if len(turn.Parts) != 1 || turn.Parts[0].Blob == nil || turn.Parts[0].Blob.MIMEType != "image/png" {
		t.Errorf("request parts = %+v", turn.Parts)
	}

	if err := a.Attach(img); err != nil {
		t.Fatal(err)
	}
	if err := a.RemoveAttachment(); err != nil {
		t.Fatal(err)
	}
	if a.Attachment() != nil {
		t.Error("RemoveAttachment left a staged file")
	}
}

func TestNewAttachment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mime    string
		size    int
		wantErr error
		preview bool
	}{
		{name: "png", mime: "image/png", size: 3, preview: true},
		{name: "pdf", mime: "application/pdf", size: 3},
		{name: "docx", mime: DOCXMIMEType, size: 3},
		{name: "params ignored", mime: "application/pdf; charset=binary", size: 3},
		{name: "text rejected", mime: "text/plain", size: 3, wantErr: ErrUnsupportedFile},
		{name: "garbage rejected", mime: ";;", size: 3, wantErr: ErrUnsupportedFile},
		{name: "too large", mime: "application/pdf", size: MaxAttachmentBytes + 1, wantErr: ErrFileTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, err := NewAttachment("file", tc.mime, make([]byte, tc.size))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (f.PreviewURL != "") != tc.preview {
				t.Errorf("preview = %q, want preview %v", f.PreviewURL, tc.preview)
			}
		})
	}
}

func TestInputAndAnswer(t *testing.T) {
	t.Parallel()

	a := newAssistant(t, &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "# Kết luận"}}})
	if err := a.SetInput("x"); !errors.Is(err, ErrNoSession) {
		t.Errorf("SetInput without chat = %v", err)
	}
	greeting, err := a.Open(nil, note.Note{})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetInput("đọc chính tả"); err != nil {
		t.Fatal(err)
	}
	if a.Input() != "đọc chính tả" {
		t.Errorf("Input = %q", a.Input())
	}
	reply, err := a.Send(context.Background(), a.Input(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Input() != "" {
		t.Error("Send must clear the draft")
	}

	text, err := a.Answer(reply.ID)
	if err != nil || text != "# Kết luận" {
		t.Errorf("Answer = %q, %v", text, err)
	}
	if _, err := a.Answer(greeting.ID); !errors.Is(err, ErrNotExportable) {
		t.Errorf("Answer(greeting) = %v, want ErrNotExportable", err)
	}
	if _, err := a.Answer("missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Answer(missing) = %v, want ErrMessageNotFound", err)
	}

	a.Close()
	if a.IsOpen() || a.Messages() != nil || a.Input() != "" {
		t.Error("Close must discard the chat")
	}
	if _, err := a.Answer(reply.ID); !errors.Is(err, ErrNoSession) {
		t.Errorf("Answer after Close = %v", err)
	}
}

func TestReconfigure(t *testing.T) {
	t.Parallel()

	a := newAssistant(t, &llmmock.Provider{})
	en, err := i18n.New(i18n.English)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Reconfigure(en, "", "{{.Bad"); err == nil {
		t.Fatal("expected parse error")
	}
	if err := a.Reconfigure(en, "English", ""); err != nil {
		t.Fatal(err)
	}
	msg, err := a.Open(nil, note.Note{})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != en.Text(i18n.ChatGreetingEmpty) {
		t.Errorf("greeting = %q, want English", msg.Text)
	}
}
