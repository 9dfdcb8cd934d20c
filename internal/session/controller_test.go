package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicenotes/internal/capture"
	capturemock "github.com/MrWong99/voicenotes/internal/capture/mock"
	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/internal/notestore"
	"github.com/MrWong99/voicenotes/internal/pipeline"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
	llmmock "github.com/MrWong99/voicenotes/pkg/provider/llm/mock"
)

// ── Fixtures ─────────────────────────────────────────────────────────────────

// answers scripts the model per pipeline stage, recognised by prompt text.
type answers struct {
	transcribe, detect, polishEN, translate, polishTarget string

	// gate, when set, blocks the transcription call until closed.
	gate chan struct{}
}

func (a *answers) provider() *llmmock.Provider {
	return &llmmock.Provider{
		CompleteFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			m := req.Messages[0]
			text := m.Text()
			var out string
			switch {
			case m.HasBlobs():
				if a.gate != nil {
					<-a.gate
				}
				out = a.transcribe
			case strings.Contains(text, "primarily in English"):
				out = a.detect
			case strings.Contains(text, "English Markdown Text"):
				out = a.translate
			case strings.Contains(text, "Raw Transcript"):
				out = a.polishEN
			default:
				out = a.polishTarget
			}
			return &llm.CompletionResponse{Content: out}, nil
		},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) statuses() []i18n.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []i18n.Key
	for _, e := range s.events {
		if st, ok := e.(Status); ok {
			keys = append(keys, st.Key)
		}
	}
	return keys
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, notestore.ErrNotFound
	}
	return v, nil
}

func (m *memBackend) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

type fixture struct {
	ctrl   *Controller
	device *capturemock.Device
	store  *notestore.Store
	llm    *llmmock.Provider
	sink   *recordingSink
}

var testPCM = make([]byte, 3200) // 100 ms of 16 kHz mono silence

func newFixture(t *testing.T, device *capturemock.Device, a *answers) *fixture {
	t.Helper()
	store, err := notestore.Open(context.Background(), &memBackend{data: map[string][]byte{}})
	if err != nil {
		t.Fatalf("notestore.Open: %v", err)
	}
	prov := a.provider()
	pl, err := pipeline.New(prov, nil, pipeline.Config{})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	sink := &recordingSink{}
	ctrl, err := NewController(Config{
		Capture:  capture.NewRecorder(device),
		Pipeline: pl,
		Store:    store,
		Sink:     sink,
		Catalog:  i18n.MustNew(i18n.Vietnamese).WithLocation(time.UTC),
		Now:      func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{ctrl: ctrl, device: device, store: store, llm: prov, sink: sink}
}

func (f *fixture) do(t *testing.T, cmd Command) View {
	t.Helper()
	v, err := f.ctrl.Do(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Do(%T): %v", cmd, err)
	}
	return v
}

// waitIdle polls until processing has finished.
func (f *fixture) waitIdle(t *testing.T) View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v := f.do(t, Snapshot{})
		if v.State == Idle {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("controller did not return to idle")
	return View{}
}

func (f *fixture) record(t *testing.T) View {
	t.Helper()
	if v := f.do(t, StartRecording{}); v.State != Recording {
		t.Fatalf("state after start = %v, want recording (status %q)", v.State, v.Status.Text)
	}
	f.do(t, StopRecording{})
	return f.waitIdle(t)
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestNewController_RequiresCapabilities(t *testing.T) {
	t.Parallel()
	if _, err := NewController(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestInitialView(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})

	v := f.do(t, Snapshot{})
	if v.State != Idle {
		t.Errorf("State = %v", v.State)
	}
	if v.Status.Text != "Sẵn sàng ghi âm" {
		t.Errorf("Status = %q", v.Status.Text)
	}
	if v.Note.States != note.FreshStates() {
		t.Errorf("States = %+v", v.Note.States)
	}
	if v.Note.Title != "Ghi chép chưa có tiêu đề" {
		t.Errorf("Title = %q", v.Note.Title)
	}
	if !v.RecordControl.Enabled || v.RecordControl.Recording {
		t.Errorf("RecordControl = %+v", v.RecordControl)
	}
}

func TestStartRecording_AcquisitionDenied(t *testing.T) {
	t.Parallel()
	denied := errors.New("Permission denied")
	f := newFixture(t, &capturemock.Device{OpenErrs: []error{denied, denied}}, &answers{})

	before := f.do(t, EditRaw{Text: "draft that must survive"})
	v, err := f.ctrl.Do(context.Background(), StartRecording{})
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if v.State != Idle {
		t.Errorf("State = %v, want idle", v.State)
	}
	if v.Status.Key != i18n.PermissionDenied || !v.Status.Error {
		t.Errorf("Status = %+v", v.Status)
	}
	if !v.RecordControl.Enabled {
		t.Error("record control must be re-enabled")
	}
	if v.Note.ID != before.Note.ID || v.Note.Raw != "draft that must survive" {
		t.Errorf("current note changed: %+v", v.Note)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d notes, want 0", f.store.Len())
	}
	if got := f.device.OpenCount(); got != 2 {
		t.Errorf("Open calls = %d, want 2 (default then fallback)", got)
	}
}

func TestStartRecording_ErrorCategories(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		key  i18n.Key
		text string
	}{
		{"not found", errors.New("no such device"), i18n.DeviceNotFound, "Không tìm thấy micro. Vui lòng kết nối micro."},
		{"busy", errors.New("Device or resource busy"), i18n.DeviceBusy, "Không thể truy cập micro. Micro có thể đang được sử dụng bởi một ứng dụng khác."},
		{"generic", errors.New("boom"), i18n.GenericError, "Lỗi: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, &capturemock.Device{OpenErrs: []error{tt.err, tt.err}}, &answers{})
			v := f.do(t, StartRecording{})
			if v.Status.Key != tt.key || v.Status.Text != tt.text {
				t.Errorf("Status = %+v, want %q %q", v.Status, tt.key, tt.text)
			}
		})
	}
}

func TestStopRecording_NoAudio(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})

	f.do(t, StartRecording{})
	v := f.do(t, StopRecording{})
	if v.State != Idle {
		t.Errorf("State = %v", v.State)
	}
	if v.Status.Key != i18n.NoAudio {
		t.Errorf("Status = %+v", v.Status)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d notes, want 0", f.store.Len())
	}
	if f.llm.CompleteCallCount() != 0 {
		t.Errorf("model called %d times", f.llm.CompleteCallCount())
	}
	if !f.device.Streams[0].Stopped() {
		t.Error("stream was not stopped")
	}
}

func TestRecording_TargetLanguageNote(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, &answers{
		transcribe:   "ừm hôm nay họp nhóm",
		detect:       "Vietnamese",
		polishTarget: "# Họp nhóm\n\n- Hôm nay họp nhóm",
	})

	v := f.record(t)
	if v.Status.Key != i18n.Polished {
		t.Errorf("Status = %+v", v.Status)
	}
	if f.store.Len() != 1 {
		t.Fatalf("store has %d notes, want 1", f.store.Len())
	}
	saved := f.store.List()[0]
	if saved.ID != v.Note.ID {
		t.Errorf("saved id %q, current %q", saved.ID, v.Note.ID)
	}
	if saved.Title != "Họp nhóm" || saved.RawTranscription != "ừm hôm nay họp nhóm" {
		t.Errorf("saved = %+v", saved)
	}
	if v.Note.States != (note.FieldStates{Title: note.Filled, Raw: note.Filled, Polished: note.Filled}) {
		t.Errorf("States = %+v", v.Note.States)
	}
	if !strings.Contains(v.Note.PolishedHTML, "<h1>Họp nhóm</h1>") {
		t.Errorf("PolishedHTML = %q", v.Note.PolishedHTML)
	}
	for _, c := range f.llm.Completes() {
		if strings.Contains(c.Req.Messages[0].Text(), "English Markdown Text") {
			t.Error("translation must not run for a target-language transcript")
		}
	}

	keys := f.sink.statuses()
	for _, want := range []i18n.Key{i18n.RequestingMic, i18n.Recording, i18n.ProcessingAudio, i18n.Transcribing, i18n.Detecting, i18n.Polishing, i18n.Polished} {
		found := false
		for _, k := range keys {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("status %q never emitted (got %v)", want, keys)
		}
	}
}

func TestRecording_EnglishNoteIsTranslated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, &answers{
		transcribe: "um so the meeting is at noon",
		detect:     "English",
		polishEN:   "# Meeting\n\nThe meeting is at noon.",
		translate:  "# Cuộc họp\n\nCuộc họp diễn ra vào buổi trưa.",
	})

	v := f.record(t)
	if v.Status.Key != i18n.PolishedTranslated {
		t.Errorf("Status = %+v", v.Status)
	}
	saved := f.store.List()[0]
	if saved.PolishedNote != "# Cuộc họp\n\nCuộc họp diễn ra vào buổi trưa." {
		t.Errorf("PolishedNote = %q", saved.PolishedNote)
	}
	if saved.Title != "Cuộc họp" {
		t.Errorf("Title = %q", saved.Title)
	}
}

func TestRecording_EmptyPolishKeepsRaw(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, &answers{
		transcribe: "nội dung thô",
		detect:     "Vietnamese",
	})

	v := f.record(t)
	if v.Status.Key != i18n.PolishEmpty || !v.Status.Error {
		t.Errorf("Status = %+v", v.Status)
	}
	if v.Note.Raw != "nội dung thô" || v.Note.States.Raw != note.Filled {
		t.Errorf("raw lost: %+v", v.Note)
	}
	if v.Note.States.Polished != note.Placeholder {
		t.Errorf("polished state = %q", v.Note.States.Polished)
	}
	if f.store.Len() != 0 {
		t.Errorf("failed note was saved")
	}
	if !v.RecordControl.Enabled {
		t.Error("record control must be re-enabled")
	}
}

func TestRecording_EmptyTranscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, &answers{})

	v := f.record(t)
	if v.Status.Key != i18n.TranscriptionEmpty {
		t.Errorf("Status = %+v", v.Status)
	}
	if v.Note.States.Raw != note.Placeholder {
		t.Errorf("raw state = %q", v.Note.States.Raw)
	}
	if got := f.llm.CompleteCallCount(); got != 1 {
		t.Errorf("model calls = %d, want 1", got)
	}
}

func TestStartRecording_BusyWhileProcessing(t *testing.T) {
	t.Parallel()
	a := &answers{transcribe: "xin chào", detect: "Vietnamese", polishTarget: "Xin chào mọi người", gate: make(chan struct{})}
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, a)

	f.do(t, StartRecording{})
	if v := f.do(t, StopRecording{}); v.State != Processing || v.RecordControl.Enabled {
		t.Fatalf("after stop: state %v control %+v", v.State, v.RecordControl)
	}

	v, err := f.ctrl.Do(context.Background(), StartRecording{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if v.Status.Key != i18n.Busy {
		t.Errorf("Status = %+v", v.Status)
	}
	if f.device.OpenCount() != 1 {
		t.Errorf("microphone reopened while processing")
	}

	close(a.gate)
	if v := f.waitIdle(t); v.Status.Key != i18n.Polished {
		t.Errorf("final Status = %+v", v.Status)
	}
}

func TestNewNote_DuringProcessingKeepsBinding(t *testing.T) {
	t.Parallel()
	a := &answers{transcribe: "ghi chú một", detect: "Vietnamese", polishTarget: "# Ghi chú một", gate: make(chan struct{})}
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, a)

	recID := f.do(t, StartRecording{}).Note.ID
	f.do(t, StopRecording{})
	fresh := f.do(t, NewNote{})
	if fresh.Note.ID == recID {
		t.Fatal("NewNote kept the processing note current")
	}
	close(a.gate)
	v := f.waitIdle(t)

	if v.Note.ID != fresh.Note.ID || v.Note.States.Polished != note.Placeholder {
		t.Errorf("pipeline output leaked into the new note: %+v", v.Note)
	}
	saved, ok := f.store.Get(recID)
	if !ok {
		t.Fatal("recorded note was not saved")
	}
	if saved.Title != "Ghi chú một" || saved.PolishedNote != "# Ghi chú một" {
		t.Errorf("saved = %+v", saved)
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d notes, want 1", f.store.Len())
	}
}

func TestNewNote_WhileRecordingStopsAndProcesses(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, &answers{
		transcribe: "xin chào", detect: "Vietnamese", polishTarget: "# Chào",
	})

	recID := f.do(t, StartRecording{}).Note.ID
	v := f.do(t, NewNote{})
	if v.Note.ID == recID {
		t.Error("NewNote did not switch notes")
	}
	f.waitIdle(t)
	if _, ok := f.store.Get(recID); !ok {
		t.Error("recording was not processed into its note")
	}
}

func TestNewNote_SavesWithFallbackTitle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})

	old := f.do(t, EditRaw{Text: "một vài ý tưởng"})
	v := f.do(t, NewNote{})
	if v.Note.ID == old.Note.ID {
		t.Error("NewNote kept the old note")
	}
	saved, ok := f.store.Get(old.Note.ID)
	if !ok {
		t.Fatal("note with content was not saved")
	}
	if saved.Title != "Ghi chép ngày 14/3/2026" {
		t.Errorf("Title = %q", saved.Title)
	}
	if len(v.History) != 1 || v.History[0].Current {
		t.Errorf("History = %+v", v.History)
	}
}

func TestNewNote_EmptyNoteNotSaved(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})
	f.do(t, EditTitle{Text: "only a title"})
	f.do(t, NewNote{})
	if f.store.Len() != 0 {
		t.Errorf("store has %d notes, want 0", f.store.Len())
	}
}

func TestLoadNote(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})
	stored := note.Note{ID: "note_a", Title: "Kế hoạch", PolishedNote: "**đậm**", Timestamp: 1}
	if err := f.store.Save(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	v := f.do(t, LoadNote{ID: "note_a"})
	if v.Note.ID != "note_a" || v.Note.Title != "Kế hoạch" {
		t.Errorf("Note = %+v", v.Note)
	}
	want := note.FieldStates{Title: note.Filled, Raw: note.Placeholder, Polished: note.Filled}
	if v.Note.States != want {
		t.Errorf("States = %+v, want %+v", v.Note.States, want)
	}
	if !strings.Contains(v.Note.PolishedHTML, "<strong>đậm</strong>") {
		t.Errorf("PolishedHTML = %q", v.Note.PolishedHTML)
	}
	if v.Status.Key != i18n.NoteLoaded {
		t.Errorf("Status = %+v", v.Status)
	}
	if !v.History[0].Current {
		t.Error("loaded note not marked current")
	}

	if _, err := f.ctrl.Do(context.Background(), LoadNote{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteNote_Current(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{PCM: testPCM}, &answers{
		transcribe: "xin chào", detect: "Vietnamese", polishTarget: "# Chào buổi sáng",
	})
	id := f.record(t).Note.ID

	v := f.do(t, DeleteNote{ID: id})
	if v.Note.ID == id {
		t.Error("deleted note is still current")
	}
	if v.Note.States != note.FreshStates() {
		t.Errorf("new current note is not blank: %+v", v.Note)
	}
	if _, ok := f.store.Get(id); ok {
		t.Error("note still in store")
	}
	if len(v.History) != 0 {
		t.Errorf("History = %+v", v.History)
	}

	if _, err := f.ctrl.Do(context.Background(), DeleteNote{ID: id}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestDeleteNote_OtherKeepsCurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})
	if err := f.store.Save(context.Background(), note.Note{ID: "note_x", RawTranscription: "x"}); err != nil {
		t.Fatal(err)
	}
	cur := f.do(t, Snapshot{}).Note.ID
	if v := f.do(t, DeleteNote{ID: "note_x"}); v.Note.ID != cur {
		t.Error("current note replaced by unrelated delete")
	}
}

func TestEdits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})

	v := f.do(t, EditTitle{Text: "  Tiêu đề  "})
	if v.Note.Title != "Tiêu đề" || v.Note.States.Title != note.Filled || v.Note.LiveTitle != "Tiêu đề" {
		t.Errorf("after EditTitle: %+v", v.Note)
	}
	v = f.do(t, EditPolished{Text: "# Khác\n\nnội dung"})
	if v.Note.Title != "Tiêu đề" {
		t.Errorf("editing polished text re-derived the title: %q", v.Note.Title)
	}
	if !strings.Contains(v.Note.PolishedHTML, "<h1>Khác</h1>") {
		t.Errorf("PolishedHTML = %q", v.Note.PolishedHTML)
	}
	v = f.do(t, EditTitle{Text: ""})
	if v.Note.States.Title != note.Placeholder || v.Note.Title != "Ghi chép chưa có tiêu đề" {
		t.Errorf("cleared title: %+v", v.Note)
	}
	if v.Note.LiveTitle != "Bản ghi mới" {
		t.Errorf("LiveTitle = %q", v.Note.LiveTitle)
	}
	v = f.do(t, EditPolished{Text: "ừ"})
	if v.Note.States.Title != note.Placeholder {
		t.Errorf("title filled from text with no usable line: %+v", v.Note)
	}
	v = f.do(t, EditPolished{Text: "## Lịch họp\n\nthứ hai"})
	if v.Note.Title != "Lịch họp" || v.Note.States.Title != note.Filled || v.Note.LiveTitle != "Lịch họp" {
		t.Errorf("placeholder title not derived from edited text: %+v", v.Note)
	}
}

func TestToggleRecording(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})
	if v := f.do(t, ToggleRecording{}); v.State != Recording || !v.RecordControl.Recording {
		t.Fatalf("first toggle: %v %+v", v.State, v.RecordControl)
	}
	if v := f.do(t, ToggleRecording{}); v.State != Idle || v.Status.Key != i18n.NoAudio {
		t.Errorf("second toggle: %v %+v", v.State, v.Status)
	}
}

func TestSetCatalog(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &capturemock.Device{}, &answers{})
	if err := f.ctrl.SetCatalog(context.Background(), i18n.MustNew(i18n.English)); err != nil {
		t.Fatal(err)
	}
	v := f.do(t, Snapshot{})
	if v.Status.Text != "Ready to record" || v.Note.Title != "Untitled Note" {
		t.Errorf("not re-rendered: %q %q", v.Status.Text, v.Note.Title)
	}
}

func TestDo_AfterRunReturns(t *testing.T) {
	t.Parallel()
	store, _ := notestore.Open(context.Background(), &memBackend{data: map[string][]byte{}})
	pl, _ := pipeline.New(&llmmock.Provider{}, nil, pipeline.Config{})
	c, err := NewController(Config{Capture: capture.NewRecorder(&capturemock.Device{}), Pipeline: pl, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := c.Do(context.Background(), Snapshot{}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run err = %v, want ErrRunning", err)
	}
}

func TestRun_ShutdownReleasesMicrophone(t *testing.T) {
	t.Parallel()
	store, _ := notestore.Open(context.Background(), &memBackend{data: map[string][]byte{}})
	pl, _ := pipeline.New(&llmmock.Provider{}, nil, pipeline.Config{})
	dev := &capturemock.Device{}
	c, _ := NewController(Config{Capture: capture.NewRecorder(dev), Pipeline: pl, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	if _, err := c.Do(context.Background(), StartRecording{}); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !dev.Streams[0].Stopped() {
		t.Error("stream not stopped on shutdown")
	}
}

func TestStateMarshalText(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{Idle: "idle", Recording: "recording", Processing: "processing"} {
		b, _ := s.MarshalText()
		if string(b) != want {
			t.Errorf("%d = %q, want %q", int(s), b, want)
		}
	}
}
