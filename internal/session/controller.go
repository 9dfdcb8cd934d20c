// Package session owns the lifecycle of the current note: recording,
// processing the recording into a polished note, and switching between
// notes in the history.
//
// All state lives in a [Controller] and is mutated only by the goroutine
// running [Controller.Run]. UI actions arrive as typed commands through
// [Controller.Do]; the pipeline worker reports progress back through the same
// queue, so nothing touches session state off the loop goroutine.
//
// The lifecycle is Idle -> Recording -> Processing -> Idle. Processing is
// bound to the note that was recording when the capture stopped: switching
// to another note while the pipeline runs does not redirect its output.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voicenotes/internal/capture"
	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/markdown"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/internal/pipeline"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// Errors returned by Do.
var (
	// ErrBusy is returned when a command is refused while a recording is
	// being processed.
	ErrBusy = errors.New("session: processing in progress")
	// ErrNotFound is returned when a note id is not in the history.
	ErrNotFound = errors.New("session: note not found")
	// ErrClosed is returned once Run has returned.
	ErrClosed = errors.New("session: controller stopped")
	// ErrRunning is returned by a second concurrent Run.
	ErrRunning = errors.New("session: controller already running")
)

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ── Capabilities ─────────────────────────────────────────────────────────────

// Capturer records microphone audio. *capture.Recorder implements it.
type Capturer interface {
	Acquire(ctx context.Context) (capture.Stream, error)
	StartCapture(stream capture.Stream, onComplete func(capture.Blob)) error
	StopCapture() (capture.Blob, error)
}

// Transcriber turns audio into a polished note. *pipeline.Pipeline
// implements it.
type Transcriber interface {
	Run(ctx context.Context, audio llm.Blob, obs pipeline.Observer) (pipeline.Result, error)
	TargetLanguage() string
}

// NoteStore is the ordered note history. *notestore.Store implements it.
type NoteStore interface {
	List() []note.Note
	Get(id string) (note.Note, bool)
	Save(ctx context.Context, n note.Note) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Visualizer draws the live waveform and drives the recording timer.
// *visualizer.Visualizer implements it.
type Visualizer interface {
	Start(ctx context.Context, started time.Time, onTick func(string))
	Stop()
}

// ── Commands ─────────────────────────────────────────────────────────────────

// Command is an action sent to the controller through Do.
type Command interface {
	command()
}

type (
	// StartRecording acquires the microphone and starts a fresh note.
	StartRecording struct{}
	// StopRecording ends the capture and starts processing it.
	StopRecording struct{}
	// ToggleRecording starts when idle and stops when recording.
	ToggleRecording struct{}
	// NewNote saves the current note if it has content and starts a blank one.
	NewNote struct{}
	// LoadNote makes a stored note current.
	LoadNote struct{ ID string }
	// DeleteNote removes a note from the history.
	DeleteNote struct{ ID string }
	// EditTitle replaces the current note's title.
	EditTitle struct{ Text string }
	// EditRaw replaces the current note's raw transcription.
	EditRaw struct{ Text string }
	// EditPolished replaces the current note's polished markdown.
	EditPolished struct{ Text string }
	// Snapshot changes nothing; Do returns the current view.
	Snapshot struct{}
)

func (StartRecording) command()  {}
func (StopRecording) command()   {}
func (ToggleRecording) command() {}
func (NewNote) command()         {}
func (LoadNote) command()        {}
func (DeleteNote) command()      {}
func (EditTitle) command()       {}
func (EditRaw) command()         {}
func (EditPolished) command()    {}
func (Snapshot) command()        {}

// Messages posted by the pipeline worker and by SetCatalog.
type (
	stageStarted struct {
		job   uint64
		stage pipeline.Stage
		lang  pipeline.Language
	}
	transcribed struct {
		job uint64
		raw string
	}
	processed struct {
		job uint64
		res pipeline.Result
		err error
	}
	setCatalog struct{ cat *i18n.Catalog }
)

func (stageStarted) command() {}
func (transcribed) command()  {}
func (processed) command()    {}
func (setCatalog) command()   {}

// View is a snapshot of everything the presentation layer shows.
type View struct {
	State         State          `json:"state"`
	Note          NoteView       `json:"note"`
	History       []HistoryEntry `json:"history"`
	Status        Status         `json:"status"`
	RecordControl RecordControl  `json:"recordControl"`
	// Current is the current note as edited, without placeholder texts.
	Current note.Note `json:"-"`
}

// ── Controller ───────────────────────────────────────────────────────────────

// Config wires a Controller to its capabilities.
type Config struct {
	// Capture records audio. Required.
	Capture Capturer
	// Pipeline processes recordings. Required.
	Pipeline Transcriber
	// Store holds the note history. Required.
	Store NoteStore
	// Visualizer is optional.
	Visualizer Visualizer
	// Sink receives events. Defaults to discarding them.
	Sink EventSink
	// Catalog renders status texts. Defaults to Vietnamese.
	Catalog *i18n.Catalog
	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller is the session state machine.
type Controller struct {
	capture  Capturer
	pipeline Transcriber
	store    NoteStore
	vis      Visualizer
	sink     EventSink
	metrics  *observe.Metrics
	now      func() time.Time

	inbox   chan request
	done    chan struct{}
	closeMu sync.Once
	running atomic.Bool

	// Loop-owned state below.
	cat     *i18n.Catalog
	state   State
	current note.Note
	fields  note.FieldStates
	html    string
	status  Status
	jobSeq  uint64
	job     *job
}

type request struct {
	ctx   context.Context
	cmd   Command
	reply chan reply
}

type reply struct {
	view View
	err  error
}

// job is a pipeline run in flight. pending is the note the recording
// belongs to, as it was when the capture stopped.
type job struct {
	id      uint64
	pending note.Note
	cancel  context.CancelFunc
}

// NewController creates a Controller. Call Run to start it.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Capture == nil || cfg.Pipeline == nil || cfg.Store == nil {
		return nil, errors.New("session: capture, pipeline and store are required")
	}
	c := &Controller{
		capture:  cfg.Capture,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		vis:      cfg.Visualizer,
		sink:     cfg.Sink,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		cat:      cfg.Catalog,
		inbox:    make(chan request),
		done:     make(chan struct{}),
	}
	if c.sink == nil {
		c.sink = nopSink{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.cat == nil {
		c.cat = i18n.MustNew(i18n.Vietnamese)
	}
	c.resetCurrent()
	c.status = c.statusFor(i18n.Ready)
	return c, nil
}

// Run processes commands until ctx is cancelled. On return any recording is
// stopped and discarded and a running pipeline is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.closeMu.Do(func() { close(c.done) })
	defer c.teardown()

	c.emitAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.inbox:
			view, err := c.handle(ctx, req)
			if req.reply != nil {
				req.reply <- reply{view: view, err: err}
			}
		}
	}
}

// Do sends cmd to the loop and waits for the resulting view.
func (c *Controller) Do(ctx context.Context, cmd Command) (View, error) {
	req := request{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case c.inbox <- req:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrClosed
	}
	select {
	case r := <-req.reply:
		return r.view, r.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrClosed
	}
}

// SetCatalog switches the status language and re-renders every surface.
func (c *Controller) SetCatalog(ctx context.Context, cat *i18n.Catalog) error {
	if cat == nil {
		return errors.New("session: nil catalog")
	}
	_, err := c.Do(ctx, setCatalog{cat: cat})
	return err
}

// post delivers a worker message without waiting for a reply.
func (c *Controller) post(ctx context.Context, cmd Command) {
	select {
	case c.inbox <- request{ctx: ctx, cmd: cmd}:
	case <-ctx.Done():
	case <-c.done:
	}
}

func (c *Controller) handle(runCtx context.Context, req request) (View, error) {
	var err error
	switch cmd := req.cmd.(type) {
	case StartRecording:
		err = c.startRecording(runCtx)
	case StopRecording:
		c.stopRecording(runCtx)
	case ToggleRecording:
		if c.state == Recording {
			c.stopRecording(runCtx)
		} else {
			err = c.startRecording(runCtx)
		}
	case NewNote:
		c.newNote(req.ctx, runCtx)
	case LoadNote:
		err = c.loadNote(runCtx, cmd.ID)
	case DeleteNote:
		err = c.deleteNote(req.ctx, cmd.ID)
	case EditTitle:
		c.editTitle(cmd.Text)
	case EditRaw:
		c.editRaw(cmd.Text)
	case EditPolished:
		c.editPolished(cmd.Text)
	case Snapshot:
	case stageStarted:
		c.onStage(cmd)
	case transcribed:
		c.onTranscribed(cmd)
	case processed:
		c.onProcessed(req.ctx, cmd)
	case setCatalog:
		c.cat = cmd.cat
		prev := c.status
		c.status = c.statusFor(prev.Key, c.statusArgs(prev)...)
		c.status.Detail, c.status.Error = prev.Detail, prev.Error
		c.emitAll()
	default:
		err = fmt.Errorf("session: unknown command %T", req.cmd)
	}
	return c.view(), err
}

// ── Recording ────────────────────────────────────────────────────────────────

func (c *Controller) startRecording(ctx context.Context) error {
	switch c.state {
	case Processing:
		c.setStatus(c.statusFor(i18n.Busy))
		return ErrBusy
	case Recording:
		return nil
	}

	c.setStatus(c.statusFor(i18n.RequestingMic))
	c.sink.Emit(RecordControl{Enabled: false})

	stream, err := c.capture.Acquire(ctx)
	if err != nil {
		slog.Warn("session: microphone unavailable", "err", err)
		c.setStatus(acquireStatus(c.cat, err))
		c.sink.Emit(RecordControl{Enabled: true})
		return nil
	}

	c.finalizeCurrent(ctx)
	c.resetCurrent()
	c.emitNote()
	c.emitHistory()

	started := c.now()
	err = c.capture.StartCapture(stream, func(b capture.Blob) {
		outcome := "captured"
		if b.Size() == 0 {
			outcome = "empty"
		}
		c.metrics.RecordRecording(context.WithoutCancel(ctx), outcome, b.Duration)
	})
	if err != nil {
		_ = stream.Stop()
		slog.Error("session: start capture", "err", err)
		c.setStatus(c.errorStatus(i18n.GenericError, err, err.Error()))
		c.sink.Emit(RecordControl{Enabled: true})
		return nil
	}

	c.metrics.ActiveRecordings.Add(ctx, 1)
	if c.vis != nil {
		c.vis.Start(ctx, started, func(text string) {
			c.sink.Emit(TimerTick{Text: text})
		})
	}
	c.setState(Recording, "start")
	c.setStatus(c.statusFor(i18n.Recording))
	c.sink.Emit(RecordControl{Enabled: true, Recording: true})
	slog.Info("session: recording started", "note", c.current.ID)
	return nil
}

// stopRecording tears the capture down and hands the blob to the pipeline.
// It does nothing unless recording.
func (c *Controller) stopRecording(ctx context.Context) {
	if c.state != Recording {
		return
	}
	if c.vis != nil {
		c.vis.Stop()
	}
	blob, err := c.capture.StopCapture()
	c.metrics.ActiveRecordings.Add(ctx, -1)
	if err != nil {
		slog.Error("session: stop capture", "err", err)
	}

	if blob.Size() == 0 {
		c.setState(Idle, "no_audio")
		if err != nil {
			c.setStatus(c.errorStatus(i18n.GenericError, err, err.Error()))
		} else {
			c.setStatus(c.statusFor(i18n.NoAudio))
		}
		c.sink.Emit(RecordControl{Enabled: true})
		return
	}

	slog.Info("session: recording stopped", "note", c.current.ID, "bytes", blob.Size(), "duration", blob.Duration)
	c.startJob(ctx, blob)
}

func (c *Controller) startJob(ctx context.Context, blob capture.Blob) {
	c.jobSeq++
	jobCtx, cancel := context.WithCancel(observe.WithNote(ctx, c.current.ID))
	j := &job{id: c.jobSeq, pending: c.current, cancel: cancel}
	c.job = j

	c.setState(Processing, "stop")
	c.setStatus(c.statusFor(i18n.ProcessingAudio))
	c.sink.Emit(RecordControl{Enabled: false})

	audio := llm.Blob{MIMEType: blob.MIMEType, Data: blob.Data, Name: "recording.wav"}
	go func() {
		defer cancel()
		res, err := c.pipeline.Run(jobCtx, audio, &jobObserver{c: c, ctx: jobCtx, id: j.id})
		c.post(ctx, processed{job: j.id, res: res, err: err})
	}()
}

// jobObserver forwards pipeline progress into the loop.
type jobObserver struct {
	c   *Controller
	ctx context.Context
	id  uint64
}

func (o *jobObserver) StageStarted(s pipeline.Stage, l pipeline.Language) {
	o.c.post(o.ctx, stageStarted{job: o.id, stage: s, lang: l})
}

func (o *jobObserver) Transcribed(raw string) {
	o.c.post(o.ctx, transcribed{job: o.id, raw: raw})
}

// Polished is delivered with the final result instead.
func (o *jobObserver) Polished(string, string) {}

func (c *Controller) activeJob(id uint64) *job {
	if c.job == nil || c.job.id != id {
		return nil
	}
	return c.job
}

func (c *Controller) onStage(m stageStarted) {
	if c.activeJob(m.job) == nil {
		return
	}
	switch m.stage {
	case pipeline.StageTranscribe:
		c.setStatus(c.statusFor(i18n.Transcribing))
	case pipeline.StageDetect:
		c.setStatus(c.statusFor(i18n.Detecting))
	case pipeline.StagePolish:
		if m.lang == pipeline.LanguageEnglish {
			c.setStatus(c.statusFor(i18n.PolishingEnglish))
		} else {
			c.setStatus(c.statusFor(i18n.Polishing))
		}
	case pipeline.StageTranslate:
		c.setStatus(c.statusFor(i18n.Translating, c.cat.LanguageName(c.pipeline.TargetLanguage())))
	}
}

func (c *Controller) onTranscribed(m transcribed) {
	j := c.activeJob(m.job)
	if j == nil {
		return
	}
	j.pending.RawTranscription = m.raw
	if c.current.ID == j.pending.ID {
		c.current.RawTranscription = m.raw
		c.fields.Raw = note.Filled
		c.emitNote()
	}
}

func (c *Controller) onProcessed(ctx context.Context, m processed) {
	j := c.activeJob(m.job)
	if j == nil {
		return
	}
	c.job = nil
	isCurrent := c.current.ID == j.pending.ID

	if m.err != nil {
		c.failJob(m.err, isCurrent)
		return
	}

	target := j.pending
	if isCurrent {
		target = c.current
	}
	target.RawTranscription = m.res.Raw
	target.PolishedNote = m.res.Polished
	titleDerived := false
	if title, ok := note.DeriveTitle(m.res.Polished); ok {
		target.Title = title
		titleDerived = true
	}

	if isCurrent {
		c.current = target
		c.html = m.res.HTML
		c.fields.Raw = note.Filled
		c.fields.Polished = note.Filled
		if titleDerived {
			c.fields.Title = note.Filled
		}
		c.emitNote()
	}

	saved := c.withFallbackTitle(target)
	if err := c.store.Save(ctx, saved); err != nil {
		slog.Error("session: save processed note", "note", saved.ID, "err", err)
		c.setState(Idle, "save_failed")
		c.setStatus(c.errorStatus(i18n.SaveFailed, err))
		c.sink.Emit(RecordControl{Enabled: true})
		return
	}
	if isCurrent {
		c.current.Title = saved.Title
	}
	c.emitHistory()

	c.setState(Idle, "processed")
	if m.res.Translated {
		c.setStatus(c.statusFor(i18n.PolishedTranslated))
	} else {
		c.setStatus(c.statusFor(i18n.Polished))
	}
	c.sink.Emit(RecordControl{Enabled: true})
	slog.Info("session: note processed", "note", saved.ID, "language", m.res.Language, "translated", m.res.Translated)
}

// failJob reports a failed run. Partial output already applied stays; the
// note is not saved.
func (c *Controller) failJob(err error, isCurrent bool) {
	var st Status
	switch {
	case errors.Is(err, pipeline.ErrEmptyAudio), errors.Is(err, pipeline.ErrEmptyTranscription):
		st = c.errorStatus(i18n.TranscriptionEmpty, err)
	case errors.Is(err, pipeline.ErrEmptyEnglishDraft), errors.Is(err, pipeline.ErrEmptyPolish), errors.Is(err, pipeline.ErrEmptyTranslation):
		st = c.errorStatus(i18n.PolishEmpty, err)
	case pipeline.FailedStage(err) == pipeline.StageTranscribe:
		st = c.errorStatus(i18n.TranscriptionError, err)
	default:
		st = c.errorStatus(i18n.ProcessingError, err)
	}

	if isCurrent {
		if pipeline.FailedStage(err) == pipeline.StageTranscribe {
			c.fields.Raw = note.Placeholder
		}
		if strings.TrimSpace(c.current.PolishedNote) == "" {
			c.fields.Polished = note.Placeholder
		}
		c.emitNote()
	}
	c.setState(Idle, "failed")
	c.setStatus(st)
	c.sink.Emit(RecordControl{Enabled: true})
}

// ── Notes ────────────────────────────────────────────────────────────────────

// newNote saves the current note when it has content and makes a blank note
// current. While recording, the capture is stopped first and processed for
// the note that was recording. While processing, the pending note is left
// to the pipeline and not saved here.
func (c *Controller) newNote(reqCtx, runCtx context.Context) {
	if c.state == Recording {
		c.stopRecording(runCtx)
	}
	if c.job == nil || c.job.pending.ID != c.current.ID {
		c.finalizeCurrent(reqCtx)
	}
	c.resetCurrent()
	c.emitNote()
	c.emitHistory()
	if c.state == Idle {
		c.setStatus(c.statusFor(i18n.Ready))
	}
}

func (c *Controller) loadNote(runCtx context.Context, id string) error {
	n, ok := c.store.Get(id)
	if !ok {
		c.setStatus(c.statusFor(i18n.NoteNotFound))
		return ErrNotFound
	}
	if c.state == Recording {
		c.stopRecording(runCtx)
	}
	c.current = n
	c.fields = note.StatesFor(n)
	c.html = ""
	if c.fields.Polished == note.Filled {
		c.html = markdown.MustRender(n.PolishedNote)
	}
	c.emitNote()
	c.emitHistory()
	if c.state == Idle {
		c.setStatus(c.statusFor(i18n.NoteLoaded))
	}
	return nil
}

func (c *Controller) deleteNote(ctx context.Context, id string) error {
	ok, err := c.store.Delete(ctx, id)
	if err != nil {
		slog.Error("session: delete note", "note", id, "err", err)
		c.setStatus(c.errorStatus(i18n.SaveFailed, err))
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if c.current.ID == id && c.state != Recording {
		c.resetCurrent()
		c.emitNote()
	}
	c.emitHistory()
	if c.state == Idle {
		c.setStatus(c.statusFor(i18n.NoteDeleted))
	}
	return nil
}

func (c *Controller) editTitle(text string) {
	text = strings.TrimSpace(text)
	c.current.Title = text
	c.fields.Title = filledOr(text)
	c.emitNote()
}

func (c *Controller) editRaw(text string) {
	c.current.RawTranscription = text
	c.fields.Raw = filledOr(text)
	c.emitNote()
}

func (c *Controller) editPolished(text string) {
	c.current.PolishedNote = text
	c.fields.Polished = filledOr(text)
	c.html = ""
	if c.fields.Polished == note.Filled {
		c.html = markdown.MustRender(text)
	}
	// A title the user typed is never overwritten.
	if c.fields.Title == note.Placeholder {
		if title, ok := note.DeriveTitle(text); ok {
			c.current.Title = title
			c.fields.Title = note.Filled
		}
	}
	c.emitNote()
}

func filledOr(text string) note.ContentState {
	if strings.TrimSpace(text) == "" {
		return note.Placeholder
	}
	return note.Filled
}

// finalizeCurrent saves the current note if it has content, falling back to
// a dated title when none is set.
func (c *Controller) finalizeCurrent(ctx context.Context) {
	if !c.current.HasContent() {
		return
	}
	n := c.withFallbackTitle(c.current)
	if err := c.store.Save(ctx, n); err != nil {
		slog.Error("session: save note", "note", n.ID, "err", err)
		c.setStatus(c.errorStatus(i18n.SaveFailed, err))
		return
	}
	c.current = n
}

func (c *Controller) withFallbackTitle(n note.Note) note.Note {
	if strings.TrimSpace(n.Title) == "" {
		n.Title = c.cat.Text(i18n.NoteTitleFallback, c.cat.Date(n.Time()))
	}
	return n
}

func (c *Controller) resetCurrent() {
	c.current = note.New(c.now())
	c.fields = note.FreshStates()
	c.html = ""
}

// teardown releases the microphone and cancels processing when Run exits.
func (c *Controller) teardown() {
	if c.state == Recording {
		if c.vis != nil {
			c.vis.Stop()
		}
		if _, err := c.capture.StopCapture(); err != nil {
			slog.Warn("session: stop capture on shutdown", "err", err)
		}
		c.metrics.ActiveRecordings.Add(context.Background(), -1)
	}
	if c.job != nil {
		c.job.cancel()
		c.job = nil
	}
	c.state = Idle
}

// ── Rendering ────────────────────────────────────────────────────────────────

func (c *Controller) setState(s State, reason string) {
	c.state = s
	c.sink.Emit(StateChanged{State: s, Reason: reason})
}

func (c *Controller) setStatus(s Status) {
	c.status = s
	c.sink.Emit(s)
}

func (c *Controller) statusFor(key i18n.Key, args ...any) Status {
	return Status{Key: key, Text: c.cat.Text(key, args...)}
}

// errorStatus renders key as a failure status. err supplies the detail;
// args are formatted into the message.
func (c *Controller) errorStatus(key i18n.Key, err error, args ...any) Status {
	st := c.statusFor(key, args...)
	st.Error = true
	if err != nil {
		st.Detail = err.Error()
	}
	return st
}

// statusArgs recovers format arguments when a status is re-rendered in
// another language.
func (c *Controller) statusArgs(s Status) []any {
	switch s.Key {
	case i18n.GenericError:
		return []any{s.Detail}
	case i18n.Translating:
		return []any{c.cat.LanguageName(c.pipeline.TargetLanguage())}
	}
	return nil
}

func acquireStatus(cat *i18n.Catalog, err error) Status {
	key := i18n.GenericError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		key = i18n.PermissionDenied
	case errors.Is(err, capture.ErrDeviceNotFound):
		key = i18n.DeviceNotFound
	case errors.Is(err, capture.ErrDeviceBusy):
		key = i18n.DeviceBusy
	}
	detail := err.Error()
	var ae *capture.AcquireError
	if errors.As(err, &ae) {
		switch {
		case ae.Detail != "":
			detail = ae.Detail
		case ae.Err != nil:
			detail = ae.Err.Error()
		}
	}
	text := cat.Text(key)
	if key == i18n.GenericError {
		text = cat.Text(key, detail)
	}
	return Status{Key: key, Text: text, Detail: detail, Error: true}
}

func (c *Controller) noteView() NoteView {
	v := NoteView{
		ID:           c.current.ID,
		Title:        c.current.Title,
		Raw:          c.current.RawTranscription,
		Polished:     c.current.PolishedNote,
		PolishedHTML: c.html,
		States:       c.fields,
		Timestamp:    c.current.Timestamp,
		LiveTitle:    c.current.Title,
	}
	if c.fields.Title != note.Filled {
		v.Title = c.placeholder(c.fields.Title, i18n.TitlePlaceholder)
		v.LiveTitle = c.cat.Text(i18n.NewRecording)
	}
	if c.fields.Raw != note.Filled {
		v.Raw = c.placeholder(c.fields.Raw, i18n.RawPlaceholder)
	}
	if c.fields.Polished != note.Filled {
		v.Polished = c.placeholder(c.fields.Polished, i18n.PolishedPlaceholder)
		v.PolishedHTML = ""
		if v.Polished != "" {
			v.PolishedHTML = markdown.MustRender(v.Polished)
		}
	}
	return v
}

func (c *Controller) placeholder(s note.ContentState, key i18n.Key) string {
	if s == note.Placeholder {
		return c.cat.Text(key)
	}
	return ""
}

func (c *Controller) history() []HistoryEntry {
	notes := c.store.List()
	out := make([]HistoryEntry, 0, len(notes))
	for _, n := range notes {
		title := strings.TrimSpace(n.Title)
		if title == "" {
			title = c.cat.Text(i18n.UntitledNote)
		}
		out = append(out, HistoryEntry{
			ID:        n.ID,
			Title:     title,
			Date:      c.cat.DateTime(n.Time()),
			Timestamp: n.Timestamp,
			Current:   n.ID == c.current.ID,
		})
	}
	return out
}

func (c *Controller) recordControl() RecordControl {
	return RecordControl{Enabled: c.state != Processing, Recording: c.state == Recording}
}

func (c *Controller) view() View {
	return View{
		State:         c.state,
		Note:          c.noteView(),
		History:       c.history(),
		Status:        c.status,
		RecordControl: c.recordControl(),
		Current:       c.current,
	}
}

func (c *Controller) emitNote()    { c.sink.Emit(NoteChanged{Note: c.noteView()}) }
func (c *Controller) emitHistory() { c.sink.Emit(HistoryChanged{Notes: c.history()}) }

func (c *Controller) emitAll() {
	c.sink.Emit(StateChanged{State: c.state})
	c.sink.Emit(c.status)
	c.emitNote()
	c.emitHistory()
	c.sink.Emit(c.recordControl())
}
