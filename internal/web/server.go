// Package web exposes the voice-notes client over HTTP.
//
// Commands go in as JSON requests; every state change comes back on the
// /ws event stream as {type, data} envelopes. The routes mirror what the
// page does: record, edit and browse notes, chat with the assistant, dictate
// into the chat input and download DOCX exports.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voicenotes/internal/assistant"
	"github.com/MrWong99/voicenotes/internal/dictation"
	"github.com/MrWong99/voicenotes/internal/export"
	"github.com/MrWong99/voicenotes/internal/health"
	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/internal/session"
	"github.com/MrWong99/voicenotes/pkg/audio"
)

// MaxDictationBytes bounds one dictated utterance: five minutes of 48 kHz
// stereo PCM.
const MaxDictationBytes = 5 * 60 * 48000 * 2 * 2

// maxJSONBytes bounds JSON request bodies.
const maxJSONBytes = 1 << 20

// Controller runs session commands. *session.Controller implements it.
type Controller interface {
	Do(ctx context.Context, cmd session.Command) (session.View, error)
}

// NoteLister returns the stored notes, newest first. *notestore.Store
// implements it.
type NoteLister interface {
	List() []note.Note
}

// Resizer adapts the waveform to the canvas size. *visualizer.Visualizer
// implements it.
type Resizer interface {
	Resize(cssWidth, cssHeight, dpr float64, visible bool) bool
}

// Config wires a Server to the application.
type Config struct {
	// Controller is required.
	Controller Controller
	// Notes is required.
	Notes NoteLister
	// Assistant is required.
	Assistant *assistant.Assistant
	// Dictator may be nil, which disables dictation.
	Dictator *dictation.Dictator
	// Visualizer is optional.
	Visualizer Resizer
	// Hub carries the event stream. Required.
	Hub *Hub
	// Health serves /healthz and /readyz when set.
	Health *health.Handler
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// AllowedHosts restricts the Host header. Empty allows every host.
	AllowedHosts []string
	// Catalog localises exports and error messages. Defaults to Vietnamese.
	Catalog *i18n.Catalog
	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server handles the HTTP API.
type Server struct {
	ctrl      Controller
	notes     NoteLister
	assistant *assistant.Assistant
	dictator  *dictation.Dictator
	vis       Resizer
	hub       *Hub
	health    *health.Handler
	promh     http.Handler
	hosts     []string
	metrics   *observe.Metrics
	now       func() time.Time

	cat      atomic.Pointer[i18n.Catalog]
	exporter atomic.Pointer[export.Exporter]
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Controller == nil {
		errs = append(errs, errors.New("controller is required"))
	}
	if cfg.Notes == nil {
		errs = append(errs, errors.New("notes is required"))
	}
	if cfg.Assistant == nil {
		errs = append(errs, errors.New("assistant is required"))
	}
	if cfg.Hub == nil {
		errs = append(errs, errors.New("hub is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}

	s := &Server{
		ctrl:      cfg.Controller,
		notes:     cfg.Notes,
		assistant: cfg.Assistant,
		dictator:  cfg.Dictator,
		vis:       cfg.Visualizer,
		hub:       cfg.Hub,
		health:    cfg.Health,
		promh:     cfg.MetricsHandler,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	for _, h := range cfg.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.hosts = append(s.hosts, h)
		}
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.now == nil {
		s.now = time.Now
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = i18n.MustNew(i18n.Vietnamese)
	}
	s.SetCatalog(cat)
	return s, nil
}

// SetCatalog switches the language of exports and error messages.
func (s *Server) SetCatalog(cat *i18n.Catalog) {
	s.cat.Store(cat)
	s.exporter.Store(export.New(export.WithCatalog(cat), export.WithMetrics(s.metrics)))
}

// Handler returns the routed handler wrapped in the request middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/recording/start", s.command(func(*http.Request) (session.Command, error) { return session.StartRecording{}, nil }))
	mux.HandleFunc("POST /api/recording/stop", s.command(func(*http.Request) (session.Command, error) { return session.StopRecording{}, nil }))
	mux.HandleFunc("POST /api/recording/toggle", s.command(func(*http.Request) (session.Command, error) { return session.ToggleRecording{}, nil }))

	mux.HandleFunc("GET /api/notes", s.handleNotes)
	mux.HandleFunc("POST /api/notes/new", s.command(func(*http.Request) (session.Command, error) { return session.NewNote{}, nil }))
	mux.HandleFunc("POST /api/notes/{id}/load", s.command(func(r *http.Request) (session.Command, error) {
		return session.LoadNote{ID: r.PathValue("id")}, nil
	}))
	mux.HandleFunc("DELETE /api/notes/{id}", s.command(func(r *http.Request) (session.Command, error) {
		return session.DeleteNote{ID: r.PathValue("id")}, nil
	}))
	mux.HandleFunc("PUT /api/note/{field}", s.command(editCommand))

	mux.HandleFunc("POST /api/visualizer/resize", s.handleResize)

	mux.HandleFunc("POST /api/chat/open", s.handleChatOpen)
	mux.HandleFunc("POST /api/chat/close", s.handleChatClose)
	mux.HandleFunc("GET /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/messages", s.handleChatSend)
	mux.HandleFunc("PUT /api/chat/attachment", s.handleAttach)
	mux.HandleFunc("DELETE /api/chat/attachment", s.handleDetach)
	mux.HandleFunc("GET /api/chat/messages/{id}/export", s.handleAnswerExport)

	mux.HandleFunc("GET /api/dictation", s.handleDictationInfo)
	mux.HandleFunc("POST /api/dictation", s.handleDictation)

	mux.HandleFunc("GET /api/export/notes", s.handleNotesExport)

	mux.HandleFunc("GET /ws", s.handleEvents)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.promh != nil {
		mux.Handle("GET /metrics", s.promh)
	}

	return observe.Middleware(s.metrics)(s.allowHosts(mux))
}

// ── Session ──────────────────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	view, err := s.ctrl.Do(r.Context(), session.Snapshot{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	view, err := s.ctrl.Do(r.Context(), session.Snapshot{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history := view.History
	if history == nil {
		history = []session.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

// command returns a handler that builds a command from the request, runs it
// and replies with the resulting view.
func (s *Server) command(build func(*http.Request) (session.Command, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := build(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		view, err := s.ctrl.Do(r.Context(), cmd)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type textBody struct {
	Text string `json:"text"`
}

func editCommand(r *http.Request) (session.Command, error) {
	var body textBody
	if err := decodeJSON(r, &body); err != nil {
		return nil, err
	}
	switch field := r.PathValue("field"); field {
	case "title":
		return session.EditTitle{Text: body.Text}, nil
	case "raw":
		return session.EditRaw{Text: body.Text}, nil
	case "polished":
		return session.EditPolished{Text: body.Text}, nil
	default:
		return nil, fmt.Errorf("unknown field %q", field)
	}
}

type resizeBody struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	DPR     float64 `json:"dpr"`
	Visible bool    `json:"visible"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var body resizeBody
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if body.Width < 0 || body.Height < 0 || body.DPR < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "dimensions must not be negative"})
		return
	}
	resized := false
	if s.vis != nil {
		resized = s.vis.Resize(body.Width, body.Height, body.DPR, body.Visible)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resized": resized})
}

// ── Chat ─────────────────────────────────────────────────────────────────────

type chatView struct {
	Open       bool                      `json:"open"`
	Messages   []assistant.Message       `json:"messages"`
	Attachment *assistant.AttachmentInfo `json:"attachment,omitempty"`
	Input      string                    `json:"input"`
}

func (s *Server) chatView() chatView {
	msgs := s.assistant.Messages()
	if msgs == nil {
		msgs = []assistant.Message{}
	}
	return chatView{
		Open:       s.assistant.IsOpen(),
		Messages:   msgs,
		Attachment: s.assistant.Attachment(),
		Input:      s.assistant.Input(),
	}
}

func (s *Server) handleChat(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chatView())
}

func (s *Server) handleChatOpen(w http.ResponseWriter, r *http.Request) {
	view, err := s.ctrl.Do(r.Context(), session.Snapshot{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.assistant.Open(s.notes.List(), view.Current); err != nil {
		s.writeError(w, r, err)
		return
	}
	cv := s.chatView()
	s.hub.Broadcast(EventChat, cv)
	writeJSON(w, http.StatusOK, cv)
}

func (s *Server) handleChatClose(w http.ResponseWriter, _ *http.Request) {
	s.assistant.Close()
	s.hub.Broadcast(EventChatClosed, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleChatSend accepts either JSON {text} or a multipart form with a text
// field and an optional file. Fragments of the answer are broadcast while it
// streams; the response carries the final answer.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	text, err := s.readChatMessage(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The answer keeps streaming to the event stream if the request goes away.
	ctx := context.WithoutCancel(r.Context())
	reply, err := s.assistant.Send(ctx, text, func(m assistant.Message) {
		s.hub.Broadcast(EventChatFragment, m)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.hub.Broadcast(EventChatMessage, reply)
	writeJSON(w, http.StatusOK, s.chatView())
}

func (s *Server) readChatMessage(w http.ResponseWriter, r *http.Request) (string, error) {
	mt := r.Header.Get("Content-Type")
	if !strings.HasPrefix(mt, "multipart/") {
		var body textBody
		if err := decodeJSON(r, &body); err != nil {
			return "", badRequest(err)
		}
		return body.Text, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, assistant.MaxAttachmentBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(maxJSONBytes); err != nil {
		if tooLarge(err) {
			return "", assistant.ErrFileTooLarge
		}
		return "", badRequest(err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, hdr, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return "", badRequest(err)
	default:
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", badRequest(err)
		}
		att, err := assistant.NewAttachment(hdr.Filename, hdr.Header.Get("Content-Type"), data)
		if err != nil {
			return "", err
		}
		if err := s.assistant.Attach(att); err != nil {
			return "", err
		}
	}
	return r.FormValue("text"), nil
}

// handleAttach stages the request body as the next message's attachment. The
// file name comes from the name query parameter.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, assistant.MaxAttachmentBytes+1))
	if err != nil {
		if tooLarge(err) {
			s.writeError(w, r, assistant.ErrFileTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	att, err := assistant.NewAttachment(r.URL.Query().Get("name"), r.Header.Get("Content-Type"), data)
	if err == nil {
		err = s.assistant.Attach(att)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.assistant.Attachment())
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.RemoveAttachment(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnswerExport(w http.ResponseWriter, r *http.Request) {
	text, err := s.assistant.Answer(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.exporter.Load().Answer(r.Context(), &buf, text); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeDocument(w, export.AnswerFilename(s.now()), buf.Bytes())
}

// ── Dictation ────────────────────────────────────────────────────────────────

type dictationInfo struct {
	Available bool   `json:"available"`
	Locale    string `json:"locale,omitempty"`
}

func (s *Server) handleDictationInfo(w http.ResponseWriter, _ *http.Request) {
	info := dictationInfo{Available: s.dictator.Available()}
	if info.Available {
		info.Locale = s.dictator.Locale()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDictation transcribes a 16-bit little-endian PCM body and places the
// text in the chat input. The rate and channels query parameters describe the
// audio; they default to 16 kHz mono.
func (s *Server) handleDictation(w http.ResponseWriter, r *http.Request) {
	if !s.dictator.Available() {
		s.writeError(w, r, dictation.ErrUnavailable)
		return
	}
	f, err := pcmFormat(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	pcm, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDictationBytes))
	if err != nil {
		status := http.StatusBadRequest
		if tooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}

	text, err := s.dictator.Transcribe(r.Context(), pcm, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.assistant.SetInput(text); err == nil {
		s.hub.Broadcast(EventChatInput, textBody{Text: text})
	} else if !errors.Is(err, assistant.ErrNoSession) {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textBody{Text: text})
}

func pcmFormat(r *http.Request) (audio.Format, error) {
	f := audio.SpeechFormat
	q := r.URL.Query()
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid rate %q", v)
		}
		f.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid channels %q", v)
		}
		f.Channels = n
	}
	return f, f.Validate()
}

// ── Export ───────────────────────────────────────────────────────────────────

// handleNotesExport downloads every stored note merged with the live current
// note as one document.
func (s *Server) handleNotesExport(w http.ResponseWriter, r *http.Request) {
	view, err := s.ctrl.Do(r.Context(), session.Snapshot{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	notes := note.MergeLive(s.notes.List(), view.Current)

	var buf bytes.Buffer
	if err := s.exporter.Load().Notes(r.Context(), &buf, notes); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeDocument(w, export.NotesFilename(s.now()), buf.Bytes())
}

func writeDocument(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// ── Events ───────────────────────────────────────────────────────────────────

// handleEvents opens the event stream. The first envelopes carry the current
// session view and chat so a fresh page can render without polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	view, err := s.ctrl.Do(r.Context(), session.Snapshot{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.hub.Serve(w, r,
		Envelope{Type: EventSnapshot, Data: view},
		Envelope{Type: EventChat, Data: s.chatView()},
	)
}

// ── Middleware & helpers ─────────────────────────────────────────────────────

// allowHosts rejects requests whose Host is not listed. An entry starting
// with a dot also matches every subdomain. Loopback hosts are always allowed.
func (s *Server) allowHosts(next http.Handler) http.Handler {
	if len(s.hosts) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.hostAllowed(r.Host) {
			observe.Logger(r.Context()).Warn("web: blocked request", "host", r.Host)
			http.Error(w, "host not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hostAllowed(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	for _, allowed := range s.hosts {
		if allowed == host {
			return true
		}
		if strings.HasPrefix(allowed, ".") && (host == allowed[1:] || strings.HasSuffix(host, allowed)) {
			return true
		}
	}
	return false
}

type errorBody struct {
	Error string `json:"error"`
	// Message is a localised text for the user, when one exists.
	Message string `json:"message,omitempty"`
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, assistant.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, assistant.ErrBusy),
		errors.Is(err, assistant.ErrNoSession),
		errors.Is(err, assistant.ErrNotExportable),
		errors.Is(err, export.ErrNothingToExport):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, dictation.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, assistant.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, dictation.ErrNoSpeech):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dictation.ErrUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	cat := s.cat.Load()
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		body.Message = cat.Text(i18n.NothingToExport)
	case errors.Is(err, assistant.ErrUnsupportedFile):
		body.Message = cat.Text(i18n.ChatUnsupported)
	case errors.Is(err, session.ErrBusy):
		body.Message = cat.Text(i18n.Busy)
	case errors.Is(err, session.ErrNotFound):
		body.Message = cat.Text(i18n.NoteNotFound)
	}
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		observe.Logger(r.Context()).Error("web: request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
