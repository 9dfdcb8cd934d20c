// Package whisper implements [stt.Provider] on a whisper.cpp server's
// POST /inference endpoint.
//
// whisper.cpp transcribes whole files, so a session buffers PCM, drops the
// silence before the speaker starts and cuts a segment whenever the speaker
// pauses or the segment reaches the model's 30 second window. Each segment is
// uploaded as a WAV file and its text delivered on Finals in order. The
// session emits no partials.
//
//	p, err := whisper.New("http://localhost:8081", whisper.WithLanguage("vi"))
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voicenotes/pkg/audio"
	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

const (
	defaultLanguage   = "vi"
	defaultSampleRate = 16000
	defaultPause      = 800 * time.Millisecond
	defaultMaxSegment = 30 * time.Second

	// defaultThreshold is the normalised RMS below which a chunk counts as
	// silence; about -40 dBFS.
	defaultThreshold = 0.01

	requestTimeout = 60 * time.Second
)

// nonSpeech matches the bracketed markers whisper emits for silence and
// noise, e.g. "[BLANK_AUDIO]" or "[ Silence ]".
var nonSpeech = regexp.MustCompile(`\[[^\]]*\]`)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the model
// the server was started with.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used when a session does not name one.
// "auto" lets whisper detect it.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithSampleRate sets the sample rate used when a session does not name one.
func WithSampleRate(hz int) Option { return func(p *Provider) { p.sampleRate = hz } }

// WithPause sets how much trailing silence ends a segment.
func WithPause(d time.Duration) Option { return func(p *Provider) { p.pause = d } }

// WithMaxSegment caps the audio uploaded per request.
func WithMaxSegment(d time.Duration) Option { return func(p *Provider) { p.maxSegment = d } }

// WithThreshold sets the normalised RMS level in (0, 1) below which audio is
// treated as silence.
func WithThreshold(rms float64) Option { return func(p *Provider) { p.threshold = rms } }

// WithHTTPClient replaces the client used for inference requests.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// Provider opens whisper.cpp sessions. It is safe for concurrent use.
type Provider struct {
	endpoint   string
	model      string
	language   string
	sampleRate int
	pause      time.Duration
	maxSegment time.Duration
	threshold  float64
	client     *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider for the server at serverURL, e.g.
// "http://localhost:8081".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server url must not be empty")
	}
	p := &Provider{
		endpoint:   strings.TrimSuffix(serverURL, "/") + "/inference",
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		pause:      defaultPause,
		maxSegment: defaultMaxSegment,
		threshold:  defaultThreshold,
		client:     &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.threshold <= 0 || p.threshold >= 1 {
		return nil, fmt.Errorf("whisper: threshold %v outside (0, 1)", p.threshold)
	}
	return p, nil
}

// StartStream opens a session. No request is made until the first segment
// is cut, so only a cancelled ctx fails here.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start: %w", err)
	}
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = p.sampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("whisper: start: %w", err)
	}
	lang := languageParam(cfg.Language)
	if lang == "" {
		lang = p.language
	}

	s := &session{
		p:        p,
		format:   f,
		language: lang,
		audio:    make(chan []byte, 256),
		segments: make(chan []byte, 4),
		partials: make(chan stt.Transcript),
		finals:   make(chan stt.Transcript, 64),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	close(s.partials)
	go s.segment(ctx)
	go s.transcribe(ctx)
	return s, nil
}

// languageParam reduces a BCP-47 tag to the ISO 639-1 code whisper takes.
func languageParam(tag string) string {
	base, _, _ := strings.Cut(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"), "-")
	return strings.ToLower(base)
}

// ── session ─────────────────────────────────────────────────────────────────

type session struct {
	p        *Provider
	format   audio.Format
	language string

	audio    chan []byte
	segments chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	closing   chan struct{} // closed by Close
	done      chan struct{} // closed when the last segment is transcribed
	closeOnce sync.Once

	mu  sync.Mutex
	err error // first inference failure
}

func (s *session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendAudio queues chunk. Once an inference request has failed it returns
// that failure.
func (s *session) SendAudio(chunk []byte) error {
	if err := s.failure(); err != nil {
		return err
	}
	select {
	case <-s.closing:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.closing:
		return stt.ErrSessionClosed
	case <-s.done:
		if err := s.failure(); err != nil {
			return err
		}
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close cuts the last segment and waits until every segment is transcribed.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		<-s.done
	})
	return nil
}

// segment owns the buffer. It hands finished segments to transcribe and
// closes s.segments when the session ends.
func (s *session) segment(ctx context.Context) {
	defer close(s.segments)

	var (
		buf    []byte
		speech bool
		quiet  time.Duration
	)
	cut := func() {
		if speech {
			s.segments <- buf
		}
		buf, speech, quiet = nil, false, 0
	}
	handle := func(chunk []byte) {
		if audio.RMS(chunk) < s.p.threshold {
			if !speech {
				return
			}
			buf = append(buf, chunk...)
			quiet += s.format.Duration(len(chunk))
			if quiet >= s.p.pause {
				cut()
			}
			return
		}
		speech, quiet = true, 0
		buf = append(buf, chunk...)
		if s.format.Duration(len(buf)) >= s.p.maxSegment {
			cut()
		}
	}

	for {
		select {
		case chunk := <-s.audio:
			handle(chunk)
		case <-s.closing:
			for {
				select {
				case chunk := <-s.audio:
					handle(chunk)
				default:
					cut()
					return
				}
			}
		case <-ctx.Done():
			s.fail(fmt.Errorf("whisper: %w", ctx.Err()))
			return
		}
	}
}

// transcribe uploads segments in order. After the first failure the rest
// are discarded.
func (s *session) transcribe(ctx context.Context) {
	defer close(s.done)
	defer close(s.finals)

	for pcm := range s.segments {
		if s.failure() != nil {
			continue
		}
		text, err := s.p.infer(ctx, pcm, s.format, s.language)
		if err != nil {
			s.fail(err)
			continue
		}
		if text == "" {
			continue
		}
		select {
		case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
		case <-ctx.Done():
		}
	}
}

// ── inference ───────────────────────────────────────────────────────────────

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// infer uploads pcm as a WAV file and returns the cleaned transcript.
func (p *Provider) infer(ctx context.Context, pcm []byte, f audio.Format, lang string) (string, error) {
	wav, err := audio.EncodeWAV(pcm[:len(pcm)-len(pcm)%(2*f.Channels)], f)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", "0.0"},
		{"language", lang},
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("whisper: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whisper: read response: %w", err)
	}
	var out inferenceResponse
	jsonErr := json.Unmarshal(data, &out)
	switch {
	case resp.StatusCode != http.StatusOK && out.Error != "":
		return "", fmt.Errorf("whisper: inference: %s: %s", resp.Status, out.Error)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("whisper: inference: %s", resp.Status)
	case jsonErr != nil:
		return "", fmt.Errorf("whisper: decode response: %w", jsonErr)
	case out.Error != "":
		return "", fmt.Errorf("whisper: inference: %s", out.Error)
	}
	return cleanText(out.Text), nil
}

// cleanText strips non-speech markers and collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(nonSpeech.ReplaceAllString(s, " ")), " ")
}
