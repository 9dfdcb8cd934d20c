// Package deepgram implements [stt.Provider] on Deepgram's live
// transcription WebSocket.
//
// A session streams linear16 PCM and receives Results messages. While the
// caller is silent the session sends KeepAlive frames, since Deepgram drops
// idle streams after about ten seconds and a dictation pause can last that
// long. Close sends CloseStream so the final words of the utterance are
// flushed before the channels close.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "vi"
	defaultSampleRate = 16000
	defaultKeepAlive  = 5 * time.Second

	// closeTimeout bounds the wait for the server to flush after CloseStream.
	closeTimeout = 10 * time.Second
)

var (
	msgKeepAlive   = []byte(`{"type":"KeepAlive"}`)
	msgCloseStream = []byte(`{"type":"CloseStream"}`)
)

// regional lists the region-qualified tags Deepgram accepts as such. Any
// other tag is reduced to its primary language, so "vi-VN" becomes "vi".
var regional = map[string]bool{
	"en-us": true, "en-gb": true, "en-au": true, "en-in": true, "en-nz": true,
	"es-419": true, "fr-ca": true, "pt-br": true, "pt-pt": true,
	"zh-cn": true, "zh-tw": true, "zh-hk": true, "nl-be": true, "de-ch": true,
}

func languageParam(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	lower := strings.ToLower(tag)
	if regional[lower] {
		primary, region, _ := strings.Cut(tag, "-")
		return strings.ToLower(primary) + "-" + strings.ToUpper(region)
	}
	primary, _, _ := strings.Cut(lower, "-")
	return primary
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the Deepgram model, e.g. "nova-2" or "nova-3".
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used when a session does not name one.
func WithLanguage(tag string) Option { return func(p *Provider) { p.language = tag } }

// WithSampleRate sets the sample rate used when a session does not name one.
func WithSampleRate(hz int) Option { return func(p *Provider) { p.sampleRate = hz } }

// WithEndpoint overrides the streaming URL, for self-hosted Deepgram or tests.
func WithEndpoint(endpoint string) Option { return func(p *Provider) { p.endpoint = endpoint } }

// WithKeepAlive sets the idle interval after which a KeepAlive is sent.
func WithKeepAlive(d time.Duration) Option { return func(p *Provider) { p.keepAlive = d } }

// Provider opens Deepgram streaming sessions.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
	keepAlive  time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider. apiKey must be set.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		keepAlive:  defaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram. ctx bounds the whole session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build url: %w", err)
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram: dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &session{
		conn:      conn,
		keepAlive: p.keepAlive,
		partials:  make(chan stt.Transcript, 64),
		finals:    make(chan stt.Transcript, 64),
		audio:     make(chan []byte, 256),
		closing:   make(chan struct{}),
		drained:   make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	go s.writeLoop(ctx)
	go s.readLoop(ctx)
	return s, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", languageParam(lang))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.Interim))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ── session ─────────────────────────────────────────────────────────────────

type session struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	closing  chan struct{} // closed by Close
	drained  chan struct{} // closed when the writer has stopped
	readDone chan struct{} // closed when the reader has stopped

	closeOnce sync.Once
	mu        sync.Mutex
	err       error // first transport error
}

func (s *session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *session) transportErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendAudio queues chunk. After a transport failure it returns that failure.
func (s *session) SendAudio(chunk []byte) error {
	if err := s.transportErr(); err != nil {
		return fmt.Errorf("deepgram: send: %w", err)
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
	case <-s.drained:
		if err := s.transportErr(); err != nil {
			return fmt.Errorf("deepgram: send: %w", err)
		}
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close flushes queued audio and waits for Deepgram's last results.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		<-s.drained

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if s.transportErr() == nil {
			_ = s.conn.Write(ctx, websocket.MessageText, msgCloseStream)
		}
		select {
		case <-s.readDone:
		case <-ctx.Done():
		}
		s.conn.Close(websocket.StatusNormalClosure, "dictation finished")
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer close(s.drained)

	idle := time.NewTimer(s.keepAlive)
	defer idle.Stop()

	write := func(typ websocket.MessageType, b []byte) bool {
		if err := s.conn.Write(ctx, typ, b); err != nil {
			s.fail(err)
			return false
		}
		idle.Reset(s.keepAlive)
		return true
	}

	for {
		select {
		case chunk := <-s.audio:
			if !write(websocket.MessageBinary, chunk) {
				return
			}
		case <-idle.C:
			if !write(websocket.MessageText, msgKeepAlive) {
				return
			}
		case <-s.closing:
			for {
				select {
				case chunk := <-s.audio:
					if !write(websocket.MessageBinary, chunk) {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer close(s.readDone)
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.fail(err)
			}
			return
		}
		t, ok := parseResults(msg)
		if !ok || strings.TrimSpace(t.Text) == "" {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		// Never block: an unread partial must not stall Close.
		select {
		case out <- t:
		default:
		}
	}
}

// results is Deepgram's Results message, reduced to what a transcript needs.
type results struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				PunctuatedWord string  `json:"punctuated_word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResults decodes a Results message. Other message types, malformed
// JSON and results without alternatives report false.
func parseResults(data []byte) (stt.Transcript, bool) {
	var r results
	if err := json.Unmarshal(data, &r); err != nil || r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	t := stt.Transcript{Text: alt.Transcript, IsFinal: r.IsFinal, Confidence: alt.Confidence}
	for _, w := range alt.Words {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		t.Words = append(t.Words, stt.WordDetail{
			Word:       word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return t, true
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
