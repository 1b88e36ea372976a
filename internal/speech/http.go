package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/audio"
)

const (
	defaultModel       = "whisper-1"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 512
)

// HTTPConfig configures an OpenAI-compatible transcription endpoint.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	DebugDir string
}

// HTTPEngine records with an audio.Recorder and uploads each utterance as
// FLAC to a batch transcription endpoint when the recording stops.
type HTTPEngine struct {
	cfg      HTTPConfig
	recorder audio.Recorder
	client   *http.Client
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	events   chan Event
	language string
}

// NewHTTPEngine constructs a batch engine over recorder.
func NewHTTPEngine(cfg HTTPConfig, recorder audio.Recorder, logger zerolog.Logger) *HTTPEngine {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &HTTPEngine{
		cfg:      cfg,
		recorder: recorder,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins capture. Results arrive on the returned channel after Stop.
func (e *HTTPEngine) Start(ctx context.Context, language string) (<-chan Event, error) {
	if strings.TrimSpace(e.cfg.Endpoint) == "" {
		return nil, errors.New("speech endpoint is not configured")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.events != nil {
		return nil, ErrBusy
	}
	if err := e.recorder.Start(ctx); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	e.events = make(chan Event, 4)
	e.language = language
	return e.events, nil
}

// Stop ends capture, transcribes the clip, and closes the event channel.
// An empty clip is returned without contacting the endpoint.
func (e *HTTPEngine) Stop(ctx context.Context) (audio.Clip, error) {
	e.mu.Lock()
	events := e.events
	language := e.language
	e.events = nil
	e.mu.Unlock()

	if events == nil {
		return audio.Clip{}, ErrNotStarted
	}
	defer close(events)

	clip := e.recorder.Stop()
	e.dumpDebugAudio(clip)
	if clip.Empty() {
		return clip, nil
	}

	text, err := e.transcribe(ctx, clip, language)
	if err != nil {
		events <- Event{Err: err}
		return clip, err
	}

	events <- Event{Transcript: text, IsFinal: true}
	return clip, nil
}

// Cancel releases the recorder and discards the attempt.
func (e *HTTPEngine) Cancel(context.Context) error {
	e.mu.Lock()
	events := e.events
	e.events = nil
	e.mu.Unlock()

	if events == nil {
		return nil
	}
	e.recorder.Cancel()
	close(events)
	return nil
}

func (e *HTTPEngine) transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	encoded, err := encodeFLAC(clip.Samples, clip.SampleRate)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "attempt.flac")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(encoded); err != nil {
		return "", err
	}
	_ = writer.WriteField("model", e.cfg.Model)
	_ = writer.WriteField("response_format", "json")
	if lang := baseLanguage(language); lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, &body)
	if err != nil {
		return "", err
	}
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	started := e.now()
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription endpoint error %d: %s", resp.StatusCode, truncate(string(raw), maxErrorBody))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("transcription response parse error: %w", err)
	}

	e.logger.Debug().
		Int("flac_bytes", len(encoded)).
		Float64("audio_seconds", clip.Duration()).
		Dur("latency", e.now().Sub(started)).
		Msg("utterance transcribed")
	return strings.TrimSpace(decoded.Text), nil
}

func (e *HTTPEngine) dumpDebugAudio(clip audio.Clip) {
	if e.cfg.DebugDir == "" || clip.Empty() {
		return
	}
	path, err := writeDebugWAV(e.cfg.DebugDir, audio.PCMFromSamples(clip.Samples), clip.SampleRate, e.now())
	if err != nil {
		e.logger.Warn().Err(err).Msg("unable to write debug audio dump")
		return
	}
	e.logger.Debug().Str("path", path).Msg("debug audio written")
}

// baseLanguage reduces "en-US" to the ISO-639-1 code the endpoint expects.
func baseLanguage(language string) string {
	language = strings.TrimSpace(language)
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}
	return strings.ToLower(language)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
