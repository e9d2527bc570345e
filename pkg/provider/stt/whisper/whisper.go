// Package whisper provides an STT transcriber backed by a whisper.cpp server.
//
// It talks to a running whisper-server binary, which exposes a REST API at
// POST /inference. Each utterance is uploaded as multipart/form-data with the
// WAV file in the "file" field and the transcript is read from the JSON
// response.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithModel("base.en"),
//	)
//	tr, err := t.Transcribe(ctx, stt.Audio{Name: "s1.wav", WAV: data})
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
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/phoneval/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is echoed into errors.
	maxErrorBody = 512
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the default language code sent to the server when the
// Audio carries none. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithTemperature sets the decoding temperature. Zero keeps the server
// default.
func WithTemperature(temp float64) Option {
	return func(t *Transcriber) {
		t.temperature = temp
	}
}

// WithHTTPClient replaces the default HTTP client (60 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements stt.Transcriber against a whisper.cpp HTTP server.
// It holds no per-request state and is safe for concurrent use.
type Transcriber struct {
	serverURL   string
	model       string
	language    string
	temperature float64
	httpClient  *http.Client
}

// New creates a Transcriber for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe uploads audio to the server's /inference endpoint.
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if err := audio.Validate(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %s: %w", audio.Name, err)
	}

	body, contentType, err := t.buildForm(audio)
	if err != nil {
		return stt.Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
		Latency:  time.Since(start),
	}, nil
}

// buildForm encodes the multipart body for one /inference call.
func (t *Transcriber) buildForm(audio stt.Audio) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	name := audio.Name
	if name == "" {
		name = "audio.wav"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.WAV); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := audio.Language
	if lang == "" {
		lang = t.language
	}
	fields := [][2]string{
		{"response_format", "json"},
		{"language", lang},
		{"model", t.model},
	}
	if t.temperature != 0 {
		fields = append(fields, [2]string{"temperature", strconv.FormatFloat(t.temperature, 'f', -1, 64)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
