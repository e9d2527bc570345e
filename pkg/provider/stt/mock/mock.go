// Package mock provides a test double for the stt.Transcriber interface.
//
// Example:
//
//	tr := &mock.Transcriber{Texts: map[string]string{"s1.wav": "AH B AW T"}}
//	out, _ := tr.Transcribe(ctx, stt.Audio{Name: "s1.wav", WAV: wav})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/phoneval/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Texts maps Audio.Name to the transcript text returned for it.
	Texts map[string]string

	// Default is returned for names missing from Texts.
	Default string

	// Err, if non-nil, is returned by every call.
	Err error

	// Errs maps Audio.Name to a per-recording error and takes precedence
	// over Err.
	Errs map[string]error

	// Calls records the Audio.Name of every call in order.
	Calls []string
}

// Transcribe records the call and returns the configured text or error.
// A cancelled ctx yields ctx.Err().
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, audio.Name)

	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if err, ok := t.Errs[audio.Name]; ok {
		return stt.Transcript{}, err
	}
	if t.Err != nil {
		return stt.Transcript{}, t.Err
	}
	text, ok := t.Texts[audio.Name]
	if !ok {
		text = t.Default
	}
	return stt.Transcript{Text: text, Language: audio.Language}, nil
}

// CallNames returns a snapshot of the recorded calls. Thread-safe.
func (t *Transcriber) CallNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.Calls)
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
