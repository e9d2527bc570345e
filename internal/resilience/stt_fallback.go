package resilience

import (
	"context"

	"github.com/MrWong99/phoneval/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with failover across several
// transcription backends.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Group exposes the underlying group for health reporting.
func (f *STTFallback) Group() *FallbackGroup[stt.Transcriber] { return f.group }

// Transcribe sends audio to the first healthy transcriber.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	return Do(ctx, f.group, func(ctx context.Context, t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, audio)
	})
}
