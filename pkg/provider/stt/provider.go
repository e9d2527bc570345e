// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber turns one recorded utterance into text (words for word
// reading tasks, or a space-separated phone string for phoneme models). The
// evaluation core only ever sees the resulting string. Audio arrives as an
// already-encoded WAV payload: this package does not decode, resample or
// downmix.
//
// Transcribers are explicit objects built from configuration and passed to
// the evaluation runner. Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyAudio is returned when an Audio value carries no payload.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrNotWAV is returned when an Audio payload lacks a RIFF/WAVE header.
	ErrNotWAV = errors.New("stt: audio is not a RIFF/WAVE file")
)

// Audio is one utterance to transcribe.
type Audio struct {
	// Name identifies the recording in logs and multipart uploads
	// (e.g., "child-042-wre.wav").
	Name string

	// WAV is the complete RIFF/WAVE file.
	WAV []byte

	// Language is an optional BCP-47 hint ("en"). Empty means the
	// transcriber's configured default.
	Language string
}

// Validate reports whether a looks like a WAV payload.
func (a Audio) Validate() error {
	if len(a.WAV) == 0 {
		return ErrEmptyAudio
	}
	if !IsWAV(a.WAV) {
		return ErrNotWAV
	}
	return nil
}

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed content.
	Text string

	// Language is the language the backend recognised, when reported.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// backend does not report confidence.
	Confidence float64

	// Latency is the wall-clock time the backend took.
	Latency time.Duration
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe sends audio to the backend and waits for the transcript.
	// It returns promptly with ctx.Err() when ctx is cancelled.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}
