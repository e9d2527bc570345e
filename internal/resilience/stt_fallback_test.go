package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/phoneval/pkg/provider/stt"
	sttmock "github.com/MrWong99/phoneval/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Errs: map[string]error{"bad.wav": errTest}, Default: "from primary"}
	backup := &sttmock.Transcriber{Default: "from backup"}
	fb := NewSTTFallback(primary, "whisper-local", testConfig())
	fb.AddFallback("whisper-remote", backup)

	ctx := context.Background()
	got, err := fb.Transcribe(ctx, stt.Audio{Name: "good.wav"})
	if err != nil || got.Text != "from primary" {
		t.Fatalf("Transcribe(good) = %q, %v", got.Text, err)
	}
	got, err = fb.Transcribe(ctx, stt.Audio{Name: "bad.wav"})
	if err != nil || got.Text != "from backup" {
		t.Fatalf("Transcribe(bad) = %q, %v", got.Text, err)
	}
	if calls := backup.CallNames(); !slices.Equal(calls, []string{"bad.wav"}) {
		t.Errorf("backup calls = %v", calls)
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	t.Parallel()
	errRemote := errors.New("remote down")
	fb := NewSTTFallback(&sttmock.Transcriber{Err: errTest}, "a", testConfig())
	fb.AddFallback("b", &sttmock.Transcriber{Err: errRemote})

	_, err := fb.Transcribe(context.Background(), stt.Audio{Name: "x.wav"})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errRemote) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping remote error", err)
	}
}

func TestSTTFallback_CancelledContext(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{}
	backup := &sttmock.Transcriber{}
	fb := NewSTTFallback(primary, "a", testConfig())
	fb.AddFallback("b", backup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fb.Transcribe(ctx, stt.Audio{Name: "x.wav"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(primary.CallNames())+len(backup.CallNames()) != 0 {
		t.Error("transcriber called with a cancelled context")
	}
}
