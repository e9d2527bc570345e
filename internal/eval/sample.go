package eval

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phoneval/internal/dataset"
	"github.com/MrWong99/phoneval/internal/observe"
	"github.com/MrWong99/phoneval/internal/store"
	"github.com/MrWong99/phoneval/pkg/metric"
	"github.com/MrWong99/phoneval/pkg/phoneme"
	"github.com/MrWong99/phoneval/pkg/provider/stt"
)

// ErrUnsupportedAudio is returned for audio files that are neither WAV nor
// headerless PCM.
var ErrUnsupportedAudio = errors.New("eval: unsupported audio file")

// scoreSample never returns an error: problems end up in the Result.
func (r *Runner) scoreSample(ctx context.Context, log *slog.Logger, runID string, m *dataset.Manifest, s dataset.Sample) Result {
	ctx, span := observe.StartSpan(ctx, "eval.sample", trace.WithAttributes(
		attribute.String("sample.id", s.ID),
		attribute.String("sample.task", string(s.Task)),
	))
	defer span.End()
	log = log.With("sample", s.ID)

	res := Result{ID: s.ID, Task: s.Task, Vocabulary: s.Vocab()}
	fail := func(stage string, err error) Result {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		log.Warn("sample failed", "stage", stage, "err", err)
		r.recordFailed(ctx, s.Task, stage)
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("%s: %v", stage, err)
		return res
	}

	var spans []phoneme.Span
	if len(s.Words) > 0 {
		ref, err := r.lexicon.Reference(s.Words)
		if err != nil {
			return fail("reference", err)
		}
		res.Reference = ref.String()
		spans = ref.Spans
	} else {
		res.Reference = s.Ref()
	}

	if s.Audio != "" {
		text, err := r.transcribe(ctx, m.AudioPath(s))
		if err != nil {
			return fail("transcribe", err)
		}
		res.Hypothesis = text
	} else {
		res.Hypothesis = s.Hypothesis
	}

	// Lexicon phones carry no stress marks.
	hypothesis := res.Hypothesis
	if len(spans) > 0 {
		hypothesis = phoneme.NormalizeString(hypothesis)
	}

	skipped := 0
	for _, kind := range r.kinds {
		score, cached, err := r.score(ctx, kind, res.Reference, hypothesis, len(spans) > 0)
		switch {
		case metric.IsEmptyReference(err):
			log.Warn("empty reference, skipping", "metric", kind)
			r.recordSkipped(ctx, kind, s.Task)
			skipped++
		case err != nil:
			return fail("score", err)
		default:
			r.recordScore(ctx, kind, s.Task, score.Rate)
			if cached {
				res.Cached++
			} else {
				r.saveScore(ctx, log, runID, s.ID, score)
			}
		}
		res.Scores = append(res.Scores, score)

		if kind == metric.PER && len(spans) > 0 && err == nil {
			rows, err := phoneme.GroupByWord(spans, score.Alignment, score.Reference, score.Hypothesis)
			if err != nil {
				return fail("group", err)
			}
			res.Words = rows
		}
	}

	if skipped == len(r.kinds) {
		res.Status = StatusSkipped
	} else {
		res.Status = StatusScored
	}
	return res
}

// score computes one metric, consulting the store first unless the caller
// needs the alignment.
func (r *Runner) score(ctx context.Context, kind metric.Kind, reference, hypothesis string, needAlignment bool) (metric.Score, bool, error) {
	ref, err := metric.Tokenize(kind, reference)
	if err != nil {
		return metric.Score{}, false, fmt.Errorf("reference: %w", err)
	}
	hyp, err := metric.Tokenize(kind, hypothesis)
	if err != nil {
		return metric.Score{}, false, fmt.Errorf("hypothesis: %w", err)
	}

	if r.store != nil && !needAlignment && len(ref) > 0 {
		rec, found, err := r.store.LookupScore(ctx, Fingerprint(kind, ref, hyp))
		switch {
		case err != nil:
			r.log.Warn("score lookup failed", "metric", kind, "err", err)
		case found:
			if r.metrics != nil {
				r.metrics.CacheHits.Add(ctx, 1)
			}
			return cachedScore(kind, ref, hyp, rec), true, nil
		}
	}

	score, err := metric.ComputeTokens(kind, ref, hyp)
	return score, false, err
}

func cachedScore(kind metric.Kind, ref, hyp []string, rec store.ScoreRecord) metric.Score {
	s := metric.Score{
		Kind:       kind,
		Reference:  ref,
		Hypothesis: hyp,
		Distance:   rec.Distance,
		Rate:       rec.Rate,
	}
	s.Counts.Matches = rec.Matches
	s.Counts.Substitutions = rec.Substitutions
	s.Counts.Insertions = rec.Insertions
	s.Counts.Deletions = rec.Deletions
	return s
}

func (r *Runner) saveScore(ctx context.Context, log *slog.Logger, runID, sampleID string, s metric.Score) {
	if r.store == nil {
		return
	}
	rec := store.ScoreRecord{
		RunID:         runID,
		SampleID:      sampleID,
		Kind:          string(s.Kind),
		Fingerprint:   Fingerprint(s.Kind, s.Reference, s.Hypothesis),
		Distance:      s.Distance,
		RefLen:        s.RefLen(),
		Rate:          s.Rate,
		Substitutions: s.Counts.Substitutions,
		Insertions:    s.Counts.Insertions,
		Deletions:     s.Counts.Deletions,
		Matches:       s.Counts.Matches,
	}
	if err := r.store.SaveScore(ctx, rec); err != nil {
		log.Warn("save score failed", "metric", s.Kind, "err", err)
	}
}

// transcribe reads the recording at path and returns its transcript.
func (r *Runner) transcribe(ctx context.Context, path string) (string, error) {
	audio, err := readAudio(path, r.sampleRate)
	if err != nil {
		return "", err
	}
	audio.Language = r.language

	start := time.Now()
	tr, err := r.transcriber.Transcribe(ctx, audio)
	if r.metrics != nil {
		provider := observe.Attr("provider", r.sttName)
		r.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(), metricAttrs(provider))
		status := "ok"
		if err != nil {
			status = "error"
			r.metrics.RecordProviderError(ctx, r.sttName, "stt")
		}
		r.metrics.RecordProviderRequest(ctx, r.sttName, "stt", status)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tr.Text), nil
}

// readAudio loads a .wav file as is, or wraps a headerless 16-bit mono
// .pcm/.raw file in a WAV header at sampleRate.
func readAudio(path string, sampleRate int) (stt.Audio, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".wav" && ext != ".pcm" && ext != ".raw" {
		return stt.Audio{}, fmt.Errorf("%w: %q (want .wav, .pcm or .raw)", ErrUnsupportedAudio, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("read audio: %w", err)
	}

	audio := stt.Audio{Name: filepath.Base(path)}
	if ext == ".wav" {
		audio.WAV = data
	} else {
		audio.WAV = stt.EncodeWAV(data, sampleRate, 1)
	}
	if err := audio.Validate(); err != nil {
		return stt.Audio{}, fmt.Errorf("%q: %w", path, err)
	}
	return audio, nil
}

// Fingerprint identifies a (metric, reference, hypothesis) triple. Tokens
// are length-prefixed so no token content can collide with a separator.
func Fingerprint(kind metric.Kind, ref, hyp []string) string {
	h := blake3.New()
	var buf []byte
	buf = appendToken(buf, string(kind))
	buf = binary.AppendUvarint(buf, uint64(len(ref)))
	for _, t := range ref {
		buf = appendToken(buf, t)
	}
	buf = binary.AppendUvarint(buf, uint64(len(hyp)))
	for _, t := range hyp {
		buf = appendToken(buf, t)
	}
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}

func appendToken(buf []byte, tok string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(tok)))
	return append(buf, tok...)
}
