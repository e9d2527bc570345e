// Package eval scores every sample of a [dataset.Manifest] and aggregates
// corpus error rates.
//
// Samples are independent, so a [Runner] fans them out over a bounded
// errgroup. Audio samples are transcribed first; the transcript then goes
// through the same tokenise-align-rate path as a literal hypothesis. A
// sample whose reference is empty is skipped with a warning, and a sample
// whose transcription or scoring fails is marked failed; neither stops the
// run. Results are reported in manifest order.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phoneval/internal/dataset"
	"github.com/MrWong99/phoneval/internal/observe"
	"github.com/MrWong99/phoneval/internal/store"
	"github.com/MrWong99/phoneval/pkg/metric"
	"github.com/MrWong99/phoneval/pkg/phoneme"
	"github.com/MrWong99/phoneval/pkg/provider/stt"
)

// ErrNoTranscriber is returned by [Runner.Run] when the manifest has audio
// samples but the runner has no transcriber.
var ErrNoTranscriber = errors.New("eval: manifest has audio samples but no transcriber is configured")

const (
	defaultConcurrency = 4
	defaultSampleRate  = 16000
)

// Status is the outcome of one sample.
type Status string

const (
	StatusScored  Status = "scored"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is the outcome of one sample.
type Result struct {
	ID         string       `json:"id"`
	Task       dataset.Task `json:"task"`
	Status     Status       `json:"status"`
	Reference  string       `json:"reference"`
	Hypothesis string       `json:"hypothesis"`

	// Scores holds one entry per configured metric, in configuration order.
	// Scores served from the store carry no alignment.
	Scores []metric.Score `json:"scores,omitempty"`

	// Words breaks the phoneme alignment down per reference word. It is set
	// for samples given as a word list.
	Words []phoneme.WordRow `json:"words,omitempty"`

	// Vocabulary is the sample's word bank, for word-level error notes.
	Vocabulary []string `json:"vocabulary,omitempty"`

	// Cached counts the scores served from the store.
	Cached int `json:"cached,omitempty"`

	// Error describes why a failed sample failed.
	Error string `json:"error,omitempty"`
}

// Score returns the result's score for kind.
func (r Result) Score(kind metric.Kind) (metric.Score, bool) {
	for _, s := range r.Scores {
		if s.Kind == kind {
			return s, true
		}
	}
	return metric.Score{}, false
}

// Report is the outcome of a whole run.
type Report struct {
	RunID    string          `json:"run_id"`
	Manifest string          `json:"manifest"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Results  []Result        `json:"results"`
	Corpus   []metric.Corpus `json:"corpus"`
	Scored   int             `json:"scored"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
}

// StoreRun converts rep into its persisted summary.
func (rep *Report) StoreRun() store.Run {
	run := store.Run{
		ID:       rep.RunID,
		Manifest: rep.Manifest,
		Started:  rep.Started,
		Finished: rep.Finished,
		Samples:  len(rep.Results),
		Scored:   rep.Scored,
		Skipped:  rep.Skipped,
		Failed:   rep.Failed,
		Rates:    make(map[string]float64, len(rep.Corpus)),
	}
	for _, c := range rep.Corpus {
		if rate, err := c.Rate(); err == nil {
			run.Rates[string(c.Kind)] = rate
		}
	}
	return run
}

// Option is a functional option for configuring a [Runner].
type Option func(*Runner)

// WithTranscriber sets the backend used for audio samples. name labels its
// metrics.
func WithTranscriber(t stt.Transcriber, name string) Option {
	return func(r *Runner) {
		r.transcriber = t
		r.sttName = name
	}
}

// WithLexicon sets the lexicon that expands word lists into phones. Default:
// [phoneme.Default].
func WithLexicon(lex *phoneme.Lexicon) Option {
	return func(r *Runner) { r.lexicon = lex }
}

// WithStore enables score reuse and persistence.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records sample outcomes and transcription latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithKinds sets the metrics computed per sample. Default: PER.
func WithKinds(kinds ...metric.Kind) Option {
	return func(r *Runner) { r.kinds = kinds }
}

// WithConcurrency bounds the number of samples in flight. Default: 4.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithSampleRate sets the rate assumed for headerless .pcm/.raw audio.
// Default: 16000.
func WithSampleRate(hz int) Option {
	return func(r *Runner) { r.sampleRate = hz }
}

// WithLanguage sets the language hint passed to the transcriber.
func WithLanguage(lang string) Option {
	return func(r *Runner) { r.language = lang }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// Runner scores manifests. It is safe to call Run concurrently.
type Runner struct {
	transcriber stt.Transcriber
	sttName     string
	lexicon     *phoneme.Lexicon
	store       store.Store
	metrics     *observe.Metrics
	kinds       []metric.Kind
	concurrency int
	sampleRate  int
	language    string
	log         *slog.Logger
}

// New returns a [Runner] configured with opts.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, o := range opts {
		o(r)
	}
	if r.lexicon == nil {
		r.lexicon = phoneme.Default()
	}
	if len(r.kinds) == 0 {
		r.kinds = []metric.Kind{metric.PER}
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	if r.sampleRate <= 0 {
		r.sampleRate = defaultSampleRate
	}
	if r.sttName == "" {
		r.sttName = "stt"
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Run scores every sample of m. name identifies the manifest in the report
// and the store. Per-sample problems are recorded in the results; Run fails
// only when ctx is cancelled, when the runner cannot serve the manifest, or
// when the finished run cannot be saved. In the last case the report is
// returned together with the error.
func (r *Runner) Run(ctx context.Context, name string, m *dataset.Manifest) (*Report, error) {
	if m.NeedsAudio() && r.transcriber == nil {
		return nil, ErrNoTranscriber
	}

	rep := &Report{
		RunID:    store.NewRunID(),
		Manifest: name,
		Started:  time.Now(),
		Results:  make([]Result, len(m.Samples)),
	}

	ctx, span := observe.StartSpan(ctx, "eval.run", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.String("manifest", name),
		attribute.Int("samples", len(m.Samples)),
	))
	defer span.End()
	log := r.log.With("run", rep.RunID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, s := range m.Samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep.Results[i] = r.scoreSample(gctx, log, rep.RunID, m, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("eval: run %s: %w", rep.RunID, err)
	}

	corpus := make(map[metric.Kind]*metric.Corpus, len(r.kinds))
	for _, k := range r.kinds {
		corpus[k] = &metric.Corpus{Kind: k}
	}
	for _, res := range rep.Results {
		switch res.Status {
		case StatusScored:
			rep.Scored++
		case StatusSkipped:
			rep.Skipped++
		case StatusFailed:
			rep.Failed++
			continue
		}
		for _, s := range res.Scores {
			corpus[s.Kind].Add(s)
		}
	}
	for _, k := range r.kinds {
		rep.Corpus = append(rep.Corpus, *corpus[k])
	}
	rep.Finished = time.Now()

	log.Info("run finished",
		"manifest", name,
		"scored", rep.Scored,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"duration", rep.Finished.Sub(rep.Started),
	)

	if r.store != nil {
		if err := r.store.SaveRun(ctx, rep.StoreRun()); err != nil {
			return rep, fmt.Errorf("eval: %w", err)
		}
	}
	return rep, nil
}
