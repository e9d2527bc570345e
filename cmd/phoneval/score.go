package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/phoneval/internal/config"
	"github.com/MrWong99/phoneval/internal/narrate"
	"github.com/MrWong99/phoneval/internal/observe"
	"github.com/MrWong99/phoneval/internal/report"
	"github.com/MrWong99/phoneval/internal/resilience"
	"github.com/MrWong99/phoneval/pkg/metric"
	"github.com/MrWong99/phoneval/pkg/phoneme"
)

func runScore(_ context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("score", stderr)
	metrics := fs.String("metric", "per", "comma-separated metrics to compute: wer, cer, per")
	ref := fs.String("ref", "", "reference (ground-truth) transcript")
	hyp := fs.String("hyp", "", "hypothesis (model) transcript")
	showTable := fs.Bool("table", false, "print the token-by-token alignment")
	vocab := fs.String("vocab", "", "word bank for nearest-word notes on WER substitutions")
	asJSON := fs.Bool("json", false, "print scores as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	kinds, err := parseKinds(strings.Split(*metrics, ","))
	if err != nil {
		return fail(stderr, "score", err)
	}

	scores := make([]metric.Score, 0, len(kinds))
	var empty error
	for _, k := range kinds {
		s, err := metric.Compute(k, *ref, *hyp)
		switch {
		case metric.IsEmptyReference(err):
			empty = fmt.Errorf("%w (distance %d)", err, s.Distance)
		case err != nil:
			return fail(stderr, "score", err)
		}
		scores = append(scores, s)
	}

	if *asJSON {
		if err := report.JSON(stdout, scores); err != nil {
			return fail(stderr, "score", err)
		}
	} else {
		for _, s := range scores {
			fmt.Fprint(stdout, report.Summary(s))
			if *showTable {
				fmt.Fprintln(stdout)
				fmt.Fprint(stdout, report.Alignment(s))
			}
			if s.Kind == metric.WER && s.Distance > 0 {
				if errs := report.WordErrors(s, phoneme.SplitWords(*vocab), nil); len(errs) > 0 {
					fmt.Fprintln(stdout)
					fmt.Fprint(stdout, report.FormatWordErrors(errs))
				}
			}
			fmt.Fprintln(stdout)
		}
	}

	if empty != nil {
		return fail(stderr, "score", empty)
	}
	return 0
}

// tableResult is the JSON form of the table command.
type tableResult struct {
	Reference phoneme.Reference  `json:"reference"`
	Score     metric.Score       `json:"score"`
	Words     []phoneme.WordRow  `json:"words"`
	Summary   report.WordSummary `json:"summary"`
	Narration *narrate.Narration `json:"narration,omitempty"`
}

func runTable(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("table", stderr)
	words := fs.String("words", "", `word or letter bank read aloud, e.g. "about, from, not"`)
	hyp := fs.String("hyp", "", "hypothesis phones, space-separated")
	lexPath := fs.String("lexicon", "", "YAML lexicon (default: built-in word and letter bank)")
	task := fs.String("task", string(narrate.TaskWord), "reading task: word or letter")
	showAlign := fs.Bool("align", false, "also print the phone-by-phone alignment")
	doNarrate := fs.Bool("narrate", false, "ask the configured LLM to describe the result")
	configPath := fs.String("config", "", "YAML configuration (required for -narrate)")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if strings.TrimSpace(*words) == "" {
		return fail(stderr, "table", errors.New("-words is required"))
	}
	if t := narrate.Task(*task); t != narrate.TaskWord && t != narrate.TaskLetter {
		return fail(stderr, "table", fmt.Errorf("-task %q is invalid; valid values: word, letter", *task))
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		return fail(stderr, "table", err)
	}
	if *lexPath == "" {
		*lexPath = cfg.Lexicon
	}
	lex, err := loadLexicon(*lexPath)
	if err != nil {
		return fail(stderr, "table", err)
	}

	bank := phoneme.SplitWords(*words)
	ref, err := lex.Reference(bank)
	if err != nil {
		return fail(stderr, "table", err)
	}
	score, err := metric.ComputeTokens(metric.PER, metric.Phonemes(ref.String()), metric.Phonemes(phoneme.NormalizeString(*hyp)))
	if err != nil {
		return fail(stderr, "table", err)
	}
	rows, err := phoneme.GroupByWord(ref.Spans, score.Alignment, score.Reference, score.Hypothesis)
	if err != nil {
		return fail(stderr, "table", err)
	}
	res := tableResult{Reference: ref, Score: score, Words: rows, Summary: report.SummarizeWords(rows)}

	tables := report.WordTable(rows) + "\n" + report.Summary(score)
	if *showAlign {
		tables += "\n" + report.Alignment(score)
	}

	var narrErr error
	if *doNarrate {
		n, err := narrateTable(ctx, cfg, narrate.Request{
			Task:       narrate.Task(*task),
			Bank:       bank,
			Reference:  ref.String(),
			Hypothesis: strings.ToUpper(strings.Join(score.Hypothesis, " ")),
			Tables:     tables,
			Rates: []narrate.Rate{
				{Name: "PER", Value: score.Rate},
				{Name: "Word error rate", Value: res.Summary.Rate},
			},
		})
		switch {
		case errors.Is(err, narrate.ErrInconsistentNarration):
			slog.Warn("narration discarded", "err", err)
			narrErr = err
		case err != nil:
			return fail(stderr, "table", err)
		default:
			res.Narration = &n
		}
	}

	if *asJSON {
		if err := report.JSON(stdout, res); err != nil {
			return fail(stderr, "table", err)
		}
	} else {
		fmt.Fprint(stdout, tables)
		if res.Narration != nil {
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, res.Narration.Text)
		}
	}

	if narrErr != nil {
		return fail(stderr, "table", narrErr)
	}
	return 0
}

// narrateTable builds the configured LLM (with fallbacks) and narrates req.
func narrateTable(ctx context.Context, cfg *config.Config, req narrate.Request) (narrate.Narration, error) {
	shutdown, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return narrate.Narration{}, err
	}
	defer shutdown()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	provider, err := reg.BuildLLM(cfg.Providers, fallbackConfig())
	if err != nil {
		return narrate.Narration{}, fmt.Errorf("create llm provider: %w", err)
	}
	if provider == nil {
		return narrate.Narration{}, errors.New("-narrate requires providers.llm in the configuration")
	}

	opts := []narrate.Option{
		narrate.WithMaxTokens(cfg.Narrate.MaxTokens),
		narrate.WithMetrics(observe.DefaultMetrics(), cfg.Providers.LLM.Name),
	}
	if t := cfg.Narrate.Temperature; t != nil {
		opts = append(opts, narrate.WithTemperature(*t))
	}
	return narrate.New(provider, opts...).Narrate(ctx, req)
}

func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Logger: slog.Default()},
	}
}

func parseKinds(names []string) ([]metric.Kind, error) {
	var (
		kinds []metric.Kind
		errs  []error
	)
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		k, err := metric.ParseKind(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		kinds = append(kinds, k)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, errors.New("no metric selected")
	}
	return kinds, nil
}

func loadLexicon(path string) (*phoneme.Lexicon, error) {
	if path == "" {
		return phoneme.Default(), nil
	}
	return phoneme.LoadLexiconFile(path)
}
