// Command phoneval scores children's reading-assessment transcripts against
// their ground truth and reports word, character and phoneme error rates.
//
// Usage:
//
//	phoneval score -metric per -ref "K AE T" -hyp "B AE T" [-table] [-json]
//	phoneval table -words "about, from" -hyp "AH B AW T F AH N" [-lexicon lex.yaml] [-narrate]
//	phoneval batch -manifest samples.yaml [-config phoneval.yaml] [-json]
//	phoneval runs [-config phoneval.yaml] [-limit 20]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/phoneval/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return dispatch(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// command is one subcommand. It returns the process exit code.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout, stderr io.Writer) int
}

var commands = []command{
	{"score", "align a reference and a hypothesis and print their error rate", runScore},
	{"table", "expand a word bank through the lexicon and print the per-word breakdown", runTable},
	{"batch", "score every sample of a manifest", runBatch},
	{"runs", "list stored batch runs", runRuns},
}

func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
		usage(stderr)
		return 2
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, args[1:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "phoneval: unknown command %q\n\n", args[0])
	usage(stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: phoneval <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-6s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `run "phoneval <command> -h" for the flags of a command`)
}

// newFlagSet returns a flag set that reports parse errors instead of exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("phoneval "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args into fs. ok is false when the command should stop;
// code is then its exit code.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "%s: unexpected arguments %q\n", fs.Name(), fs.Args())
		return 2, false
	}
	return 0, true
}

// loadConfig reads path, or returns the defaults when path is empty. The
// default logger is replaced with one at the configured level.
func loadConfig(path string, stderr io.Writer) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", path)
		}
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.LogLevel, stderr))
	return cfg, nil
}

func newLogger(level config.LogLevel, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// fail prints err prefixed with the command name and returns exit code 1.
func fail(stderr io.Writer, name string, err error) int {
	fmt.Fprintf(stderr, "phoneval %s: %v\n", name, err)
	return 1
}
