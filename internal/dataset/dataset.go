// Package dataset loads evaluation manifests: YAML files listing the samples
// of a reading assessment together with their ground truth.
//
// A sample carries its ground truth either as a reference string or as a list
// of words to expand through a pronunciation lexicon, and its model output
// either as a hypothesis string or as a path to a recording to transcribe:
//
//	name: wre-2026-spring
//	task: word
//	samples:
//	  - id: child-001
//	    words: [about, from, not, all]
//	    hypothesis: AH B AW T F R AH N AA T
//	  - id: child-002
//	    reference: EY EH CH B IY Y UW
//	    audio: audio/child-002.wav
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Task identifies the reading exercise a sample belongs to.
type Task string

const (
	// TaskWord is the word reading exercise (WRE).
	TaskWord Task = "word"

	// TaskLetter is the letter naming fluency task (LNF).
	TaskLetter Task = "letter"
)

// IsValid reports whether t is a recognised task.
func (t Task) IsValid() bool {
	return t == TaskWord || t == TaskLetter
}

// Manifest is a named collection of samples.
type Manifest struct {
	Name    string   `yaml:"name"`
	Task    Task     `yaml:"task"`
	Samples []Sample `yaml:"samples"`

	// Dir is the directory relative audio paths resolve against. Load sets
	// it to the manifest's directory.
	Dir string `yaml:"-"`
}

// Sample is one child's attempt at one exercise.
type Sample struct {
	ID   string `yaml:"id"`
	Task Task   `yaml:"task"`

	// Reference is the ground-truth transcript. A present but empty
	// reference is kept so the sample can be reported as skipped.
	Reference *string `yaml:"reference"`

	// Words is the word bank read aloud. Its lexicon pronunciation becomes
	// the phone reference and the per-word breakdown.
	Words []string `yaml:"words"`

	// Hypothesis is a transcript produced elsewhere.
	Hypothesis string `yaml:"hypothesis"`

	// Audio is a .wav, .pcm or .raw recording to transcribe.
	Audio string `yaml:"audio"`

	// Vocabulary lists the words the child could have said. Empty means
	// Words.
	Vocabulary []string `yaml:"vocabulary"`
}

// Ref returns the reference text, or "" when none is set.
func (s Sample) Ref() string {
	if s.Reference == nil {
		return ""
	}
	return *s.Reference
}

// Vocab returns the sample's vocabulary, falling back to its word bank.
func (s Sample) Vocab() []string {
	if len(s.Vocabulary) > 0 {
		return s.Vocabulary
	}
	return s.Words
}

// AudioPath returns the sample's audio path resolved against m.Dir.
func (m *Manifest) AudioPath(s Sample) string {
	if s.Audio == "" || filepath.IsAbs(s.Audio) {
		return s.Audio
	}
	return filepath.Join(m.Dir, s.Audio)
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	m, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse %q: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// LoadFromReader decodes and validates a manifest. Unknown fields are
// rejected. Samples without a task inherit the manifest's task, which
// defaults to [TaskWord].
func LoadFromReader(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset: decode yaml: %w", err)
	}

	if m.Task == "" {
		m.Task = TaskWord
	}
	for i := range m.Samples {
		if m.Samples[i].Task == "" {
			m.Samples[i].Task = m.Task
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every sample and returns all problems joined.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Task != "" && !m.Task.IsValid() {
		errs = append(errs, fmt.Errorf("task %q is invalid; valid values: word, letter", m.Task))
	}
	if len(m.Samples) == 0 {
		errs = append(errs, errors.New("manifest has no samples"))
	}

	seen := make(map[string]int, len(m.Samples))
	for i, s := range m.Samples {
		prefix := fmt.Sprintf("samples[%d]", i)
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			prefix = fmt.Sprintf("samples[%d] (%s)", i, s.ID)
			if first, dup := seen[s.ID]; dup {
				errs = append(errs, fmt.Errorf("%s: id already used by samples[%d]", prefix, first))
			} else {
				seen[s.ID] = i
			}
		}
		if s.Task != "" && !s.Task.IsValid() {
			errs = append(errs, fmt.Errorf("%s.task %q is invalid", prefix, s.Task))
		}
		switch {
		case s.Reference == nil && len(s.Words) == 0:
			errs = append(errs, fmt.Errorf("%s: reference or words is required", prefix))
		case s.Reference != nil && len(s.Words) > 0:
			errs = append(errs, fmt.Errorf("%s: reference and words are mutually exclusive", prefix))
		}
		switch {
		case s.Hypothesis == "" && s.Audio == "":
			errs = append(errs, fmt.Errorf("%s: hypothesis or audio is required", prefix))
		case s.Hypothesis != "" && s.Audio != "":
			errs = append(errs, fmt.Errorf("%s: hypothesis and audio are mutually exclusive", prefix))
		}
	}
	return errors.Join(errs...)
}

// NeedsAudio reports whether any sample must be transcribed.
func (m *Manifest) NeedsAudio() bool {
	for _, s := range m.Samples {
		if s.Audio != "" {
			return true
		}
	}
	return false
}
