package file

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// prompt describes one built-in template and how many %s verbs an edited
// copy must keep.
type prompt struct {
	text  string
	verbs int
	about string
}

//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]prompt{
	driven.PromptAnswerSystem: {
		text: `You answer questions about lecture material using only the context provided.
Each context entry starts with its source marker: [page N] for lecture slides, [web] for web results.
Cite the markers of the entries you rely on.
If the answer cannot be derived from the context, say that the material does not cover it. Do not make up an answer.`,
		about: "answering rules, including the not-derivable instruction",
	},
	driven.PromptAnswerUser: {
		text: `Context:
%s

Question: %s`,
		verbs: 2,
		about: "wraps the context block (first %s) and the question (second %s)",
	},
	driven.PromptNoContext: {
		text: `No relevant context was found in the lecture material.

Question: %s

Tell the user that no relevant material was found for this question.`,
		verbs: 1,
		about: "used when nothing relevant was found; takes the question as %s",
	},
}

// verbPattern matches %s and its explicitly indexed form %[n]s.
var verbPattern = regexp.MustCompile(`%(?:\[\d+\])?s`)

// countVerbs counts string verbs in text, ignoring escaped percent signs.
func countVerbs(text string) int {
	return len(verbPattern.FindAllString(strings.ReplaceAll(text, "%%", ""), -1))
}

// cached is a loaded template and the file time it was read at.
type cached struct {
	text    string
	modTime time.Time
}

// PromptStore serves answer prompts from <dir>/<name>.txt. Missing files are
// created from the built-in defaults on first use. Edited files are picked
// up on the next Load without a restart; an edit that drops or adds a %s
// verb is ignored in favour of the default, with a warning.
type PromptStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]cached

	initOnce sync.Once
	initErr  error
}

// NewPromptStore creates a prompt store rooted at dir, or ~/.lectern/prompts
// when dir is empty. No files are touched until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".lectern", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]cached)}, nil
}

// Load returns the template called name.
func (s *PromptStore) Load(name string) (string, error) {
	def, known := defaultPrompts[name]

	s.initOnce.Do(s.seed)
	if s.initErr != nil {
		if known {
			return def.text, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	path := s.path(name)
	info, err := os.Stat(path)
	if err != nil {
		if known {
			return def.text, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	s.mu.Lock()
	c, ok := s.cache[name]
	s.mu.Unlock()
	if ok && c.modTime.Equal(info.ModTime()) {
		return c.text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if known {
			return def.text, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}
	text := strings.TrimSpace(string(data))
	if known && countVerbs(text) != def.verbs {
		logger.Warn("Prompt %s must contain %d %%s placeholder(s); using the default", path, def.verbs)
		text = def.text
	}

	s.mu.Lock()
	s.cache[name] = cached{text: text, modTime: info.ModTime()}
	s.mu.Unlock()
	return text, nil
}

// Reload drops every cached template.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]cached)
	s.mu.Unlock()
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

// seed creates the directory, any missing default files and a README.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}
	for name, p := range defaultPrompts {
		if err := writeIfMissing(s.path(name), p.text); err != nil {
			s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
			return
		}
	}
	if err := writeIfMissing(filepath.Join(s.dir, "README.md"), readme()); err != nil {
		s.initErr = err
	}
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0600)
}

func readme() string {
	var b strings.Builder
	b.WriteString("# Lectern Prompts\n\n")
	b.WriteString("These prompts shape how answers are generated from retrieved lecture material.\n\n")
	b.WriteString("## Files\n\n")
	for _, name := range []string{driven.PromptAnswerSystem, driven.PromptAnswerUser, driven.PromptNoContext} {
		fmt.Fprintf(&b, "- `%s.txt`: %s\n", name, defaultPrompts[name].about)
	}
	b.WriteString("\nEdits are picked up on the next question, also by a running `lectern serve`.\n")
	b.WriteString("Keep the `%s` placeholders in place and in order; a file with the wrong\n")
	b.WriteString("number of placeholders is ignored. Deleting a file restores the default.\n")
	return b.String()
}
