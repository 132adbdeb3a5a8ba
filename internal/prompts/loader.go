package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Files names optional override files. Empty paths keep the default text.
type Files struct {
	StoryBible    string `yaml:"story_bible"`
	Outline       string `yaml:"outline"`
	ChapterSystem string `yaml:"chapter_system"`
	SummarySystem string `yaml:"summary_system"`
}

// Loader reads override files once and caches their contents by path.
type Loader struct {
	mu  sync.RWMutex
	raw map[string]string
}

func NewLoader() *Loader {
	return &Loader{raw: make(map[string]string)}
}

// Read returns the file's contents, from cache after the first read.
func (l *Loader) Read(path string) (string, error) {
	l.mu.RLock()
	if content, ok := l.raw[path]; ok {
		l.mu.RUnlock()
		return content, nil
	}
	l.mu.RUnlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}

	l.mu.Lock()
	l.raw[path] = string(content)
	l.mu.Unlock()

	return string(content), nil
}

// Load starts from Defaults, applies every override in files and validates
// the result.
func (l *Loader) Load(files Files) (Config, error) {
	cfg := Defaults()

	overrides := []struct {
		path   string
		target *string
	}{
		{files.StoryBible, &cfg.StoryBible},
		{files.Outline, &cfg.Outline},
		{files.ChapterSystem, &cfg.ChapterSystem},
		{files.SummarySystem, &cfg.SummarySystem},
	}
	for _, o := range overrides {
		if o.path == "" {
			continue
		}
		content, err := l.Read(o.path)
		if err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", o.path, err)
		}
		*o.target = content
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Clear drops cached file contents so edited files are re-read.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.raw = make(map[string]string)
}

// WriteDefaults writes the built-in prompts into dir as editable files and
// returns the Files pointing at them. Existing files are left alone unless
// overwrite is set.
func WriteDefaults(dir string, overwrite bool) (Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Files{}, fmt.Errorf("creating prompt directory: %w", err)
	}

	d := Defaults()
	files := Files{
		StoryBible:    filepath.Join(dir, "story_bible.tmpl"),
		Outline:       filepath.Join(dir, "outline.tmpl"),
		ChapterSystem: filepath.Join(dir, "chapter_system.txt"),
		SummarySystem: filepath.Join(dir, "summary_system.txt"),
	}
	contents := map[string]string{
		files.StoryBible:    d.StoryBible,
		files.Outline:       d.Outline,
		files.ChapterSystem: d.ChapterSystem,
		files.SummarySystem: d.SummarySystem,
	}
	if !overwrite {
		for path := range contents {
			if _, err := os.Stat(path); err == nil {
				return Files{}, fmt.Errorf("%s already exists", path)
			}
		}
	}
	for path, content := range contents {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return Files{}, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return files, nil
}
