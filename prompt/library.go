// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/ragsync/core"
	"github.com/tmc/langchaingo/prompts"
)

const fileExt = ".tmpl"

var (
	// ErrUnknownTemplate is returned for a template name that is not defined.
	ErrUnknownTemplate = errors.New("unknown prompt template")

	// ErrInvalidTemplate is returned when a template does not parse or
	// references values it is not rendered with.
	ErrInvalidTemplate = errors.New("invalid prompt template")

	// ErrNoPromptsDir is returned by Save when the library has no directory.
	ErrNoPromptsDir = errors.New("no prompts directory configured")
)

// Library holds the active templates. Overrides are read from disk once and
// cached; Reload and Save refresh a single template at runtime.
// A Library is safe for concurrent use.
type Library struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]prompts.PromptTemplate
}

// Default returns a library holding only the built-in templates.
func Default() *Library {
	l := &Library{
		logger:    slog.Default().With("component", "prompts"),
		templates: make(map[string]prompts.PromptTemplate, len(defaults)),
	}
	for name, text := range defaults {
		l.templates[name] = prompts.NewPromptTemplate(text, inputVariables[name])
	}
	return l
}

// NewLibrary loads the built-in templates and applies any overrides found in
// dir. An empty dir means built-ins only. An override that is present but
// invalid is a configuration failure.
func NewLibrary(dir string, logger *slog.Logger) (*Library, error) {
	l := Default()
	if logger != nil {
		l.logger = logger.With("component", "prompts")
	}
	l.dir = dir
	if dir == "" {
		return l, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: prompts directory: %w", core.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: prompts directory %s is not a directory", core.ErrConfiguration, dir)
	}
	for name := range defaults {
		if err := l.Reload(name); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
	}
	return l, nil
}

// Names returns the template names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Sorted(maps.Keys(l.templates))
}

// Text returns the source of the named template.
func (l *Library) Text(name string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tmpl, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return tmpl.Template, nil
}

// Render formats the named template with values.
func (l *Library) Render(name string, values map[string]any) (string, error) {
	l.mu.RLock()
	tmpl, ok := l.templates[name]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	text, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(text), nil
}

// Reload re-reads the override for name from the prompts directory. When no
// override file exists the built-in template is restored.
func (l *Library) Reload(name string) error {
	builtin, ok := defaults[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	text := builtin
	if l.dir != "" {
		path := filepath.Join(l.dir, name+fileExt)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			text = strings.TrimSpace(string(data))
			l.logger.Info("loaded prompt override", "name", name, "path", path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("read prompt %s: %w", path, err)
		}
	}
	return l.set(name, text)
}

// Save validates content, writes it as the override for name and makes it
// the active template.
func (l *Library) Save(name, content string) error {
	if _, ok := defaults[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if l.dir == "" {
		return ErrNoPromptsDir
	}
	content = strings.TrimSpace(content)
	if err := validate(name, content); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create prompts directory: %w", err)
	}
	path := filepath.Join(l.dir, name+fileExt)
	if err := os.WriteFile(path, []byte(content+"\n"), 0644); err != nil {
		return fmt.Errorf("write prompt %s: %w", path, err)
	}
	return l.set(name, content)
}

func (l *Library) set(name, text string) error {
	if err := validate(name, text); err != nil {
		return err
	}
	l.mu.Lock()
	l.templates[name] = prompts.NewPromptTemplate(text, inputVariables[name])
	l.mu.Unlock()
	return nil
}

func validate(name, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %s: empty template", ErrInvalidTemplate, name)
	}
	if err := prompts.CheckValidTemplate(text, prompts.TemplateFormatGoTemplate, inputVariables[name]); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, name, err)
	}
	return nil
}
