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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/poiesic/ragsync"
	"github.com/poiesic/ragsync/answer"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/corpus"
	"github.com/poiesic/ragsync/memory"
	"github.com/poiesic/ragsync/prompt"
	"github.com/poiesic/ragsync/reindex"
	"github.com/urfave/cli/v2"
)

// newService builds the service for a command. Tests replace it.
var newService = func(cfg *config.Config) (*ragsync.Service, error) {
	return ragsync.New(cfg)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func openService(c *cli.Context) (*ragsync.Service, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	svc, err := newService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return svc, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func defaultMemoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragsync-memory.json"
	}
	return filepath.Join(home, ".local", "share", "ragsync", "memory.json")
}

func syncCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	if c.Bool("dry-run") {
		plan, err := svc.Plan(ctx)
		if err != nil {
			return fmt.Errorf("planning failed: %w", err)
		}
		fmt.Fprintf(out, "new=%d modified=%d deleted=%d unchanged=%d failed=%d\n",
			len(plan.New), len(plan.Modified), len(plan.Deleted), len(plan.Unchanged), len(plan.Failed))
		for _, fp := range plan.New {
			fmt.Fprintf(out, "  + %s (%s)\n", fp.Path, plan.Categories[fp.Path])
		}
		for _, fp := range plan.Modified {
			fmt.Fprintf(out, "  ~ %s (%s)\n", fp.Path, plan.Categories[fp.Path])
		}
		for _, p := range plan.Deleted {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return nil
	}

	report, err := svc.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printReport(out, report)
	return nil
}

func printReport(w io.Writer, report *corpus.Report) {
	fmt.Fprintln(w, report.String())
	for _, p := range report.FailedPaths {
		fmt.Fprintf(w, "  failed: %s\n", p)
	}
	if report.RebuildErr != nil {
		fmt.Fprintf(w, "  lexical index rebuild failed: %v\n", report.RebuildErr)
	}
}

func watchCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	if c.Bool("initial") {
		report, err := svc.Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		printReport(out, report)
	}
	fmt.Fprintln(c.App.ErrWriter, "Watching for changes, press Ctrl-C to stop")
	err = svc.Watch(ctx, func(report *corpus.Report, err error) {
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "sync failed: %v\n", err)
			return
		}
		printReport(out, report)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func question(c *cli.Context) (string, error) {
	q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if q == "" {
		return "", fmt.Errorf("a question is required")
	}
	return q, nil
}

// loadMemory fills the service memory from the memory file, if it exists.
func loadMemory(svc *ragsync.Service, path string) error {
	if path == "" {
		return nil
	}
	_, err := svc.Memory().ImportFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func saveMemory(svc *ragsync.Service, path string) {
	if path == "" {
		return
	}
	if err := svc.Memory().ExportFile(path); err != nil {
		slog.Warn("failed to save conversation memory", "path", path, "err", err)
	}
}

func askCommand(c *cli.Context) error {
	q, err := question(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	useMemory := !c.Bool("no-memory")
	if useMemory {
		if err := loadMemory(svc, c.String("memory-file")); err != nil {
			return fmt.Errorf("failed to load memory: %w", err)
		}
	}

	events := svc.AskStreamIn(ctx, q, useMemory, c.StringSlice("category"))
	if c.Bool("json") {
		err = printEventsJSON(c.App.Writer, events)
	} else {
		err = printAnswer(c.App.Writer, events)
	}
	if err == nil && useMemory {
		saveMemory(svc, c.String("memory-file"))
	}
	return err
}

func chatCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	useMemory := !c.Bool("no-memory")
	memoryFile := c.String("memory-file")
	if useMemory {
		if err := loadMemory(svc, memoryFile); err != nil {
			return fmt.Errorf("failed to load memory: %w", err)
		}
	}

	out := c.App.Writer
	scanner := bufio.NewScanner(c.App.Reader)
	for {
		fmt.Fprint(c.App.ErrWriter, "> ")
		if !scanner.Scan() {
			break
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			continue
		}
		if err := printAnswer(out, svc.AskStreamIn(ctx, q, useMemory, c.StringSlice("category"))); err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(c.App.ErrWriter, "error: %v\n", err)
		}
	}
	if useMemory {
		saveMemory(svc, memoryFile)
	}
	return scanner.Err()
}

// printAnswer streams the answer text to w followed by its sources.
func printAnswer(w io.Writer, events <-chan answer.Event) error {
	var failure error
	for ev := range events {
		switch ev.Type {
		case answer.EventProcessing, answer.EventGenerationStart:
			slog.Debug(ev.Message, "metadata", ev.Metadata)
		case answer.EventGenerationChunk:
			fmt.Fprint(w, ev.Chunk)
		case answer.EventGenerationEnd:
			fmt.Fprintln(w)
			if len(ev.Sources) > 0 {
				fmt.Fprintln(w, "\nSources:")
				for _, src := range ev.Sources {
					fmt.Fprintf(w, "  - %s (%s)\n", src.Source, src.Category)
				}
			}
			fmt.Fprintf(w, "[%s]\n", ev.Grounding)
		case answer.EventError:
			failure = fmt.Errorf("%s: %w", ev.Message, ev.Err)
		}
	}
	return failure
}

func printEventsJSON(w io.Writer, events <-chan answer.Event) error {
	enc := json.NewEncoder(w)
	var failure error
	for ev := range events {
		if ev.Type == answer.EventError {
			failure = ev.Err
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return failure
}

func readQuestions(c *cli.Context) ([]string, error) {
	questions := slices.Clone(c.Args().Slice())
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if q := strings.TrimSpace(scanner.Text()); q != "" && !strings.HasPrefix(q, "#") {
				questions = append(questions, q)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}
	return questions, nil
}

func batchCommand(c *cli.Context) error {
	questions, err := readQuestions(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	run := svc.AskMany(ctx, questions)
	slog.Info("batch started", "run", run.ID, "questions", run.Len())

	var final answer.Event
	for ev := range run.Events() {
		switch {
		case ev.QuestionIndex == 0:
			final = ev
		case ev.Type == answer.EventComplete:
			fmt.Fprintf(out, "[%d/%d] %s\n  %s\n  (%s)\n", ev.QuestionIndex, ev.TotalQuestions,
				questions[ev.QuestionIndex-1], strings.ReplaceAll(ev.Answer, "\n", "\n  "), ev.Grounding)
		case ev.Type == answer.EventError:
			fmt.Fprintf(out, "[%d/%d] %s\n  error: %s\n", ev.QuestionIndex, ev.TotalQuestions,
				questions[ev.QuestionIndex-1], ev.Message)
		}
	}
	fmt.Fprintf(out, "succeeded=%d failed=%d\n", final.Succeeded, final.Failed)
	if final.Failed > 0 {
		return fmt.Errorf("%d of %d questions failed", final.Failed, final.TotalQuestions)
	}
	return nil
}

func retrieveCommand(c *cli.Context) error {
	q, err := question(c)
	if err != nil {
		return err
	}
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	candidates, err := svc.Retrieve(c.Context, q, c.StringSlice("category"))
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	out := c.App.Writer
	for i, cand := range candidates {
		fmt.Fprintf(out, "%2d. [%s %.3f] %s#%d (%s)\n", i+1, cand.Strategy, cand.Score, cand.Source, cand.Ordinal, cand.Category)
		fmt.Fprintf(out, "    %s\n", preview(cand.Content, 120))
	}
	if len(candidates) == 0 {
		fmt.Fprintln(out, "no candidates")
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func categoriesCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	counts, err := svc.Categories(c.Context)
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(c.App.Writer, "%-20s %d\n", name, counts[name])
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Stats(c.Context)
	if err != nil {
		return err
	}
	out := c.App.Writer
	fmt.Fprintf(out, "Sources:    %d\n", stats.Sources)
	fmt.Fprintf(out, "Chunks:     %d\n", stats.Chunks)
	fmt.Fprintf(out, "Categories: %d\n", len(stats.Categories))
	fmt.Fprintf(out, "Workers:    %d\n", stats.Workers.Capacity)
	if stats.LastSync.IsZero() {
		fmt.Fprintln(out, "Last sync:  never")
	} else {
		fmt.Fprintf(out, "Last sync:  %s\n", stats.LastSync.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	cfg := svc.Config()
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DataDir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", cfg.AI.EmbeddingModel)

	rc := reindex.DefaultConfig()
	rc.BatchSize = c.Int("batch-size")
	rc.MaxRetries = c.Int("max-retries")
	if _, err := svc.Reindex(ctx, c.App.ErrWriter, rc); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func newMemory(c *cli.Context) (*memory.Manager, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return memory.New(memory.WithBudget(cfg.Memory.Budget), memory.WithMinRounds(cfg.Memory.MinRounds))
}

func openMemory(c *cli.Context) (*memory.Manager, error) {
	m, err := newMemory(c)
	if err != nil {
		return nil, err
	}
	if _, err := m.ImportFile(c.String("memory-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return m, nil
}

func memoryExportCommand(c *cli.Context) error {
	dest := c.Args().First()
	if dest == "" {
		return fmt.Errorf("a destination file is required")
	}
	m, err := openMemory(c)
	if err != nil {
		return err
	}
	if err := m.ExportFile(dest); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "exported %d turns to %s\n", m.Len(), dest)
	return nil
}

func memoryImportCommand(c *cli.Context) error {
	src := c.Args().First()
	if src == "" {
		return fmt.Errorf("a source file is required")
	}
	m, err := newMemory(c)
	if err != nil {
		return err
	}
	n, err := m.ImportFile(src)
	if err != nil {
		return err
	}
	if err := m.ExportFile(c.String("memory-file")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "imported %d turns, kept %d\n", n, m.Len())
	return nil
}

func memoryStatsCommand(c *cli.Context) error {
	m, err := openMemory(c)
	if err != nil {
		return err
	}
	stats := m.Stats()
	out := c.App.Writer
	fmt.Fprintf(out, "Turns:      %d\n", stats.Turns)
	fmt.Fprintf(out, "Characters: %d / %d (%.1f%%)\n", stats.TotalChars, stats.Budget, stats.UsagePercent)
	fmt.Fprintf(out, "Min rounds: %d\n", stats.MinRounds)
	return nil
}

func memorySearchCommand(c *cli.Context) error {
	keyword := c.Args().First()
	if keyword == "" {
		return fmt.Errorf("a keyword is required")
	}
	m, err := openMemory(c)
	if err != nil {
		return err
	}
	for _, match := range m.Search(keyword, c.Int("limit")) {
		fmt.Fprintf(c.App.Writer, "#%d Q: %s\n   A: %s\n", match.Position, match.Turn.Question, preview(match.Turn.Answer, 120))
	}
	return nil
}

func promptLibrary(c *cli.Context) (*prompt.Library, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.Answer.PromptsDir == "" {
		return prompt.Default(), nil
	}
	return prompt.NewLibrary(cfg.Answer.PromptsDir, nil)
}

func promptsListCommand(c *cli.Context) error {
	library, err := promptLibrary(c)
	if err != nil {
		return err
	}
	for _, name := range library.Names() {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func promptsShowCommand(c *cli.Context) error {
	library, err := promptLibrary(c)
	if err != nil {
		return err
	}
	text, err := library.Text(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, text)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
