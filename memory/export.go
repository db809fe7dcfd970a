package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/ragsync/core"
)

// exportVersion is the version of the export document layout.
const exportVersion = 1

// ErrUnsupportedExport is returned by Import for documents of another version.
var ErrUnsupportedExport = errors.New("unsupported memory export")

type exportDocument struct {
	Version    int                     `json:"version"`
	ID         string                  `json:"id"`
	ExportedAt time.Time               `json:"exported_at"`
	Turns      []core.ConversationTurn `json:"turns"`
}

// Export writes every turn to w as a JSON document.
func (m *Manager) Export(w io.Writer) error {
	doc := exportDocument{
		Version:    exportVersion,
		ID:         uuid.NewString(),
		ExportedAt: time.Now().UTC(),
		Turns:      m.Recent(0),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode memory export: %w", err)
	}
	return nil
}

// Import replaces the buffer with the turns read from r and returns how many
// were kept after applying the budget. On error the buffer is unchanged.
func (m *Manager) Import(r io.Reader) (int, error) {
	var doc exportDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode memory export: %w", err)
	}
	if doc.Version != exportVersion {
		return 0, fmt.Errorf("%w: version %d", ErrUnsupportedExport, doc.Version)
	}
	for i := range doc.Turns {
		if err := core.ValidateTurn(&doc.Turns[i]); err != nil {
			return 0, fmt.Errorf("turn %d: %w", i, err)
		}
	}
	kept := m.replace(doc.Turns)
	m.logger.Info("imported conversation memory", "id", doc.ID, "turns", len(doc.Turns), "kept", kept)
	return kept, nil
}

// ExportFile writes the buffer to path, creating parent directories.
func (m *Manager) ExportFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := m.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ImportFile replaces the buffer with the turns stored at path.
func (m *Manager) ImportFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()
	return m.Import(f)
}
