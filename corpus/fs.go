package corpus

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem is the read-only view of the corpus sources.
type FileSystem interface {
	// Walk walks the tree rooted at root like filepath.WalkDir.
	Walk(root string, fn fs.WalkDirFunc) error
	// Stat returns file info for name.
	Stat(name string) (fs.FileInfo, error)
	// ReadFile returns the full content of name.
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem reads from the local disk.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

func (OSFileSystem) Walk(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }
func (OSFileSystem) Stat(name string) (fs.FileInfo, error)     { return os.Stat(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)      { return os.ReadFile(name) }
