package badger

import (
	"fmt"

	"github.com/poiesic/ragsync/core"
)

const (
	chunkPrefix  = "chunk:"
	sourcePrefix = "src:"
)

func makeChunkKey(id string) []byte {
	return []byte(chunkPrefix + id)
}

// makeSourceChunksPrefix returns the prefix shared by every chunk key of path.
// Chunk ids start with the source hash, so a source's chunks are contiguous.
func makeSourceChunksPrefix(path string) []byte {
	return []byte(chunkPrefix + core.SourceHash(path) + "_")
}

func makeSourceKey(path string) []byte {
	return []byte(sourcePrefix + path)
}

func makeCheckpointKey(process string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", process))
}
