package storage

import (
	"testing"
	"time"

	"github.com/poiesic/ragsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSerialization(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	chunk := &core.Chunk{
		ID:       core.ChunkID("/docs/a.txt", 2),
		Content:  "Alpha Beta",
		Source:   "/docs/a.txt",
		Category: "general",
		Ordinal:  2,
		Fingerprint: core.FileFingerprint{
			Path:    "/docs/a.txt",
			ModTime: now,
			Size:    10,
			Hash:    core.HashContent([]byte("Alpha Beta")),
		},
		Metadata: map[string]string{"description": "test docs"},
		Vector:   []float32{0.25, -0.5, 1},
	}

	data, err := MarshalChunk(chunk)
	require.NoError(t, err)

	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk.ID, decoded.ID)
	assert.Equal(t, chunk.Vector, decoded.Vector)
	assert.True(t, chunk.Fingerprint.ModTime.Equal(decoded.Fingerprint.ModTime))
	assert.Equal(t, chunk.Metadata, decoded.Metadata)
}

func TestUnmarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"garbage", []byte{0xFF, 0x01}},
		{"truncated json", []byte(`{"id":"abc`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalChunk(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)

			_, err = UnmarshalSourceRecord(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)

			_, err = UnmarshalCheckpoint(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}
