package badger

// NewMemoryRepositories opens an in-memory backend with chunk and checkpoint
// repositories on top of it. Closing the backend releases everything.
func NewMemoryRepositories() (*ChunkRepository, *CheckpointRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}
	return NewChunkRepository(backend), NewCheckpointRepository(backend), backend, nil
}
