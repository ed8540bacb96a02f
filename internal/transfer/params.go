package transfer

const (
	// DefaultChunkSize is the nominal chunk size used when none is configured.
	DefaultChunkSize = 64 * 1024
	// MaxChunkSize caps the configured chunk size.
	MaxChunkSize = 16 * 1024 * 1024
)

// NormalizeChunkSize applies the default and clamps size to [1, MaxChunkSize].
func NormalizeChunkSize(size int) int {
	if size <= 0 {
		return DefaultChunkSize
	}
	if size > MaxChunkSize {
		return MaxChunkSize
	}
	return size
}

// ChunkCount returns how many chunks a file of size bytes is split into.
func ChunkCount(size uint64, chunkSize int) uint64 {
	c := uint64(NormalizeChunkSize(chunkSize))
	return (size + c - 1) / c
}
