package models

// Chunk is one fixed-size byte range of a large source file, persisted under
// (TaskID, Index) so an interrupted transfer can resume without re-reading
// the original file.
type Chunk struct {
	TaskID string
	Index  int
	Data   []byte
}

// ChunkCountFor returns how many chunks of chunkSize cover size bytes.
func ChunkCountFor(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return int(n)
}
