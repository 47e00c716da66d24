package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskKey(t *testing.T) {
	task := &UploadTask{FileName: "report.csv", DestPrefix: "docs/"}
	assert.Equal(t, "docs/report.csv", task.Key())

	task.DestPrefix = ""
	assert.Equal(t, "report.csv", task.Key())
}

func TestTaskActive(t *testing.T) {
	active := []TaskStatus{StatusPending, StatusUploading, StatusPaused}
	for _, st := range active {
		assert.True(t, (&UploadTask{Status: st}).Active(), string(st))
	}
	for _, st := range []TaskStatus{StatusCompleted, StatusFailed} {
		assert.False(t, (&UploadTask{Status: st}).Active(), string(st))
	}
}

func TestChunkCountFor(t *testing.T) {
	tests := []struct {
		size, chunkSize int64
		want            int
	}{
		{0, 4, 0},
		{10, 0, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{12, 4, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCountFor(tt.size, tt.chunkSize),
			"size=%d chunk=%d", tt.size, tt.chunkSize)
	}
}
