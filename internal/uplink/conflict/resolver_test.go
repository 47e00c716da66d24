package conflict

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyceum-cloud/uplink/internal/uplink/storage"
)

type fakeStore struct {
	objects []storage.ObjectInfo
	listErr error
	headErr error
}

func (f *fakeStore) List(ctx context.Context, prefix string, maxFiles int) ([]storage.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.objects, nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.headErr != nil {
		return false, f.headErr
	}
	for _, obj := range f.objects {
		if obj.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return nil
}

func (f *fakeStore) StartChunked(ctx context.Context, key string, size int64, chunkSize int64) (storage.ChunkedUpload, error) {
	return nil, errors.New("not implemented")
}

func TestCheck(t *testing.T) {
	mod := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{objects: []storage.ObjectInfo{
		{Key: "docs/report.csv", Size: 120, LastModified: mod},
		{Key: "docs/archive/old.csv", Size: 5},
		{Key: "docs/photo.png", Size: 900, LastModified: mod},
	}}
	r := NewResolver(store, nil)

	res := r.Check(context.Background(), []string{"report.csv", "old.csv", "new.txt"}, "docs/")

	assert.False(t, res.Degraded)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "report.csv", res.Conflicts[0].Name)
	assert.Equal(t, int64(120), res.Conflicts[0].Size)
	assert.Equal(t, mod.UnixMilli(), res.Conflicts[0].LastModified)
}

func TestCheckFolderConflict(t *testing.T) {
	store := &fakeStore{objects: []storage.ObjectInfo{
		{Key: "docs/archive/a.txt"},
		{Key: "docs/archive/b.txt"},
	}}
	r := NewResolver(store, nil)

	res := r.Check(context.Background(), []string{"archive"}, "docs/")

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "archive", res.Conflicts[0].Name)
	assert.True(t, res.Conflicts[0].IsFolder)
}

func TestCheckDegraded(t *testing.T) {
	store := &fakeStore{listErr: errors.New("listing unavailable")}
	r := NewResolver(store, nil)

	res := r.Check(context.Background(), []string{"report.csv"}, "docs/")

	assert.True(t, res.Degraded)
	assert.Empty(t, res.Conflicts)
}

func TestUniqueName(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		in       string
		want     string
	}{
		{"first free", []string{"docs/report.csv"}, "report.csv", "report (1).csv"},
		{"skips taken", []string{"docs/report.csv", "docs/report (1).csv", "docs/report (2).csv"}, "report.csv", "report (3).csv"},
		{"no extension", []string{"docs/Makefile"}, "Makefile", "Makefile (1)"},
		{"dotfile", []string{"docs/.env"}, ".env", ".env (1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs := make([]storage.ObjectInfo, 0, len(tt.existing))
			for _, k := range tt.existing {
				objs = append(objs, storage.ObjectInfo{Key: k})
			}
			r := NewResolver(&fakeStore{objects: objs}, nil)

			got, err := r.UniqueName(context.Background(), tt.in, "docs/")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUniqueNameProbeFailure(t *testing.T) {
	r := NewResolver(&fakeStore{headErr: errors.New("head unavailable")}, nil)

	got, err := r.UniqueName(context.Background(), "report.csv", "docs/")
	require.NoError(t, err)
	assert.Equal(t, "report (1).csv", got)
}
