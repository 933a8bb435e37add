package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"musiclib/model"
	"musiclib/repository"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	objects []minio.ObjectInfo
	opts    minio.ListObjectsOptions
}

func (f *fakeLister) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.opts = opts
	ch := make(chan minio.ObjectInfo, len(f.objects))
	for _, o := range f.objects {
		ch <- o
	}
	close(ch)
	return ch
}

type recordingFiles struct {
	repository.FileCacheRepository
	nodes   []model.FileNode
	folders []string
}

func (r *recordingFiles) EnsureFolders(_ context.Context, _ int64, p string) (int64, error) {
	r.folders = append(r.folders, p)
	return 5, nil
}

func (r *recordingFiles) UpsertNode(_ context.Context, node *model.FileNode) (int64, error) {
	r.nodes = append(r.nodes, *node)
	return int64(len(r.nodes)), nil
}

func TestBucketSync(t *testing.T) {
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	lister := &fakeLister{objects: []minio.ObjectInfo{
		{Key: "rock/", Size: 0},
		{Key: "rock/a.flac", Size: 2048, LastModified: modified},
		{Key: "rock/b.mp3", Size: 1024, ContentType: "audio/mpeg", LastModified: modified},
	}}
	files := &recordingFiles{}

	stats, err := NewBucketSync(lister, "music", 3, files).Sync(context.Background(), "rock/")
	require.NoError(t, err)

	assert.True(t, lister.opts.Recursive)
	assert.Equal(t, "rock/", lister.opts.Prefix)
	assert.Equal(t, SyncStats{Objects: 2, TotalSize: 3072, Skipped: 1}, stats)
	assert.Equal(t, []string{"rock/a.flac", "rock/b.mp3"}, files.folders)

	require.Len(t, files.nodes, 2)
	assert.Equal(t, model.FileNode{
		Storage:  3,
		Path:     "rock/a.flac",
		Parent:   5,
		Mimetype: "audio/flac",
		Size:     2048,
		MTime:    modified.Unix(),
	}, files.nodes[0])
	assert.Equal(t, "audio/mpeg", files.nodes[1].Mimetype)
}

func TestBucketSyncListError(t *testing.T) {
	lister := &fakeLister{objects: []minio.ObjectInfo{{Err: errors.New("access denied")}}}

	_, err := NewBucketSync(lister, "music", 3, &recordingFiles{}).Sync(context.Background(), "")
	assert.ErrorContains(t, err, "access denied")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "3.0 MB", formatSize(3*1024*1024))
}

func TestSyncStatsString(t *testing.T) {
	assert.Equal(t, "2 objects, 3.0 KB, 1 skipped", SyncStats{Objects: 2, TotalSize: 3072, Skipped: 1}.String())
}
