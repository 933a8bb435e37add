package storage

import (
	"context"
	"fmt"
	"strings"

	"musiclib/logger"
	"musiclib/model"
	"musiclib/repository"

	"github.com/minio/minio-go/v7"
)

// ObjectLister is the part of *minio.Client the sync needs.
type ObjectLister interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// SyncStats summarizes one bucket sync.
type SyncStats struct {
	Objects   int64
	TotalSize int64
	Skipped   int64
}

func (s SyncStats) String() string {
	return fmt.Sprintf("%d objects, %s, %d skipped", s.Objects, formatSize(s.TotalSize), s.Skipped)
}

// BucketSync mirrors the object listing of a bucket into the filecache so that
// tracks can reference objects by file id.
type BucketSync struct {
	client  ObjectLister
	bucket  string
	storage int64
	files   repository.FileCacheRepository
}

func NewBucketSync(client ObjectLister, bucket string, storage int64, files repository.FileCacheRepository) *BucketSync {
	return &BucketSync{client: client, bucket: bucket, storage: storage, files: files}
}

// Sync upserts a node for every object under prefix, creating the folder nodes
// implied by the object keys.
func (b *BucketSync) Sync(ctx context.Context, prefix string) (SyncStats, error) {
	var stats SyncStats
	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return stats, fmt.Errorf("failed to list bucket %s: %w", b.bucket, obj.Err)
		}
		// zero byte "folder" markers carry no file
		if strings.HasSuffix(obj.Key, "/") {
			stats.Skipped++
			continue
		}

		parent, err := b.files.EnsureFolders(ctx, b.storage, obj.Key)
		if err != nil {
			return stats, err
		}
		mimetype := obj.ContentType
		if mimetype == "" || mimetype == "application/octet-stream" {
			mimetype = model.MimetypeOf(obj.Key)
		}
		_, err = b.files.UpsertNode(ctx, &model.FileNode{
			Storage:  b.storage,
			Path:     obj.Key,
			Parent:   parent,
			Mimetype: mimetype,
			Size:     obj.Size,
			MTime:    obj.LastModified.Unix(),
		})
		if err != nil {
			return stats, err
		}
		stats.Objects++
		stats.TotalSize += obj.Size
	}

	logger.Info("Bucket synced",
		logger.String("bucket", b.bucket),
		logger.String("prefix", prefix),
		logger.Int64("objects", stats.Objects),
		logger.Int64("skipped", stats.Skipped))
	return stats, nil
}

// formatSize renders a byte count with a binary unit.
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
