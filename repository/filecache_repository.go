package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"musiclib/logger"
	"musiclib/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileCacheRepository maps storage paths to the filecache nodes tracks
// reference through file_id.
type FileCacheRepository interface {
	EnsureStorage(ctx context.Context, storageID string) (int64, error)
	FindFileIDByPath(ctx context.Context, storage int64, filePath string) (int64, error)
	FindFileIDsUnder(ctx context.Context, storage int64, dir string) ([]int64, error)
	UpsertNode(ctx context.Context, node *model.FileNode) (int64, error)
	EnsureFolders(ctx context.Context, storage int64, filePath string) (int64, error)
}

type fileCacheRepository struct {
	db     *gorm.DB
	prefix string
}

// NewFileCacheRepository creates a filecache repository on tables carrying tablePrefix.
func NewFileCacheRepository(db *gorm.DB, tablePrefix string) FileCacheRepository {
	return &fileCacheRepository{db: db, prefix: tablePrefix}
}

func (r *fileCacheRepository) table(name string) string {
	return r.prefix + name
}

// EnsureStorage returns the numeric id of the storage, registering it on first use.
func (r *fileCacheRepository) EnsureStorage(ctx context.Context, storageID string) (int64, error) {
	var storage model.Storage
	err := r.db.WithContext(ctx).Table(r.table("storages")).
		Where("id = ?", storageID).Take(&storage).Error
	if err == nil {
		return storage.NumericID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("failed to get storage %s: %w", storageID, err)
	}

	storage = model.Storage{ID: storageID}
	if err := r.db.WithContext(ctx).Table(r.table("storages")).Create(&storage).Error; err != nil {
		return 0, fmt.Errorf("failed to create storage %s: %w", storageID, err)
	}
	logger.Info("Storage registered",
		logger.String("storage", storageID),
		logger.Int64("numericId", storage.NumericID))
	return storage.NumericID, nil
}

// FindFileIDByPath returns ErrNotFound for paths the filecache does not know.
func (r *fileCacheRepository) FindFileIDByPath(ctx context.Context, storage int64, filePath string) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Table(r.table("filecache")).
		Where("storage = ? AND path_hash = ?", storage, model.HashPath(cleanPath(filePath))).
		Pluck("fileid", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find file %s: %w", filePath, err)
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

// FindFileIDsUnder returns the node of dir and every node below it.
func (r *fileCacheRepository) FindFileIDsUnder(ctx context.Context, storage int64, dir string) ([]int64, error) {
	dir = cleanPath(dir)
	ids := make([]int64, 0)
	err := r.db.WithContext(ctx).Table(r.table("filecache")).
		Where("storage = ? AND (path = ? OR path LIKE ?)", storage, dir, escapeLike(dir)+"/%").
		Pluck("fileid", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list files under %s: %w", dir, err)
	}
	return ids, nil
}

// UpsertNode inserts the node or refreshes the existing node with the same
// storage and path, and returns its file id.
func (r *fileCacheRepository) UpsertNode(ctx context.Context, node *model.FileNode) (int64, error) {
	node.Path = cleanPath(node.Path)
	node.PathHash = model.HashPath(node.Path)
	if node.Name == "" {
		node.Name = path.Base(node.Path)
	}

	err := r.db.WithContext(ctx).Table(r.table("filecache")).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage"}, {Name: "path_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"parent", "name", "mimetype", "size", "mtime"}),
		}).
		Create(node).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert file %s: %w", node.Path, err)
	}

	// an update leaves the generated key unset on MySQL
	id, err := r.FindFileIDByPath(ctx, node.Storage, node.Path)
	if err != nil {
		return 0, err
	}
	node.FileID = id
	return id, nil
}

// EnsureFolders creates the folder nodes leading to filePath and returns the id
// of its immediate parent. Top level entries have parent 0.
func (r *fileCacheRepository) EnsureFolders(ctx context.Context, storage int64, filePath string) (int64, error) {
	dir := path.Dir(cleanPath(filePath))
	if dir == "." || dir == "" {
		return 0, nil
	}

	var parent int64
	var current string
	for _, part := range strings.Split(dir, "/") {
		current = path.Join(current, part)
		id, err := r.FindFileIDByPath(ctx, storage, current)
		if errors.Is(err, ErrNotFound) {
			id, err = r.UpsertNode(ctx, &model.FileNode{
				Storage:  storage,
				Path:     current,
				Parent:   parent,
				Name:     part,
				Mimetype: model.FolderMimetype,
			})
		}
		if err != nil {
			return 0, err
		}
		parent = id
	}
	return parent, nil
}

// cleanPath normalizes to the slash separated, root relative form the
// filecache stores.
func cleanPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}
