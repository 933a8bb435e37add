package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"musiclib/logger"
	"musiclib/model"
	"musiclib/repository"

	"github.com/fsnotify/fsnotify"
)

// Change reports library tracks touched by a file system event. The tracks may
// belong to any user.
type Change struct {
	Path    string
	Removed bool
	Tracks  []model.Track
}

// ChangeFunc receives every change that touches at least one track.
type ChangeFunc func(ctx context.Context, change Change)

// Watcher mirrors a music directory into the filecache and reports which
// tracks each file event affects.
type Watcher struct {
	root     string
	storage  int64
	files    repository.FileCacheRepository
	tracks   repository.TrackRepository
	onChange ChangeFunc
}

// New creates a watcher for root. storage is the numeric filecache storage the
// directory is registered under.
func New(root string, storage int64, files repository.FileCacheRepository,
	tracks repository.TrackRepository, onChange ChangeFunc) *Watcher {
	return &Watcher{
		root:     filepath.Clean(root),
		storage:  storage,
		files:    files,
		tracks:   tracks,
		onChange: onChange,
	}
}

// Run watches the directory tree until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.root); err != nil {
		return err
	}
	logger.Info("Watching music directory",
		logger.String("root", w.root),
		logger.Int64("storage", w.storage))

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(fw, event.Name); err != nil {
						logger.Warn("Failed to watch new directory", logger.String("path", event.Name), logger.ErrorField(err))
					}
				}
			}
			if err := w.HandleEvent(ctx, event); err != nil {
				logger.Error("Failed to handle file event",
					logger.String("path", event.Name),
					logger.String("op", event.Op.String()),
					logger.ErrorField(err))
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", logger.ErrorField(err))

		case <-ctx.Done():
			return nil
		}
	}
}

func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// HandleEvent updates the filecache for one event and reports the tracks of
// the affected files.
func (w *Watcher) HandleEvent(ctx context.Context, event fsnotify.Event) error {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)

	var fileIDs []int64
	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	switch {
	case removed:
		// the node and, for a directory, everything below it
		fileIDs, err = w.files.FindFileIDsUnder(ctx, w.storage, rel)
		if err != nil {
			return err
		}
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		id, err := w.syncNode(ctx, event.Name, rel)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		fileIDs = []int64{id}
	default:
		return nil
	}

	tracks, err := w.tracks.FindAllByFileIDsSystemWide(ctx, fileIDs)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return nil
	}

	logger.Info("Library files changed",
		logger.String("path", rel),
		logger.Bool("removed", removed),
		logger.Int("tracks", len(tracks)))
	if w.onChange != nil {
		w.onChange(ctx, Change{Path: rel, Removed: removed, Tracks: tracks})
	}
	return nil
}

// syncNode upserts the filecache node of a created or modified path.
func (w *Watcher) syncNode(ctx context.Context, absPath, rel string) (int64, error) {
	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		// gone again before we got to it; the remove event follows
		return w.files.FindFileIDByPath(ctx, w.storage, rel)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", absPath, err)
	}

	parent, err := w.files.EnsureFolders(ctx, w.storage, rel)
	if err != nil {
		return 0, err
	}
	node := &model.FileNode{
		Storage: w.storage,
		Path:    rel,
		Parent:  parent,
		Size:    info.Size(),
		MTime:   info.ModTime().Unix(),
	}
	if info.IsDir() {
		node.Mimetype = model.FolderMimetype
		node.Size = 0
	} else {
		node.Mimetype = model.MimetypeOf(rel)
	}
	return w.files.UpsertNode(ctx, node)
}
