package vault

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aarnphm/morph/internal/checksum"
	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/storage"
)

// EventCallback is called after a watcher-driven tree change.
// kind is one of "created", "updated", "deleted", "rescanned".
type EventCallback func(kind string, fileID string)

// Watch starts an fsnotify watcher on a vault root and keeps the durable
// tree, file records, and handle grants in sync until ctx is cancelled.
// It calls cb (if non-nil) after each successful mutation.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced full rescan that catches anything the
// per-event handling missed.
func Watch(ctx context.Context, svc *Service, vaultID string, logger *slog.Logger, cb EventCallback) error {
	v, err := svc.db.GetVault(vaultID)
	if err != nil {
		return err
	}
	ignore := storage.NewIgnoreList(v.Settings.IgnorePatterns)
	root := v.RootPath
	fsys, err := storage.NewFS(root, ignore)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root, root, ignore); err != nil {
		return err
	}

	logger.Info("watcher: started",
		slog.String("vault_id", vaultID),
		slog.String("root", root))

	// rescanTimer debounces full rescans triggered by renames and new
	// directories.
	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time

	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(200 * time.Millisecond)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			logger.Info("watcher: stopped", slog.String("vault_id", vaultID))
			return nil

		case <-rescanCh:
			if _, err := svc.Rescan(vaultID); err != nil {
				logger.Warn("watcher: rescan failed", slog.String("error", err.Error()))
				continue
			}
			if cb != nil {
				cb("rescanned", "")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if rel == ConfigDirName || strings.HasPrefix(rel, ConfigDirName+"/") || ignore.Match(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, root, absPath, ignore); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					}
					scheduleRescan()
					continue
				}
			}

			fileID := NodeID(vaultID, rel, false)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				if err := trackFile(svc, fsys, vaultID, rel); err != nil {
					logger.Warn("watcher: track failed",
						slog.String("path", rel),
						slog.String("error", err.Error()))
					continue
				}
				if kind == "created" {
					scheduleRescan() // fold the new node into the tree
				}
				logger.Debug("watcher: tracked", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, fileID)
				}

			case ev.Op&fsnotify.Remove != 0:
				untrackFile(svc, vaultID, fileID, logger)
				scheduleRescan()
				if cb != nil {
					cb("deleted", fileID)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only; the new path
				// arrives as a separate Create event. Drop the old entry
				// now and let the debounced rescan settle the rest.
				untrackFile(svc, vaultID, fileID, logger)
				scheduleRescan()
				if cb != nil {
					cb("deleted", fileID)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// trackFile refreshes a file's record and handle after a create or write.
// All disk access goes through the vault's storage provider so traversal
// checks and ignore handling stay in one place.
func trackFile(svc *Service, fsys *storage.FS, vaultID, rel string) error {
	abs, err := fsys.Abs(rel)
	if err != nil {
		return err
	}
	data, err := fsys.Read(rel)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	name := filepath.Base(rel)
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	id := NodeID(vaultID, rel, false)

	if err := svc.db.UpsertFile(models.FileRecord{
		ID:           id,
		VaultID:      vaultID,
		Name:         strings.TrimSuffix(name, filepath.Ext(name)),
		Extension:    ext,
		Checksum:     checksum.Sum(data),
		LastModified: info.ModTime(),
	}); err != nil {
		return err
	}
	return svc.handles.Put(vaultID, id, abs)
}

func untrackFile(svc *Service, vaultID, fileID string, logger *slog.Logger) {
	if err := svc.handles.Delete(vaultID, fileID); err != nil {
		logger.Warn("watcher: handle delete failed",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}
}

// addDirsRecursive adds dir and all its non-ignored subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root, dir string, ignore *storage.IgnoreList) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && (rel == ConfigDirName || ignore.Match(rel)) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
