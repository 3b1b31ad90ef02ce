package security

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ariebrainware/campus-gateway/util"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchSignatures loads the rules file at path into d and reloads it whenever the file changes,
// until ctx is done. A reload that fails keeps the previous set. The initial load must succeed.
// The parent directory is watched so editors that replace the file by rename are picked up.
func WatchSignatures(ctx context.Context, path string, d *Detector) error {
	sigs, err := LoadSignatures(path)
	if err != nil {
		return err
	}
	d.SetSignatures(sigs)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return fmt.Errorf("failed to watch path %s: %w", absPath, err)
	}

	go func() {
		defer fsWatcher.Close()
		log := util.Logger().With(zap.String("path", absPath))
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				sigs, err := LoadSignatures(absPath)
				if err != nil {
					log.Warn("keeping previous signatures", zap.Error(err))
					continue
				}
				d.SetSignatures(sigs)
				log.Info("signatures reloaded",
					zap.Int("sql_injection", len(sigs.SQLInjection)),
					zap.Int("xss", len(sigs.XSS)),
					zap.Int("path_traversal", len(sigs.PathTraversal)))
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				log.Error("signature watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
