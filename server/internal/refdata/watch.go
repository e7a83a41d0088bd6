package refdata

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the reference-data directory and reloads the tables each
// time a file is written or created. It runs until ctx is cancelled and is a
// no-op for the built-in tables.
//
// If a reload fails (e.g., a malformed instrument file), the error is logged
// and the previous tables remain active.
func (s *Set) Watch(ctx context.Context) error {
	if s.dir == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	slog.Info("refdata: watching for changes", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so catch Create alongside Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := s.Reload(); err != nil {
				slog.Error("refdata: reload failed, keeping previous tables",
					"dir", s.dir, "err", err)
				continue
			}
			slog.Info("refdata: reloaded", "dir", s.dir, "instruments", len(s.Instruments()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("refdata: watcher error", "err", err)
		}
	}
}
