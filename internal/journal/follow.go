package journal

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	yamlutil "github.com/msageha/selfcal/internal/yaml"
)

// Follow calls fn for every entry already in the journal at path and then
// for each entry persisted afterwards, until ctx is done. The directory is
// watched rather than the file because Persist replaces the file by rename.
func Follow(ctx context.Context, path string, fn func(Entry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	seen := 0
	emit := func() {
		var doc document
		if err := yamlutil.Load(path, yamlutil.FileTypeRunJournal, &doc); err != nil {
			return
		}
		if len(doc.Entries) < seen {
			// Journal was replaced by a new run.
			seen = 0
		}
		for _, e := range doc.Entries[seen:] {
			fn(e)
		}
		seen = len(doc.Entries)
	}
	emit()

	name := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				emit()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch journal: %w", err)
		}
	}
}
