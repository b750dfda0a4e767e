package main

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"grader/pkg/pipeline"
)

// sheetForEvent maps a created or written file to the sheet it concerns:
// the image itself or the image a .confirmed file belongs to.
func sheetForEvent(name string) (string, bool) {
	name = filepath.Base(name)
	if img, ok := strings.CutSuffix(name, pipeline.ConfirmedPath("")); ok {
		return img, isSupportedExt(img)
	}
	return name, isSupportedExt(name)
}

// watchDirectory feeds new sheets and confirmations to a single worker
// once their files stop changing. It blocks until ctx is done.
func watchDirectory(ctx context.Context, b *batch) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(b.dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", b.dir)

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				if name, ok := sheetForEvent(ev.Name); ok {
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	for name := range fileCh {
		if !exists(filepath.Join(b.dir, name)) {
			continue
		}
		b.processSheet(ctx, name)
	}
	return ctx.Err()
}
