// Package watch monitors a conversation transcript corpus for changes and
// triggers incremental re-ingestion, the same debounced fsnotify loop the
// teacher's internal/watcher uses for a vault.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sgx-labs/convsearch/internal/ingest"
)

// Watch watches corpusPath for transcript changes and incrementally
// re-ingests them through pipeline. It blocks until ctx is done or an
// unrecoverable watcher error occurs.
func Watch(ctx context.Context, pipeline *ingest.Pipeline, corpusPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dirs := walkDirs(corpusPath)
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			fmt.Fprintf(os.Stderr, "  [WARN] could not watch %s: %v\n", d, err)
		}
	}

	fmt.Fprintf(os.Stderr, "Watching %d director(ies) in %s\n", len(dirs), corpusPath)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop.\n\n")

	var (
		mu      sync.Mutex
		pending = make(map[string]bool)
		timer   *time.Timer
	)

	const debounceDelay = 2 * time.Second

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		if len(paths) == 0 {
			return
		}

		fmt.Fprintf(os.Stderr, "  Re-ingesting %d changed file(s)...\n", len(paths))
		for _, p := range paths {
			if _, err := pipeline.IngestFile(ctx, p, false); err != nil {
				fmt.Fprintf(os.Stderr, "  [ERROR] %s: %v\n", p, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "  Ingested: %s\n", p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}

			if !ingest.IsTranscriptPath(event.Name) {
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						w.Add(event.Name)
					}
				}
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				mu.Lock()
				pending[event.Name] = true
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceDelay, flush)
				mu.Unlock()
			}

			if event.Has(fsnotify.Remove) {
				removeFromIndex(ctx, pipeline, event.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "  [WARN] watch error: %v\n", err)
		}
	}
}

func removeFromIndex(ctx context.Context, pipeline *ingest.Pipeline, path string) {
	conv, ok, err := pipeline.Conversations.FindBySourcePath(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  [ERROR] looking up %s: %v\n", path, err)
		return
	}
	if !ok {
		return
	}
	if err := pipeline.Conversations.DeleteConversation(ctx, conv.ID); err != nil {
		fmt.Fprintf(os.Stderr, "  [ERROR] removing %s from index: %v\n", path, err)
		return
	}
	fmt.Fprintf(os.Stderr, "  Removed from index: %s\n", path)
}

func walkDirs(root string) []string {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}
