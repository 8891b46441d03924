package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ingestDebounce coalesces the create+write bursts atomic tmp+rename
// producers generate for one file.
const ingestDebounce = 100 * time.Millisecond

// HookEvent is an externally produced event dropped into the ingest
// directory as a JSON file (agent lifecycle hooks write these).
type HookEvent struct {
	Session string          `json:"session"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ingester watches a drop directory for hook event files and republishes
// them through a Publisher. Files are deleted after successful ingestion.
type Ingester struct {
	dir     string
	pub     Publisher
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewIngester creates an ingester over dir, creating it if needed.
func NewIngester(dir string, pub Publisher) (*Ingester, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ingest dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Ingester{dir: dir, pub: pub, watcher: watcher}, nil
}

// Start begins watching. Blocks until Stop or a watcher failure; run it in
// a goroutine.
func (in *Ingester) Start() error {
	if err := in.watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch %s: %w", in.dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel

	// Pick up files that predate the watch.
	in.sweep()

	pending := make(map[string]bool)
	var timer *time.Timer
	timerC := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.AfterFunc(ingestDebounce, func() {
					select {
					case timerC <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(ingestDebounce)
			}

		case <-timerC:
			timer = nil
			for path := range pending {
				delete(pending, path)
				in.ingestFile(path)
			}

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			eventsLog.Warn("ingest_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// sweep ingests any files already present in the drop directory.
func (in *Ingester) sweep() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		in.ingestFile(filepath.Join(in.dir, entry.Name()))
	}
}

func (in *Ingester) ingestFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Producer may still be renaming; the next event retries.
		return
	}
	var hook HookEvent
	if err := json.Unmarshal(data, &hook); err != nil {
		eventsLog.Warn("ingest_malformed_event",
			slog.String("file", filepath.Base(path)),
			slog.String("error", err.Error()))
		_ = os.Remove(path)
		return
	}

	in.pub.Publish(Event{Type: TypeHook, Time: time.Now().UTC(), Data: hook})
	_ = os.Remove(path)

	eventsLog.Debug("hook_event_ingested",
		slog.String("session", hook.Session),
		slog.String("kind", hook.Kind))
}

// Stop terminates the watch loop and closes the watcher.
func (in *Ingester) Stop() {
	if in.cancel != nil {
		in.cancel()
	}
	in.watcher.Close()
}
