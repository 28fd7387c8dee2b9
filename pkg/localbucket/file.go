package localbucket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileBackend stores each blob as <dir>/<key>.json.
type FileBackend struct {
	dir string
}

var _ Watcher = (*FileBackend)(nil)

// NewFileBackend creates a backend rooted at dir. The directory is created
// on first save.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Path returns the file that holds key.
func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.dir, fileName(key))
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save implements Backend. The file is replaced atomically.
func (b *FileBackend) Save(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.Path(key))
}

// Delete implements Backend.
func (b *FileBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Watch implements Watcher using fsnotify on the backend directory.
func (b *FileBackend) Watch(ctx context.Context, key string, fn func()) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("localbucket: watch: %w", err)
	}
	if err := w.Add(b.dir); err != nil {
		w.Close()
		return fmt.Errorf("localbucket: watch %s: %w", b.dir, err)
	}

	target := filepath.Clean(b.Path(key))
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					fn()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// fileName maps a blob key to a safe file name.
func fileName(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	name := r.Replace(key)
	if name == "" {
		name = "default"
	}
	return name + ".json"
}
