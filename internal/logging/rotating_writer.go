package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// RotatingWriter is a zap write syncer over files that roll at each UTC day
// and whenever a write would push the current file past MaxBytes.
//
// For a base path of logs/relayd.log the files are
//
//	logs/relayd-2026-10-17.log
//	logs/relayd-2026-10-17-2.log
//
// and logs/relayd.log is kept as a link to the file being written.
type RotatingWriter struct {
	BasePath string
	MaxBytes int64

	now func() time.Time

	mu    sync.Mutex
	day   string
	index int
	file  *os.File
	size  int64
}

// NewRotatingWriter opens the current file for basePath. A base path of "-"
// discards everything.
func NewRotatingWriter(basePath string, maxBytes int64) (zapcore.WriteSyncer, io.Closer, error) {
	if strings.TrimSpace(basePath) == "-" {
		return zapcore.AddSync(io.Discard), nopCloser{}, nil
	}
	w := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, now: time.Now}
	if err := w.roll(0); err != nil {
		return nil, nil, err
	}
	return w, w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Sync flushes the current file.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll must be called with mu held.
func (w *RotatingWriter) roll(incoming int64) error {
	today := w.now().UTC().Format("2006-01-02")
	switch {
	case w.file == nil && w.day == today:
		// reopened after Close on the same day
	case w.file == nil || w.day != today:
		w.day = today
		w.index = 1
	case w.MaxBytes > 0 && w.size > 0 && w.size+incoming > w.MaxBytes:
		w.index++
	default:
		return nil
	}
	return w.open()
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	path := w.fileName(w.day, w.index)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.size = 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.file = f
	w.link(path)
	return nil
}

func (w *RotatingWriter) fileName(day string, index int) string {
	dir, name := filepath.Split(w.BasePath)
	if dir == "" {
		dir = "."
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	if index > 1 {
		return filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, day, index, ext))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, day, ext))
}

// link points BasePath at target: symlink, then hard link, then a text note.
func (w *RotatingWriter) link(target string) {
	base := w.BasePath
	if info, err := os.Lstat(base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, err := os.Readlink(base); err == nil && dest == target {
				return
			}
		}
		_ = os.Remove(base)
	}
	if os.Symlink(target, base) == nil || os.Link(target, base) == nil {
		return
	}
	_ = os.WriteFile(base, []byte("current log file: "+target+"\n"), 0o644)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
