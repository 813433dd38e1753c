package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/hamlet/internal/engine"
)

// TickLog appends committed tick records as JSON lines to hourly zstd files
// named ticks-YYYY-MM-DD-HH.jsonl.zst. Each process appends its own zstd
// frame, so files written across many invocations decode as one stream.
type TickLog struct {
	baseDir string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewTickLog creates a tick log under dir. Files are opened lazily.
func NewTickLog(dir string) *TickLog {
	return &TickLog{baseDir: dir, now: time.Now}
}

// WriteTick appends rec.
func (l *TickLog) WriteTick(rec engine.TickRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hour := l.now().UTC().Format("2006-01-02-15")
	if hour != l.curHour {
		if err := l.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close finishes the current frame.
func (l *TickLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *TickLog) rotateLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 32*1024)
	l.curHour = hour
	return nil
}

// closeLocked releases the current file and returns the first error seen
// while flushing, ending the frame, or closing the file.
func (l *TickLog) closeLocked() error {
	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}
	if l.w != nil {
		keep(l.w.Flush())
	}
	if l.enc != nil {
		keep(l.enc.Close())
		l.enc = nil
	}
	if l.f != nil {
		keep(l.f.Close())
		l.f = nil
	}
	l.w = nil
	l.curHour = ""
	return first
}

func (l *TickLog) pathForHour(hour string) string {
	return filepath.Join(l.baseDir, fmt.Sprintf("ticks-%s.jsonl.zst", hour))
}
