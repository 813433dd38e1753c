package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/hamlet/internal/engine"
)

// Export writes ticks to w as zstd-compressed JSON lines.
func Export(w io.Writer, ticks []engine.TickRecord) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	je := json.NewEncoder(enc)
	for _, rec := range ticks {
		if err := je.Encode(rec); err != nil {
			enc.Close()
			return fmt.Errorf("tick %d: %w", rec.TickIndex, err)
		}
	}
	return enc.Close()
}

// ExportFile writes ticks to path, creating parent directories.
func ExportFile(path string, ticks []engine.TickRecord) error {
	if len(ticks) == 0 {
		return ErrNoData
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Export(f, ticks); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
