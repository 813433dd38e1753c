package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/hamlet/internal/engine"
)

type fakeReader struct {
	ticks     []engine.TickRecord
	meta      map[string]string
	latestErr error
}

func (f *fakeReader) LatestTick(ctx context.Context) (*engine.TickRecord, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if len(f.ticks) == 0 {
		return nil, nil
	}
	r := f.ticks[len(f.ticks)-1]
	return &r, nil
}

func (f *fakeReader) RecentTicks(ctx context.Context, limit int) ([]engine.TickRecord, error) {
	if limit > len(f.ticks) {
		limit = len(f.ticks)
	}
	return f.ticks[len(f.ticks)-limit:], nil
}

func (f *fakeReader) Meta(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.meta[key]
	return v, ok, nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeTicks(n int) []engine.TickRecord {
	out := make([]engine.TickRecord, n)
	for i := range out {
		out[i] = engine.TickRecord{
			ID:         int64(i + 1),
			TickIndex:  int64(i),
			Timestamp:  t0.Add(time.Duration(i) * time.Hour),
			Population: 100 + i,
			Food:       500 + float64(i)*2.5,
			Workers:    40,
			Births:     i % 3,
			Deaths:     i % 2,
		}
	}
	return out
}

func TestBuildStatusEmpty(t *testing.T) {
	st, err := BuildStatus(context.Background(), &fakeReader{}, 48, t0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if st.HasData || st.Recent == nil || len(st.Recent) != 0 {
		t.Fatalf("st=%+v", st)
	}
	b, _ := json.Marshal(st)
	if !strings.Contains(string(b), `"recent":[]`) {
		t.Fatalf("recent should encode as empty array: %s", b)
	}
}

func TestBuildStatusMalformedLatest(t *testing.T) {
	r := &fakeReader{ticks: makeTicks(3), latestErr: engine.ErrMalformedTick}
	st, err := BuildStatus(context.Background(), r, 48, t0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if st.HasData {
		t.Fatal("malformed latest should report no data")
	}
}

func TestBuildStatusStoreError(t *testing.T) {
	boom := errors.New("disk gone")
	r := &fakeReader{latestErr: boom}
	if _, err := BuildStatus(context.Background(), r, 48, t0); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildStatusWindow(t *testing.T) {
	r := &fakeReader{
		ticks: makeTicks(100),
		meta:  map[string]string{engine.MetaBadStreak: "2"},
	}
	st, err := BuildStatus(context.Background(), r, 48, t0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !st.HasData || st.LastTick != 100 || st.TickIndex != 99 || st.Population != 199 {
		t.Fatalf("st=%+v", st)
	}
	if st.Year != 1 || st.Season != "summer" {
		t.Fatalf("year=%d season=%s", st.Year, st.Season)
	}
	if st.BadStreak != 2 || st.GoodStreak != 0 {
		t.Fatalf("streaks good=%d bad=%d", st.GoodStreak, st.BadStreak)
	}
	if len(st.Recent) != 48 || st.Recent[0].TickIndex != 52 || st.Recent[47].TickIndex != 99 {
		t.Fatalf("recent %d first=%d", len(st.Recent), st.Recent[0].TickIndex)
	}
}

func TestWriteStatusFileReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "status.json")
	for _, pop := range []int{100, 101} {
		if err := WriteStatusFile(path, Status{HasData: true, Population: pop, Recent: []Point{}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Population != 101 {
		t.Fatalf("population=%d", st.Population)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestRenderText(t *testing.T) {
	if out := RenderText(Status{}, t0); !strings.Contains(out, "no ticks recorded yet") {
		t.Fatalf("empty render:\n%s", out)
	}

	r := &fakeReader{ticks: makeTicks(10), meta: map[string]string{engine.MetaGoodStreak: "1"}}
	st, err := BuildStatus(context.Background(), r, 10, t0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out := RenderText(st, t0.Add(10*time.Hour))
	for _, want := range []string{"population", "109", "1 good year", "Year 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestSparkline(t *testing.T) {
	pts := []Point{{Population: 2}, {Population: 9}, {Population: 2}}
	if got := sparkline(pts); got != "▁█▁" {
		t.Fatalf("got %q", got)
	}
	if got := sparkline(pts[:1]); got != "" {
		t.Fatalf("single point should not render, got %q", got)
	}
}

func TestWriteCharts(t *testing.T) {
	if _, err := WriteCharts(t.TempDir(), nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("err=%v", err)
	}

	dir := t.TempDir()
	paths, err := WriteCharts(dir, makeTicks(120))
	if err != nil {
		t.Fatalf("charts: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths=%v", paths)
	}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if !bytes.HasPrefix(b, []byte("\x89PNG")) {
			t.Fatalf("%s is not a png", p)
		}
	}
}

func TestExportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export", "ticks.jsonl.zst")
	if err := ExportFile(path, nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("err=%v", err)
	}
	ticks := makeTicks(5)
	if err := ExportFile(path, ticks); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	defer dec.Close()

	n := 0
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var rec engine.TickRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		if rec.TickIndex != ticks[n].TickIndex || rec.Food != ticks[n].Food {
			t.Fatalf("line %d: %+v", n, rec)
		}
		n++
	}
	if n != len(ticks) {
		t.Fatalf("decoded %d lines", n)
	}
}
