// Package report builds read-only views of the tick log: the status
// document, its terminal rendering, time-series charts and exports.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/talgya/hamlet/internal/engine"
)

// Reader is the store surface the status document needs.
type Reader interface {
	engine.MetaReader
	LatestTick(ctx context.Context) (*engine.TickRecord, error)
	RecentTicks(ctx context.Context, limit int) ([]engine.TickRecord, error)
}

// Point is one entry of the recent series.
type Point struct {
	Timestamp  time.Time `json:"ts"`
	TickIndex  int64     `json:"tick_index"`
	Population int       `json:"population"`
	Food       float64   `json:"food"`
	Workers    int       `json:"workers"`
}

// Status is the snapshot document published after each tick.
type Status struct {
	HasData     bool      `json:"has_data"`
	LastTick    int64     `json:"last_tick"` // Record id of the newest row
	TickIndex   int64     `json:"tick_index"`
	Year        int64     `json:"year"`
	Season      string    `json:"season,omitempty"`
	SimTime     string    `json:"sim_time,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Population  int       `json:"population"`
	Food        float64   `json:"food"`
	Workers     int       `json:"workers"`
	Births      int       `json:"births"`
	Deaths      int       `json:"deaths"`
	GoodStreak  int       `json:"good_streak"`
	BadStreak   int       `json:"bad_streak"`
	Recent      []Point   `json:"recent"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BuildStatus reads the latest record and up to window recent records.
// An empty or unreadable log yields has_data=false.
func BuildStatus(ctx context.Context, r Reader, window int, now time.Time) (Status, error) {
	st := Status{Recent: []Point{}, GeneratedAt: now.UTC()}

	latest, err := r.LatestTick(ctx)
	if errors.Is(err, engine.ErrMalformedTick) {
		slog.Warn("latest tick unreadable, reporting no data", "error", err)
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("latest tick: %w", err)
	}
	if latest == nil {
		return st, nil
	}

	recent, err := r.RecentTicks(ctx, window)
	if err != nil {
		return st, fmt.Errorf("recent ticks: %w", err)
	}
	streaks, err := engine.LoadStreaks(ctx, r)
	if err != nil {
		return st, err
	}

	st.HasData = true
	st.LastTick = latest.ID
	st.TickIndex = latest.TickIndex
	st.Year = engine.YearOf(latest.TickIndex)
	st.Season = engine.SeasonAt(latest.TickIndex).Name
	st.SimTime = engine.SimTime(latest.TickIndex)
	st.Timestamp = latest.Timestamp
	st.Population = latest.Population
	st.Food = latest.Food
	st.Workers = latest.Workers
	st.Births = latest.Births
	st.Deaths = latest.Deaths
	st.GoodStreak = streaks.Good
	st.BadStreak = streaks.Bad
	for _, rec := range recent {
		st.Recent = append(st.Recent, Point{
			Timestamp:  rec.Timestamp,
			TickIndex:  rec.TickIndex,
			Population: rec.Population,
			Food:       rec.Food,
			Workers:    rec.Workers,
		})
	}
	return st, nil
}

// WriteStatusFile writes st as indented JSON, replacing path atomically.
func WriteStatusFile(path string, st Status) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
