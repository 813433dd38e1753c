package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/hamlet/internal/engine"
)

const tickColumns = "id, tick_index, ts, population, food, workers, births, deaths, notes"

// ledger implements engine.Ledger over either the pool or a transaction.
type ledger struct {
	q sqlx.ExtContext
}

// tickRow scans loosely typed so a corrupted row can be reported as
// malformed instead of failing the whole query.
type tickRow struct {
	ID         int64          `db:"id"`
	TickIndex  any            `db:"tick_index"`
	TS         any            `db:"ts"`
	Population any            `db:"population"`
	Food       any            `db:"food"`
	Workers    any            `db:"workers"`
	Births     any            `db:"births"`
	Deaths     any            `db:"deaths"`
	Notes      sql.NullString `db:"notes"`
}

func (r tickRow) record() (engine.TickRecord, error) {
	rec := engine.TickRecord{ID: r.ID, Notes: r.Notes.String}
	var err error
	if rec.TickIndex, err = asInt(r.TickIndex, "tick_index"); err != nil {
		return rec, err
	}
	pop, err := asInt(r.Population, "population")
	if err != nil {
		return rec, err
	}
	workers, err := asInt(r.Workers, "workers")
	if err != nil {
		return rec, err
	}
	births, err := asInt(r.Births, "births")
	if err != nil {
		return rec, err
	}
	deaths, err := asInt(r.Deaths, "deaths")
	if err != nil {
		return rec, err
	}
	if rec.Food, err = asFloat(r.Food, "food"); err != nil {
		return rec, err
	}
	rec.Population, rec.Workers = int(pop), int(workers)
	rec.Births, rec.Deaths = int(births), int(deaths)
	rec.Timestamp = asTime(r.TS)

	if !rec.Valid() {
		return rec, fmt.Errorf("tick %d violates invariants: %w", r.ID, engine.ErrMalformedTick)
	}
	return rec, nil
}

func asInt(v any, field string) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
	case []byte:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%s=%v: %w", field, v, engine.ErrMalformedTick)
}

func asFloat(v any, field string) (float64, error) {
	switch x := v.(type) {
	case float64:
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			return x, nil
		}
	case int64:
		return float64(x), nil
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f, nil
		}
	case []byte:
		if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%s=%v: %w", field, v, engine.ErrMalformedTick)
}

func asTime(v any) time.Time {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	case time.Time:
		return x.UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// records converts rows, skipping any that are malformed.
func records(rows []tickRow) []engine.TickRecord {
	out := make([]engine.TickRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			slog.Warn("skipping malformed tick row", "id", r.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (l ledger) LatestTick(ctx context.Context) (*engine.TickRecord, error) {
	var row tickRow
	err := sqlx.GetContext(ctx, l.q, &row, "SELECT "+tickColumns+" FROM ticks ORDER BY id DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (l ledger) AppendTick(ctx context.Context, rec engine.TickRecord) (int64, error) {
	res, err := l.q.ExecContext(ctx,
		`INSERT INTO ticks (tick_index, ts, population, food, workers, births, deaths, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TickIndex, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Population, rec.Food, rec.Workers, rec.Births, rec.Deaths, rec.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("insert tick %d: %w", rec.TickIndex, err)
	}
	return res.LastInsertId()
}

func (l ledger) RecentTicks(ctx context.Context, limit int) ([]engine.TickRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []tickRow
	err := sqlx.SelectContext(ctx, l.q, &rows,
		"SELECT * FROM (SELECT "+tickColumns+" FROM ticks ORDER BY id DESC LIMIT ?) ORDER BY id ASC",
		limit,
	)
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

func (l ledger) Ticks(ctx context.Context, from, to int64, limit int) ([]engine.TickRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var rows []tickRow
	err := sqlx.SelectContext(ctx, l.q, &rows,
		"SELECT "+tickColumns+" FROM ticks WHERE tick_index BETWEEN ? AND ? ORDER BY id ASC LIMIT ?",
		from, to, limit,
	)
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

func (l ledger) YearWindow(ctx context.Context, year int64) ([]engine.TickRecord, error) {
	lo := year * engine.YearLength
	hi := lo + engine.YearLength - 1
	var rows []tickRow
	err := sqlx.SelectContext(ctx, l.q, &rows,
		"SELECT "+tickColumns+" FROM ticks WHERE tick_index BETWEEN ? AND ? ORDER BY tick_index ASC, id ASC",
		lo, hi,
	)
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

type yearRow struct {
	Year    int64  `db:"year_index"`
	Harvest string `db:"harvest_type"`
	Golden  bool   `db:"golden"`
	Plague  bool   `db:"plague"`
	Rot     bool   `db:"rot"`
}

func (l ledger) YearEvent(ctx context.Context, year int64) (*engine.YearEvents, error) {
	var row yearRow
	err := sqlx.GetContext(ctx, l.q, &row,
		"SELECT year_index, harvest_type, golden, plague, rot FROM year_events WHERE year_index = ?",
		year,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &engine.YearEvents{
		Year:    row.Year,
		Harvest: engine.HarvestType(row.Harvest),
		Golden:  row.Golden,
		Plague:  row.Plague,
		Rot:     row.Rot,
	}, nil
}

func (l ledger) PutYearEvent(ctx context.Context, ev engine.YearEvents) error {
	res, err := l.q.ExecContext(ctx,
		`INSERT INTO year_events (year_index, harvest_type, golden, plague, rot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(year_index) DO NOTHING`,
		ev.Year, string(ev.Harvest), ev.Golden, ev.Plague, ev.Rot,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert year %d: %w", ev.Year, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("year %d: %w", ev.Year, engine.ErrDuplicateYearEvent)
	}
	return nil
}

func (l ledger) Meta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := sqlx.GetContext(ctx, l.q, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (l ledger) SetMeta(ctx context.Context, key, value string) error {
	_, err := l.q.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}
