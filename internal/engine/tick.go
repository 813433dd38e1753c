package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/talgya/hamlet/internal/entropy"
)

// MetaNextTick holds the tick index the next invocation will compute.
const MetaNextTick = "next_tick_index"

// Driver runs one tick per call: read latest, resolve the year's events,
// compute the next record, append it. Everything happens in one store
// transaction so a failed tick writes nothing.
type Driver struct {
	Store  Store
	Params Params

	// Seed, when nonzero, makes every tick replayable: tick and year draws
	// come from streams derived from (Seed, "tick:N") and (Seed, "year:Y").
	Seed uint64
	// Entropy is used when Seed is zero. Nil means crypto/rand.
	Entropy entropy.Source

	Journal Journal          // Optional; receives each committed record
	Now     func() time.Time // Defaults to time.Now
}

// NewDriver creates a driver with default model parameters.
func NewDriver(store Store) *Driver {
	return &Driver{
		Store:  store,
		Params: DefaultParams(),
	}
}

// Tick performs exactly one simulation step and returns the appended record.
func (d *Driver) Tick(ctx context.Context) (TickRecord, error) {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	var rec TickRecord
	err := d.Store.InTx(ctx, func(l Ledger) error {
		prev, err := l.LatestTick(ctx)
		if errors.Is(err, ErrMalformedTick) {
			slog.Warn("latest tick unreadable, restarting from initial state", "error", err)
			prev, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("latest tick: %w", err)
		}

		tick, err := d.nextTickIndex(ctx, l, prev)
		if err != nil {
			return err
		}
		year := YearOf(tick)

		refPop := d.Params.InitialPopulation
		if prev != nil {
			refPop = prev.Population
		}
		events, err := ResolveYearEvents(ctx, l, year, refPop, d.source("year", year))
		if err != nil {
			return err
		}

		rec = Next(prev, events, tick, d.source("tick", tick), d.Params)
		rec.Timestamp = now().UTC()

		id, err := l.AppendTick(ctx, rec)
		if err != nil {
			return fmt.Errorf("append tick %d: %w", tick, err)
		}
		rec.ID = id

		if err := l.SetMeta(ctx, MetaNextTick, strconv.FormatInt(tick+1, 10)); err != nil {
			return fmt.Errorf("save %s: %w", MetaNextTick, err)
		}
		return nil
	})
	if err != nil {
		return TickRecord{}, err
	}

	slog.Info("tick complete",
		"tick", rec.TickIndex,
		"id", rec.ID,
		"time", SimTime(rec.TickIndex),
		"population", rec.Population,
		"food", fmt.Sprintf("%.1f", rec.Food),
		"workers", rec.Workers,
		"births", rec.Births,
		"deaths", rec.Deaths,
	)

	if d.Journal != nil {
		if err := d.Journal.WriteTick(rec); err != nil {
			slog.Warn("tick journal write failed", "tick", rec.TickIndex, "error", err)
		}
	}
	return rec, nil
}

// nextTickIndex reads the maintained counter, falling back to the latest
// record's index when the counter is missing or unreadable.
func (d *Driver) nextTickIndex(ctx context.Context, l Ledger, prev *TickRecord) (int64, error) {
	v, ok, err := l.Meta(ctx, MetaNextTick)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", MetaNextTick, err)
	}
	if ok {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr == nil && n >= 0 {
			return n, nil
		}
		slog.Warn("ignoring malformed metadata", "key", MetaNextTick, "value", v)
	}
	if prev != nil {
		return prev.TickIndex + 1, nil
	}
	return 0, nil
}

func (d *Driver) source(kind string, n int64) entropy.Source {
	if d.Seed != 0 {
		return entropy.NewStream(entropy.Derive(d.Seed, kind+":"+strconv.FormatInt(n, 10)))
	}
	if d.Entropy != nil {
		return d.Entropy
	}
	return entropy.Crypto
}
