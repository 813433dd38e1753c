// Year-level bookkeeping: classification of completed years, good/bad
// streaks, and the memoized once-per-year event draw.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/talgya/hamlet/internal/entropy"
)

// Metadata keys for the streak counters.
const (
	MetaGoodStreak = "good_streak"
	MetaBadStreak  = "bad_streak"
)

// Classify labels a completed year from its first and last tick. A year
// missing either boundary record (never reached, or restarted mid-year) and
// negative years are normal.
func Classify(ctx context.Context, r WindowReader, year int64) (YearClass, error) {
	if year < 0 {
		return YearNormal, nil
	}
	window, err := r.YearWindow(ctx, year)
	if err != nil {
		return YearNormal, fmt.Errorf("year window %d: %w", year, err)
	}
	lo := year * YearLength
	hi := lo + YearLength - 1

	var first, last *TickRecord
	for i := range window {
		switch window[i].TickIndex {
		case lo:
			if first == nil {
				first = &window[i]
			}
		case hi:
			last = &window[i]
		}
	}
	if first == nil || last == nil {
		return YearNormal, nil
	}
	return classifyWindow(*first, *last), nil
}

func classifyWindow(first, last TickRecord) YearClass {
	delta := last.Food - first.Food
	avgStock := (first.Food/float64(max(first.Population, 1)) + last.Food/float64(max(last.Population, 1))) / 2

	switch {
	case delta > 0 && avgStock > 8:
		return YearGood
	case delta < 0 && avgStock < 4:
		return YearBad
	default:
		return YearNormal
	}
}

// Streaks counts consecutive good or bad years. At most one is nonzero.
type Streaks struct {
	Good int `json:"good_streak"`
	Bad  int `json:"bad_streak"`
}

// Apply returns the streaks after a year classified as c.
func (s Streaks) Apply(c YearClass) Streaks {
	switch c {
	case YearGood:
		return Streaks{Good: s.Good + 1}
	case YearBad:
		return Streaks{Bad: s.Bad + 1}
	default:
		return Streaks{}
	}
}

// LoadStreaks reads the stored counters. Missing or unparsable values read as 0.
func LoadStreaks(ctx context.Context, r MetaReader) (Streaks, error) {
	good, err := metaInt(ctx, r, MetaGoodStreak)
	if err != nil {
		return Streaks{}, err
	}
	bad, err := metaInt(ctx, r, MetaBadStreak)
	if err != nil {
		return Streaks{}, err
	}
	return Streaks{Good: good, Bad: bad}, nil
}

func saveStreaks(ctx context.Context, l Ledger, s Streaks) error {
	if err := l.SetMeta(ctx, MetaGoodStreak, strconv.Itoa(s.Good)); err != nil {
		return fmt.Errorf("save %s: %w", MetaGoodStreak, err)
	}
	if err := l.SetMeta(ctx, MetaBadStreak, strconv.Itoa(s.Bad)); err != nil {
		return fmt.Errorf("save %s: %w", MetaBadStreak, err)
	}
	return nil
}

func metaInt(ctx context.Context, r MetaReader, key string) (int, error) {
	v, ok, err := r.Meta(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("ignoring malformed metadata", "key", key, "value", v)
		return 0, nil
	}
	return n, nil
}

// ResolveStreaks folds the verdict on year-1 into the stored streaks and
// returns the updated counters. Year 0 and earlier have no prior year and
// leave the store untouched. Callers must run this once per year.
func ResolveStreaks(ctx context.Context, l Ledger, year int64) (Streaks, YearClass, error) {
	if year <= 0 {
		return Streaks{}, YearNormal, nil
	}
	class, err := Classify(ctx, l, year-1)
	if err != nil {
		return Streaks{}, YearNormal, err
	}
	cur, err := LoadStreaks(ctx, l)
	if err != nil {
		return Streaks{}, YearNormal, err
	}
	next := cur.Apply(class)
	if err := saveStreaks(ctx, l, next); err != nil {
		return Streaks{}, YearNormal, err
	}
	return next, class, nil
}

// EventOdds are the per-year event probabilities after modifiers.
type EventOdds struct {
	Poor       float64
	Disastrous float64
	Golden     float64
	Plague     float64
	Rot        float64
}

const maxEventProbability = 0.8

// Odds applies streak and population modifiers to the base probabilities.
// A good streak makes bad harvests likelier; a bad streak makes a golden
// harvest likelier; crowding makes plague likelier.
func Odds(s Streaks, population int) EventOdds {
	complacency := math.Min(1+0.3*float64(s.Good), 3.0)
	relief := math.Min(1+0.4*float64(s.Bad), 4.0)

	var crowding float64
	switch {
	case population < 200:
		crowding = 1
	case population < 500:
		crowding = 1.5
	case population < 1000:
		crowding = 2
	default:
		crowding = 3
	}

	return EventOdds{
		Poor:       clampProbability(0.10 * complacency),
		Disastrous: clampProbability(0.03 * complacency),
		Golden:     clampProbability(0.05 * relief),
		Plague:     clampProbability(0.02 * crowding),
		Rot:        clampProbability(0.03),
	}
}

func clampProbability(p float64) float64 {
	return math.Max(0, math.Min(p, maxEventProbability))
}

// Draw samples one year's events: a single uniform for the harvest, then
// independent draws for golden, plague and rot, in that order.
func (o EventOdds) Draw(year int64, src entropy.Source) YearEvents {
	ev := YearEvents{Year: year, Harvest: HarvestNormal}

	r := src.Float64()
	switch {
	case r < o.Disastrous:
		ev.Harvest = HarvestDisastrous
	case r < o.Disastrous+o.Poor:
		ev.Harvest = HarvestPoor
	}
	ev.Golden = entropy.Bernoulli(src, o.Golden)
	ev.Plague = entropy.Bernoulli(src, o.Plague)
	ev.Rot = entropy.Bernoulli(src, o.Rot)
	return ev
}

// ResolveYearEvents returns the events for year, drawing and storing them on
// first access. Later calls return the stored record without consuming
// randomness or touching the streaks. population is the reference population
// for the plague modifier.
func ResolveYearEvents(ctx context.Context, l Ledger, year int64, population int, src entropy.Source) (YearEvents, error) {
	stored, err := l.YearEvent(ctx, year)
	if err != nil {
		return YearEvents{}, fmt.Errorf("load year %d events: %w", year, err)
	}
	if stored != nil {
		return *stored, nil
	}

	before, err := LoadStreaks(ctx, l)
	if err != nil {
		return YearEvents{}, err
	}
	streaks, class, err := ResolveStreaks(ctx, l, year)
	if err != nil {
		return YearEvents{}, err
	}

	odds := Odds(streaks, population)
	ev := odds.Draw(year, src)

	err = l.PutYearEvent(ctx, ev)
	if errors.Is(err, ErrDuplicateYearEvent) {
		// Someone else drew this year first. Their draw already advanced
		// the streaks, so undo ours and adopt the stored record.
		slog.Warn("year events already drawn", "year", year)
		if year > 0 {
			if err := saveStreaks(ctx, l, before); err != nil {
				return YearEvents{}, err
			}
		}
		stored, err := l.YearEvent(ctx, year)
		if err != nil {
			return YearEvents{}, fmt.Errorf("reload year %d events: %w", year, err)
		}
		if stored == nil {
			return YearEvents{}, fmt.Errorf("year %d events vanished after duplicate write", year)
		}
		return *stored, nil
	}
	if err != nil {
		return YearEvents{}, fmt.Errorf("store year %d events: %w", year, err)
	}

	slog.Info("year events drawn",
		"year", year,
		"previous_year", class,
		"good_streak", streaks.Good,
		"bad_streak", streaks.Bad,
		"harvest", ev.Harvest,
		"golden", ev.Golden,
		"plague", ev.Plague,
		"rot", ev.Rot,
	)
	return ev, nil
}
