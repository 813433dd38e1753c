// Package engine provides the tick-based settlement model: the calendar, the
// once-per-year event draw with its streak bookkeeping, the pure tick
// transition, and the driver that runs one tick against a store.
package engine

import (
	"context"
	"errors"
	"time"
)

// MinPopulation is the floor every record respects.
const MinPopulation = 2

// TickRecord is one persisted simulation step. Records are append-only.
type TickRecord struct {
	ID         int64     `json:"id"`         // Assigned by the store
	TickIndex  int64     `json:"tick_index"` // Simulation time, independent of ID
	Timestamp  time.Time `json:"timestamp"`
	Population int       `json:"population"`
	Food       float64   `json:"food"` // Stock, not flow
	Workers    int       `json:"workers"`
	Births     int       `json:"births"`
	Deaths     int       `json:"deaths"`
	Notes      string    `json:"notes,omitempty"`
}

// Valid reports whether r satisfies the record invariants.
func (r TickRecord) Valid() bool {
	return r.Population >= MinPopulation &&
		r.Workers >= 1 && r.Workers <= r.Population &&
		r.Food >= 0 && r.TickIndex >= 0 &&
		r.Births >= 0 && r.Deaths >= 0
}

// HarvestType is the quality of a simulated year's harvest.
type HarvestType string

const (
	HarvestNormal     HarvestType = "normal"
	HarvestPoor       HarvestType = "poor"
	HarvestDisastrous HarvestType = "disastrous"
)

// Factor returns the production multiplier for the harvest.
func (h HarvestType) Factor() float64 {
	switch h {
	case HarvestPoor:
		return 0.7
	case HarvestDisastrous:
		return 0.3
	default:
		return 1.0
	}
}

// YearEvents is the memoized random draw for one simulated year.
type YearEvents struct {
	Year    int64       `json:"year_index"`
	Harvest HarvestType `json:"harvest_type"`
	Golden  bool        `json:"golden"`
	Plague  bool        `json:"plague"`
	Rot     bool        `json:"rot"`
}

// YearClass is the qualitative verdict on a completed year.
type YearClass string

const (
	YearGood   YearClass = "good"
	YearBad    YearClass = "bad"
	YearNormal YearClass = "normal"
)

var (
	// ErrDuplicateYearEvent is returned by PutYearEvent when the year is
	// already recorded.
	ErrDuplicateYearEvent = errors.New("year event already recorded")

	// ErrMalformedTick is returned by LatestTick when the newest row cannot
	// be read as a valid TickRecord.
	ErrMalformedTick = errors.New("malformed tick record")
)

// MetaReader reads scalar metadata. ok is false when the key is absent.
type MetaReader interface {
	Meta(ctx context.Context, key string) (value string, ok bool, err error)
}

// WindowReader returns the records of one simulated year ordered by tick index.
type WindowReader interface {
	YearWindow(ctx context.Context, year int64) ([]TickRecord, error)
}

// Ledger is the store surface a tick needs. All calls made during one tick
// share a single transaction.
type Ledger interface {
	MetaReader
	WindowReader

	LatestTick(ctx context.Context) (*TickRecord, error)
	AppendTick(ctx context.Context, rec TickRecord) (int64, error)
	YearEvent(ctx context.Context, year int64) (*YearEvents, error)
	PutYearEvent(ctx context.Context, ev YearEvents) error
	SetMeta(ctx context.Context, key, value string) error
}

// Store runs fn inside an exclusive transaction. If fn returns an error
// nothing is written.
type Store interface {
	InTx(ctx context.Context, fn func(Ledger) error) error
}

// Journal receives committed records, e.g. a compressed tick log.
type Journal interface {
	WriteTick(rec TickRecord) error
}
