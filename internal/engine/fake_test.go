package engine

import (
	"context"
	"errors"
	"sort"
)

// constSource always returns the same draw. 0.5 zeroes symmetric noise and
// fails every small Bernoulli trial.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

// seqSource replays vals in order and counts draws.
type seqSource struct {
	vals  []float64
	draws int
}

func (s *seqSource) Float64() float64 {
	v := s.vals[s.draws%len(s.vals)]
	s.draws++
	return v
}

// memLedger is an in-memory Ledger.
type memLedger struct {
	ticks  []TickRecord
	years  map[int64]YearEvents
	meta   map[string]string
	nextID int64

	latestErr error
	appendErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		years: map[int64]YearEvents{},
		meta:  map[string]string{},
	}
}

func (m *memLedger) clone() *memLedger {
	c := &memLedger{
		ticks:     append([]TickRecord(nil), m.ticks...),
		years:     make(map[int64]YearEvents, len(m.years)),
		meta:      make(map[string]string, len(m.meta)),
		nextID:    m.nextID,
		latestErr: m.latestErr,
		appendErr: m.appendErr,
	}
	for k, v := range m.years {
		c.years[k] = v
	}
	for k, v := range m.meta {
		c.meta[k] = v
	}
	return c
}

func (m *memLedger) LatestTick(ctx context.Context) (*TickRecord, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	if len(m.ticks) == 0 {
		return nil, nil
	}
	r := m.ticks[len(m.ticks)-1]
	return &r, nil
}

func (m *memLedger) AppendTick(ctx context.Context, rec TickRecord) (int64, error) {
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.nextID++
	rec.ID = m.nextID
	m.ticks = append(m.ticks, rec)
	return rec.ID, nil
}

func (m *memLedger) YearEvent(ctx context.Context, year int64) (*YearEvents, error) {
	ev, ok := m.years[year]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (m *memLedger) PutYearEvent(ctx context.Context, ev YearEvents) error {
	if _, ok := m.years[ev.Year]; ok {
		return ErrDuplicateYearEvent
	}
	m.years[ev.Year] = ev
	return nil
}

func (m *memLedger) Meta(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.meta[key]
	return v, ok, nil
}

func (m *memLedger) SetMeta(ctx context.Context, key, value string) error {
	m.meta[key] = value
	return nil
}

func (m *memLedger) YearWindow(ctx context.Context, year int64) ([]TickRecord, error) {
	lo, hi := year*YearLength, year*YearLength+YearLength-1
	var out []TickRecord
	for _, r := range m.ticks {
		if r.TickIndex >= lo && r.TickIndex <= hi {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TickIndex < out[j].TickIndex })
	return out, nil
}

// memStore commits a cloned ledger only when fn succeeds.
type memStore struct {
	ledger *memLedger
}

func (s *memStore) InTx(ctx context.Context, fn func(Ledger) error) error {
	tx := s.ledger.clone()
	if err := fn(tx); err != nil {
		return err
	}
	s.ledger = tx
	return nil
}

var errBoom = errors.New("boom")
