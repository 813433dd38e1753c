package engine

import (
	"fmt"
	"strings"

	"github.com/talgya/hamlet/internal/entropy"
)

// Initial returns the record a fresh world starts from at tick.
func Initial(p Params, tick int64) TickRecord {
	workers := p.InitialWorkers
	if workers < 1 {
		workers = Workers(p.InitialPopulation)
	}
	if workers > p.InitialPopulation {
		workers = p.InitialPopulation
	}
	return TickRecord{
		TickIndex:  tick,
		Population: p.InitialPopulation,
		Food:       p.InitialFood,
		Workers:    workers,
		Notes:      fmt.Sprintf("init season=%s year=%d pos=%d", SeasonAt(tick).Name, YearOf(tick), PosInYear(tick)),
	}
}

// Next computes the record for tick from prev and the year's events. A nil
// prev starts a fresh world. Next performs no I/O; the caller persists the
// result. Timestamp and ID are left for the store.
func Next(prev *TickRecord, ev YearEvents, tick int64, src entropy.Source, p Params) TickRecord {
	if prev == nil {
		return Initial(p, tick)
	}

	season := SeasonAt(tick)
	pos := PosInYear(tick)
	pop := max(prev.Population, MinPopulation)

	h := harvest(p, pop, prev.Food, season, ev, pos, src)
	food := h.foodAfter

	netPC := h.delta / float64(pop)
	stockPC := food / float64(pop)

	d := demography{population: pop}
	d.applyGrowth(netPC)
	d.applyStockBirths(stockPC)
	d.applyNoise(src)
	d.applyRecovery(stockPC)

	plagueLoss := 0
	if ev.Plague && FirstTickOfYear(tick) {
		plagueLoss = d.applyPlague(src)
	}

	rotLoss := 0.0
	if ev.Rot && LastTickOfYear(tick) {
		food, rotLoss = applyRot(food, src)
	}

	d.clamp()

	var notes strings.Builder
	fmt.Fprintf(&notes, "season=%s year=%d pos=%d harvest=%s golden=%t plague=%t rot=%t net_pc=%.3f stock_pc=%.3f",
		season.Name, YearOf(tick), pos, ev.Harvest, ev.Golden, ev.Plague, ev.Rot, netPC, stockPC)
	if plagueLoss > 0 {
		fmt.Fprintf(&notes, " plague_loss=%d", plagueLoss)
	}
	if rotLoss > 0 {
		fmt.Fprintf(&notes, " rot_loss=%.2f", rotLoss)
	}

	return TickRecord{
		TickIndex:  tick,
		Population: d.population,
		Food:       food,
		Workers:    Workers(d.population),
		Births:     d.births,
		Deaths:     d.deaths,
		Notes:      notes.String(),
	}
}
