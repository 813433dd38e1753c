// Population dynamics: workforce share, growth from the food flow,
// stock-driven births, demographic noise and small-population recovery.
package engine

import (
	"math"

	"github.com/talgya/hamlet/internal/entropy"
)

// Demographic noise rates per person per tick.
const (
	randomBirthRate = 0.0005
	randomDeathRate = 0.00015
)

// WorkersRatio returns the share of the population that works the land.
// Larger settlements carry proportionally more non-producers.
func WorkersRatio(population int) float64 {
	switch {
	case population <= 20:
		return 0.45
	case population <= 100:
		return 0.40
	case population <= 500:
		return 0.35
	case population <= 2000:
		return 0.30
	default:
		return 0.25
	}
}

// Workers returns the workforce for population, clamped to [1, population].
func Workers(population int) int {
	w := int(math.Floor(float64(population) * WorkersRatio(population)))
	if w > population {
		w = population
	}
	if w < 1 {
		w = 1
	}
	return w
}

// growthFactor maps net food per capita (a flow) to a population growth rate.
func growthFactor(netPerCapita float64) float64 {
	switch {
	case netPerCapita > 1.0:
		return 0.03
	case netPerCapita > 0.5:
		return 0.02
	case netPerCapita > 0.2:
		return 0.012
	case netPerCapita > 0.05:
		return 0.006
	case netPerCapita > -0.05:
		return 0
	case netPerCapita > -0.2:
		return -0.003
	default:
		return -0.01
	}
}

// stockBirthRate maps stored food per capita to an extra birth rate.
func stockBirthRate(stockPerCapita float64) float64 {
	switch {
	case stockPerCapita > 12:
		return 0.02
	case stockPerCapita > 8:
		return 0.01
	case stockPerCapita > 5:
		return 0.005
	default:
		return 0
	}
}

// atLeastOne returns floor(population*rate) but never less than 1.
func atLeastOne(population int, rate float64) int {
	n := int(math.Floor(float64(population) * rate))
	if n < 1 {
		return 1
	}
	return n
}

// demography tracks population and the births/deaths counted this tick.
type demography struct {
	population int
	births     int
	deaths     int
}

func (d *demography) grow(n int) {
	d.population += n
	d.births += n
}

func (d *demography) shrink(n int) {
	d.population -= n
	d.deaths += n
}

// applyGrowth moves population by the flow-driven growth factor.
func (d *demography) applyGrowth(netPerCapita float64) {
	g := growthFactor(netPerCapita)
	switch {
	case g > 0:
		d.grow(atLeastOne(d.population, g))
	case g < 0:
		d.shrink(atLeastOne(d.population, -g))
	}
}

// applyStockBirths adds births when stores are comfortable.
func (d *demography) applyStockBirths(stockPerCapita float64) {
	if rate := stockBirthRate(stockPerCapita); rate > 0 {
		d.grow(atLeastOne(d.population, rate))
	}
}

// applyNoise adds rare random births and deaths. Both expectations are taken
// from the same population; deaths never push the population below the floor.
func (d *demography) applyNoise(src entropy.Source) {
	base := float64(d.population)
	born := entropy.StochasticRound(src, base*randomBirthRate)
	died := entropy.StochasticRound(src, base*randomDeathRate)

	d.grow(born)
	if limit := d.population - MinPopulation; died > limit {
		died = max(0, limit)
	}
	d.shrink(died)
}

// applyRecovery lets a small, well-fed settlement rebuild.
func (d *demography) applyRecovery(stockPerCapita float64) {
	if d.population < 40 && stockPerCapita > 5 {
		d.grow(atLeastOne(d.population, 0.02))
	}
}

// applyPlague removes a fraction of the population, leaving at least the floor.
// It returns the number lost.
func (d *demography) applyPlague(src entropy.Source) int {
	if d.population <= MinPopulation {
		return 0
	}
	frac := entropy.Uniform(src, 0.05, 0.20)
	loss := int(math.Floor(float64(d.population) * frac))
	if limit := d.population - MinPopulation; loss > limit {
		loss = limit
	}
	d.shrink(loss)
	return loss
}

// clamp enforces the population floor. Deaths that the floor undoes are
// removed from the count so it never reports more than were actually lost.
func (d *demography) clamp() {
	if d.population >= MinPopulation {
		return
	}
	d.deaths = max(0, d.deaths-(MinPopulation-d.population))
	d.population = MinPopulation
}
