// Food production and consumption for one tick.
package engine

import (
	"math"

	"github.com/talgya/hamlet/internal/entropy"
)

// Params holds the tunable constants of the tick model.
type Params struct {
	ProductionPerWorker  float64 // Base food per worker per tick
	ConsumptionPerPerson float64 // Base food eaten per person per tick
	ProductionNoise      float64 // Half-width of the uniform production noise
	ConsumptionNoise     float64 // Half-width of the uniform consumption noise

	InitialPopulation int
	InitialFood       float64
	InitialWorkers    int
}

// DefaultParams returns the standard model constants.
func DefaultParams() Params {
	return Params{
		ProductionPerWorker:  3.0,
		ConsumptionPerPerson: 1.0,
		ProductionNoise:      0.05,
		ConsumptionNoise:     0.02,
		InitialPopulation:    100,
		InitialFood:          500.0,
		InitialWorkers:       45,
	}
}

// harvestOutcome is the food balance of one tick.
type harvestOutcome struct {
	workers   int
	produced  float64
	consumed  float64
	delta     float64
	foodAfter float64
}

// harvest computes production and consumption. The production noise is drawn
// before the consumption noise.
func harvest(p Params, population int, food float64, season Season, ev YearEvents, pos int, src entropy.Source) harvestOutcome {
	workers := Workers(population)

	noiseProd := entropy.Uniform(src, -p.ProductionNoise, p.ProductionNoise)
	noiseCons := entropy.Uniform(src, -p.ConsumptionNoise, p.ConsumptionNoise)
	perPerson := math.Max(0.1, p.ConsumptionPerPerson*(1+noiseCons))

	golden := 1.0
	if ev.Golden && goldenWindow(pos) {
		golden = 2.0
	}
	perWorker := math.Max(0, p.ProductionPerWorker*season.Factor*ev.Harvest.Factor()*golden*(1+noiseProd))

	out := harvestOutcome{
		workers:  workers,
		produced: float64(workers) * perWorker,
		consumed: float64(population) * perPerson,
	}
	out.delta = out.produced - out.consumed
	out.foodAfter = math.Max(0, food+out.delta)
	return out
}

// applyRot spoils a fraction of the stores. It returns the amount lost.
func applyRot(food float64, src entropy.Source) (float64, float64) {
	if food <= 0 {
		return food, 0
	}
	loss := food * entropy.Uniform(src, 0.20, 0.50)
	return food - loss, loss
}
