package climate

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

const (
	// WarmingPerYear is the linear warming trend in °C per year.
	WarmingPerYear = 0.02
	// NoiseStdDev is the standard deviation of the interannual variability in °C.
	NoiseStdDev = 1.5

	seasonalAmplitude = 5.0
)

// Generator synthesizes plausible annual temperature series. It is the last
// tier of the fallback chain and never fails.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a Generator. A zero seed draws from a random source,
// any other value makes the noise reproducible.
func NewGenerator(seed uint64) *Generator {
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(seed, seed)
	}
	return &Generator{rnd: rand.New(src)}
}

// BaseTemperature is the latitude-dependent baseline: colder towards the poles.
func BaseTemperature(lat float64) float64 {
	return 20 - 0.5*math.Abs(lat)
}

// seasonalTerm mirrors the historical model. For integer years the fractional
// part is always zero, so this contributes nothing.
func seasonalTerm(year int) float64 {
	_, frac := math.Modf(float64(year))
	return seasonalAmplitude * math.Sin(2*math.Pi*frac)
}

// Generate returns one temperature per year in [startYear, endYear].
// The longitude is not part of the model and is reported as 0.
func (g *Generator) Generate(startYear, endYear int, lat float64) ClimateSeries {
	n := endYear - startYear + 1
	if n < 0 {
		n = 0
	}
	years := make([]int, 0, n)
	temps := make([]float64, 0, n)

	base := BaseTemperature(lat)

	g.mu.Lock()
	defer g.mu.Unlock()

	for year := startYear; year <= endYear; year++ {
		trend := WarmingPerYear * float64(year-startYear)
		noise := g.rnd.NormFloat64() * NoiseStdDev
		t := base + trend + seasonalTerm(year) + noise

		years = append(years, year)
		temps = append(temps, math.Round(t*10.0)/10.0)
	}

	return ClimateSeries{
		Years:        years,
		Temperatures: temps,
		Location:     Coordinates{Lat: lat, Lon: 0},
		DataSource:   SourceSynthetic,
	}
}

// Name reports the synthetic tier.
func (g *Generator) Name() DataSource {
	return SourceSynthetic
}

// Fetch implements Source.
func (g *Generator) Fetch(_ context.Context, req Request) (ClimateSeries, error) {
	s := g.Generate(req.StartYear, req.EndYear, req.Lat)
	s.Location = Coordinates{Lat: req.Lat, Lon: req.Lon}
	return s, nil
}
