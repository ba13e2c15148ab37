package climate

import (
	"slices"
	"time"

	"github.com/dolthub/swiss"
)

type yearAccumulator struct {
	sum   float64
	count int
}

// AnnualMeans groups daily readings by calendar year and averages them.
// dates are "2006-01-02" strings parallel to temps; nil temperatures and
// unparseable dates are skipped. Only years within [startYear, endYear] are
// kept and the output is sorted by year.
func AnnualMeans(dates []string, temps []*float64, startYear, endYear int) ([]int, []float64) {
	n := min(len(dates), len(temps))
	buckets := swiss.NewMap[int, *yearAccumulator](uint32(max(endYear-startYear+1, 1)))

	for i := 0; i < n; i++ {
		if temps[i] == nil {
			continue
		}
		day, err := time.Parse(time.DateOnly, dates[i])
		if err != nil {
			continue
		}
		year := day.Year()
		if year < startYear || year > endYear {
			continue
		}

		acc, ok := buckets.Get(year)
		if !ok {
			acc = &yearAccumulator{}
			buckets.Put(year, acc)
		}
		acc.sum += *temps[i]
		acc.count++
	}

	years := make([]int, 0, buckets.Count())
	buckets.Iter(func(year int, _ *yearAccumulator) bool {
		years = append(years, year)
		return false
	})
	slices.Sort(years)

	means := make([]float64, 0, len(years))
	for _, year := range years {
		acc, _ := buckets.Get(year)
		means = append(means, acc.sum/float64(acc.count))
	}
	return years, means
}
