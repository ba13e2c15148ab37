package climate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestAnnualMeans(t *testing.T) {
	dates := []string{
		"2001-06-01", "2000-01-01", "2000-12-31", "2001-01-01",
		"2001-07-01", "1999-12-31", "not-a-date", "2002-01-01",
	}
	temps := []*float64{
		ptr(14), ptr(2), ptr(4), nil,
		ptr(16), ptr(100), ptr(100), ptr(-3),
	}

	years, means := AnnualMeans(dates, temps, 2000, 2001)

	assert.Equal(t, []int{2000, 2001}, years)
	assert.InDeltaSlice(t, []float64{3, 15}, means, 1e-9)
}

func TestAnnualMeansYearWithOnlyNulls(t *testing.T) {
	dates := []string{"2000-01-01", "2001-01-01", "2002-01-01"}
	temps := []*float64{ptr(1), nil, ptr(3)}

	years, means := AnnualMeans(dates, temps, 2000, 2002)

	assert.Equal(t, []int{2000, 2002}, years)
	assert.Equal(t, []float64{1, 3}, means)
}

func TestAnnualMeansEmpty(t *testing.T) {
	years, means := AnnualMeans(nil, nil, 2000, 2010)
	assert.Empty(t, years)
	assert.Empty(t, means)

	years, means = AnnualMeans([]string{"1990-01-01"}, []*float64{ptr(10)}, 2000, 2010)
	assert.Empty(t, years)
	assert.Empty(t, means)
}
