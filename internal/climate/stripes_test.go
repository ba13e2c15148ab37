package climate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeColor(t *testing.T) {
	assert.Equal(t, "#08306b", StripeColor(10, 10, 20), "coldest")
	assert.Equal(t, "#67000d", StripeColor(20, 10, 20), "warmest")
	assert.Equal(t, "#deebf7", StripeColor(15, 10, 20), "middle")
	assert.Equal(t, "#08306b", StripeColor(5, 10, 20), "clamped below")
	assert.Equal(t, "#67000d", StripeColor(25, 10, 20), "clamped above")
}

func TestStripesFlatSeries(t *testing.T) {
	s := ClimateSeries{Years: []int{2000, 2001}, Temperatures: []float64{12.5, 12.5}}

	stripes := Stripes(s)
	require.Len(t, stripes, 2)
	for _, st := range stripes {
		assert.Equal(t, "#deebf7", st.Color)
	}
}

func TestStripes(t *testing.T) {
	s := ClimateSeries{Years: []int{2000, 2001, 2002}, Temperatures: []float64{10, 20, 15}}

	stripes := Stripes(s)
	require.Len(t, stripes, 3)
	assert.Equal(t, Stripe{Year: 2000, Temperature: 10, Color: "#08306b"}, stripes[0])
	assert.Equal(t, Stripe{Year: 2001, Temperature: 20, Color: "#67000d"}, stripes[1])
	assert.Equal(t, 2002, stripes[2].Year)

	assert.Nil(t, Stripes(ClimateSeries{}))
}
