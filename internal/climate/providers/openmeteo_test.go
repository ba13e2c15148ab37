package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

var meteoReq = climate.Request{Lat: 45.764, Lon: 4.8357, StartYear: 2000, EndYear: 2001}

func meteoServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestOpenMeteoFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "45.764", q.Get("latitude"))
		assert.Equal(t, "4.8357", q.Get("longitude"))
		assert.Equal(t, "2000-01-01", q.Get("start_date"))
		assert.Equal(t, "2001-12-31", q.Get("end_date"))
		assert.Equal(t, "temperature_2m_mean", q.Get("daily"))
		assert.Equal(t, "auto", q.Get("timezone"))

		_, _ = w.Write([]byte(`{
			"latitude": 45.76,
			"daily": {
				"time": ["2000-01-01", "2000-07-01", "2001-01-01", "2001-07-01"],
				"temperature_2m_mean": [3.0, 21.0, null, 19.5]
			}
		}`))
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(srv.Client(), srv.URL)
	series, err := p.Fetch(context.Background(), meteoReq)
	require.NoError(t, err)

	assert.Equal(t, []int{2000, 2001}, series.Years)
	assert.InDeltaSlice(t, []float64{12, 19.5}, series.Temperatures, 1e-9)
	assert.Equal(t, climate.SourceSecondaryAPI, series.DataSource)
	assert.Equal(t, climate.Coordinates{Lat: 45.764, Lon: 4.8357}, series.Location)
}

func TestOpenMeteoMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `<html>`,
		"no daily block": `{"latitude": 1}`,
		"length skew":    `{"daily":{"time":["2000-01-01","2000-01-02"],"temperature_2m_mean":[1]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := meteoServer(t, http.StatusOK, body)
			_, err := NewOpenMeteoProvider(srv.Client(), srv.URL).Fetch(context.Background(), meteoReq)
			assert.ErrorIs(t, err, climate.ErrMalformedResponse)
		})
	}
}

func TestOpenMeteoNoUsableYears(t *testing.T) {
	srv, _ := meteoServer(t, http.StatusOK, `{"daily":{"time":["2000-01-01"],"temperature_2m_mean":[null]}}`)
	_, err := NewOpenMeteoProvider(srv.Client(), srv.URL).Fetch(context.Background(), meteoReq)
	assert.ErrorIs(t, err, climate.ErrNoData)
}

func TestOpenMeteoHTTPErrors(t *testing.T) {
	srv, hits := meteoServer(t, http.StatusBadRequest, `{"error":true,"reason":"bad date"}`)
	_, err := NewOpenMeteoProvider(srv.Client(), srv.URL).Fetch(context.Background(), meteoReq)
	assert.ErrorIs(t, err, errUnexpected)
	assert.Equal(t, int32(1), hits.Load(), "single attempt")

	srv, _ = meteoServer(t, http.StatusTooManyRequests, ``)
	_, err = NewOpenMeteoProvider(srv.Client(), srv.URL).Fetch(context.Background(), meteoReq)
	assert.ErrorIs(t, err, errRateLimited)
}

func TestOpenMeteoRecoversAfterRateLimiting(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"daily":{"time":["2000-01-01","2001-01-01"],"temperature_2m_mean":[10,11]}}`))
	}))
	defer srv.Close()
	p := NewOpenMeteoProvider(srv.Client(), srv.URL)

	for i := 0; i < 3; i++ {
		_, err := p.Fetch(context.Background(), meteoReq)
		require.ErrorIs(t, err, errRateLimited)
	}
	for i := 0; i < 2; i++ {
		series, err := p.Fetch(context.Background(), meteoReq)
		require.NoError(t, err)
		assert.Equal(t, []int{2000, 2001}, series.Years)
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestOpenMeteoServerErrorsDoNotSkipLaterCalls(t *testing.T) {
	srv, hits := meteoServer(t, http.StatusBadGateway, ``)
	p := NewOpenMeteoProvider(srv.Client(), srv.URL)

	for i := 0; i < 5; i++ {
		_, err := p.Fetch(context.Background(), meteoReq)
		require.ErrorIs(t, err, errServerError)
		assert.False(t, errors.Is(err, errCircuitOpen))
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestSelectorStillTriesArchiveAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"daily":{"time":["2000-06-01","2001-06-01"],"temperature_2m_mean":[14,15]}}`))
	}))
	defer srv.Close()

	selector := climate.NewSelector(climate.NewGenerator(1), zerolog.Nop(), NewOpenMeteoProvider(srv.Client(), srv.URL))

	for i := 0; i < 3; i++ {
		assert.Equal(t, climate.SourceSynthetic, selector.Select(context.Background(), meteoReq).DataSource)
	}
	got := selector.Select(context.Background(), meteoReq)
	assert.Equal(t, climate.SourceSecondaryAPI, got.DataSource)
	assert.Equal(t, []float64{14, 15}, got.Temperatures)
	assert.Equal(t, int32(4), hits.Load())
}

func TestOpenMeteoCancelled(t *testing.T) {
	srv, hits := meteoServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOpenMeteoProvider(srv.Client(), srv.URL).Fetch(ctx, meteoReq)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}
