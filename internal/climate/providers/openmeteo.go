package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

// DefaultOpenMeteoArchiveURL is the historical weather endpoint of Open-Meteo.
const DefaultOpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteoProvider implements climate.Source on top of the Open-Meteo archive API.
// It is the secondary tier of the fallback chain.
type OpenMeteoProvider struct {
	baseURL string
	httpCfg HTTPClientConfig
}

// NewOpenMeteoProvider creates the provider. client should carry a timeout:
// this is the only call of the chain that is bounded by one.
func NewOpenMeteoProvider(client *http.Client, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoArchiveURL
	}
	return &OpenMeteoProvider{
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: singleAttempt,
		},
	}
}

// Name reports the secondary tier.
func (p *OpenMeteoProvider) Name() climate.DataSource {
	return climate.SourceSecondaryAPI
}

// Fetch implements climate.Source. A failure is reported for this call only;
// the next call contacts the archive again.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, req climate.Request) (climate.ClimateSeries, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(req.Lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(req.Lon, 'f', -1, 64))
		values.Set("start_date", fmt.Sprintf("%04d-01-01", req.StartYear))
		values.Set("end_date", fmt.Sprintf("%04d-12-31", req.EndYear))
		values.Set("daily", "temperature_2m_mean")
		values.Set("timezone", "auto")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, newCircuitBreaker("openmeteo"), buildRequest)
	if err != nil {
		return climate.ClimateSeries{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily *struct {
			Time  []string   `json:"time"`
			TMean []*float64 `json:"temperature_2m_mean"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return climate.ClimateSeries{}, fmt.Errorf("%w: %v", climate.ErrMalformedResponse, err)
	}
	if payload.Daily == nil {
		return climate.ClimateSeries{}, fmt.Errorf("%w: missing daily block", climate.ErrMalformedResponse)
	}
	if len(payload.Daily.Time) != len(payload.Daily.TMean) {
		return climate.ClimateSeries{}, fmt.Errorf("%w: %d dates for %d values",
			climate.ErrMalformedResponse, len(payload.Daily.Time), len(payload.Daily.TMean))
	}

	years, temps := climate.AnnualMeans(payload.Daily.Time, payload.Daily.TMean, req.StartYear, req.EndYear)
	if len(years) == 0 {
		return climate.ClimateSeries{}, climate.ErrNoData
	}

	return climate.ClimateSeries{
		Years:        years,
		Temperatures: temps,
		Location:     climate.Coordinates{Lat: req.Lat, Lon: req.Lon},
		DataSource:   climate.SourceSecondaryAPI,
	}, nil
}
