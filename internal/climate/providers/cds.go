package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/climate-stripes-data/internal/climate"
	"github.com/i474232898/climate-stripes-data/internal/common"
)

const (
	// DefaultCDSURL is the Climate Data Store API root used when the
	// credentials file does not name one.
	DefaultCDSURL = "https://cds.climate.copernicus.eu/api"
	// DefaultCDSDataset is the ERA5 single-levels reanalysis collection.
	DefaultCDSDataset = "reanalysis-era5-single-levels"

	// areaMargin is the half-size in degrees of the box requested around a point.
	areaMargin = 0.1
)

// CDSCredentials is the content of a .cdsapirc file.
type CDSCredentials struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// LoadCDSCredentials reads a .cdsapirc file. Its "url: ..." / "key: ..." lines
// are valid YAML. A missing file or key yields climate.ErrNoCredentials.
func LoadCDSCredentials(path string) (CDSCredentials, error) {
	data, err := os.ReadFile(common.ExpandHome(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CDSCredentials{}, fmt.Errorf("%w: %s not found", climate.ErrNoCredentials, path)
		}
		return CDSCredentials{}, err
	}

	var creds CDSCredentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return CDSCredentials{}, fmt.Errorf("parse %s: %w", path, err)
	}
	creds.Key = strings.TrimSpace(creds.Key)
	if creds.Key == "" {
		return CDSCredentials{}, fmt.Errorf("%w: %s has no key", climate.ErrNoCredentials, path)
	}
	creds.URL = strings.TrimRight(strings.TrimSpace(creds.URL), "/")
	if creds.URL == "" {
		creds.URL = DefaultCDSURL
	}
	return creds, nil
}

// CDSConfig configures the ERA5 retrieval.
type CDSConfig struct {
	CredentialsPath string
	Dataset         string
	GridDir         string
	PollInterval    time.Duration
}

// CDSProvider implements climate.Source on top of the Copernicus Climate Data
// Store. It is the primary tier of the fallback chain: it submits an ERA5
// retrieval job around the point, waits for it and downloads the NetCDF grid.
// The grid is not decoded; the annual series attached to it comes from the
// synthetic model.
type CDSProvider struct {
	cfg         CDSConfig
	httpCfg     HTTPClientConfig
	pollBackoff BackoffConfig
	generator   *climate.Generator
}

// NewCDSProvider creates the provider. generator supplies the series attached
// to a downloaded grid.
func NewCDSProvider(client *http.Client, cfg CDSConfig, generator *climate.Generator) *CDSProvider {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultCDSDataset
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &CDSProvider{
		cfg: cfg,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: singleAttempt,
		},
		// Status reads are idempotent and may be retried.
		pollBackoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: cfg.PollInterval,
			MaxInterval:     4 * cfg.PollInterval,
		},
		generator: generator,
	}
}

// Name reports the primary tier.
func (p *CDSProvider) Name() climate.DataSource {
	return climate.SourcePrimaryAPI
}

// eraRequest is the body of an ERA5 single-levels retrieval.
type eraRequest struct {
	ProductType    []string  `json:"product_type"`
	Variable       []string  `json:"variable"`
	Year           []string  `json:"year"`
	Month          []string  `json:"month"`
	Day            []string  `json:"day"`
	Time           []string  `json:"time"`
	Area           []float64 `json:"area"`
	DataFormat     string    `json:"data_format"`
	DownloadFormat string    `json:"download_format"`
}

func newERARequest(req climate.Request) eraRequest {
	r := eraRequest{
		ProductType:    []string{"reanalysis"},
		Variable:       []string{"2m_temperature"},
		Area:           []float64{req.Lat + areaMargin, req.Lon - areaMargin, req.Lat - areaMargin, req.Lon + areaMargin},
		DataFormat:     "netcdf",
		DownloadFormat: "unarchived",
	}
	for y := req.StartYear; y <= req.EndYear; y++ {
		r.Year = append(r.Year, fmt.Sprintf("%d", y))
	}
	for m := 1; m <= 12; m++ {
		r.Month = append(r.Month, fmt.Sprintf("%02d", m))
	}
	for d := 1; d <= 31; d++ {
		r.Day = append(r.Day, fmt.Sprintf("%02d", d))
	}
	for h := 0; h < 24; h += 6 {
		r.Time = append(r.Time, fmt.Sprintf("%02d:00", h))
	}
	return r
}

type cdsJob struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

// cdsCall carries the state of one Fetch. The breaker lives as long as the
// call, so a failing poll loop stops early but the next call starts closed.
type cdsCall struct {
	*CDSProvider
	creds   CDSCredentials
	circuit *gobreaker.CircuitBreaker
}

// Fetch implements climate.Source.
func (p *CDSProvider) Fetch(ctx context.Context, req climate.Request) (climate.ClimateSeries, error) {
	creds, err := LoadCDSCredentials(p.cfg.CredentialsPath)
	if err != nil {
		return climate.ClimateSeries{}, err
	}
	if p.generator == nil {
		return climate.ClimateSeries{}, fmt.Errorf("cds provider has no series generator")
	}
	c := &cdsCall{CDSProvider: p, creds: creds, circuit: newCircuitBreaker("cds")}

	job, err := c.submit(ctx, req)
	if err != nil {
		return climate.ClimateSeries{}, fmt.Errorf("submit: %w", err)
	}
	if err := c.wait(ctx, job); err != nil {
		return climate.ClimateSeries{}, err
	}
	href, err := c.resultHref(ctx, job.JobID)
	if err != nil {
		return climate.ClimateSeries{}, fmt.Errorf("results: %w", err)
	}
	gridFile, err := c.download(ctx, href, req)
	if err != nil {
		return climate.ClimateSeries{}, fmt.Errorf("download: %w", err)
	}

	series := p.generator.Generate(req.StartYear, req.EndYear, req.Lat)
	series.Location = climate.Coordinates{Lat: req.Lat, Lon: req.Lon}
	series.DataSource = climate.SourcePrimaryAPI
	series.GridFile = gridFile
	return series, nil
}

func (c *cdsCall) submit(ctx context.Context, req climate.Request) (cdsJob, error) {
	body, err := json.Marshal(map[string]any{"inputs": newERARequest(req)})
	if err != nil {
		return cdsJob{}, err
	}

	u := fmt.Sprintf("%s/retrieve/v1/processes/%s/execution", c.creds.URL, url.PathEscape(c.cfg.Dataset))
	var job cdsJob
	if err := c.getJSON(ctx, http.MethodPost, u, body, singleAttempt, &job); err != nil {
		return cdsJob{}, err
	}
	if job.JobID == "" {
		return cdsJob{}, fmt.Errorf("%w: job id missing", climate.ErrMalformedResponse)
	}
	return job, nil
}

// wait polls the job until it succeeds or ends in a failed state.
func (c *cdsCall) wait(ctx context.Context, job cdsJob) error {
	u := fmt.Sprintf("%s/retrieve/v1/jobs/%s", c.creds.URL, url.PathEscape(job.JobID))
	for {
		switch {
		case job.Status == "successful":
			return nil
		case common.HasAny(job.Status, "failed", "dismissed", "rejected"):
			return fmt.Errorf("%w: job %s is %s", climate.ErrJobFailed, job.JobID, job.Status)
		}

		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := c.getJSON(ctx, http.MethodGet, u, nil, c.pollBackoff, &job); err != nil {
			return fmt.Errorf("poll: %w", err)
		}
	}
}

func (c *cdsCall) resultHref(ctx context.Context, jobID string) (string, error) {
	var payload struct {
		Asset struct {
			Value struct {
				Href string `json:"href"`
			} `json:"value"`
		} `json:"asset"`
	}
	u := fmt.Sprintf("%s/retrieve/v1/jobs/%s/results", c.creds.URL, url.PathEscape(jobID))
	if err := c.getJSON(ctx, http.MethodGet, u, nil, c.pollBackoff, &payload); err != nil {
		return "", err
	}
	if payload.Asset.Value.Href == "" {
		return "", fmt.Errorf("%w: asset href missing", climate.ErrMalformedResponse)
	}

	base, err := url.Parse(c.creds.URL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(payload.Asset.Value.Href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", climate.ErrMalformedResponse, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// sameHost reports whether u is served by the CDS API host. The access token
// is only sent there; result links may point at object storage.
func (c *cdsCall) sameHost(u string) bool {
	api, err := url.Parse(c.creds.URL)
	if err != nil {
		return false
	}
	target, err := url.Parse(u)
	if err != nil {
		return false
	}
	return strings.EqualFold(api.Host, target.Host)
}

// download streams the grid into GridDir through a temporary file.
func (c *cdsCall) download(ctx context.Context, href string, req climate.Request) (string, error) {
	withToken := c.sameHost(href)
	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodGet, href, nil)
		if err != nil {
			return nil, err
		}
		if withToken {
			r.Header.Set("PRIVATE-TOKEN", c.creds.Key)
		}
		return r, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(c.cfg.GridDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("era5_%.4f_%.4f_%d-%d.nc", req.Lat, req.Lon, req.StartYear, req.EndYear)
	path := filepath.Join(c.cfg.GridDir, name)

	tmp, err := os.CreateTemp(c.cfg.GridDir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

func (c *cdsCall) getJSON(ctx context.Context, method, u string, body []byte, backoff BackoffConfig, out any) error {
	cfg := c.httpCfg
	cfg.Backoff = backoff
	resp, err := doRequestWithResilience(ctx, cfg, c.circuit, func() (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, u, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("PRIVATE-TOKEN", c.creds.Key)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", climate.ErrMalformedResponse, err)
	}
	return nil
}
