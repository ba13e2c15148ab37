package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

func writeCredentials(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".cdsapirc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCDSCredentials(t *testing.T) {
	creds, err := LoadCDSCredentials(writeCredentials(t, "url: https://cds.example.org/api/\nkey: abc-123\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://cds.example.org/api", creds.URL)
	assert.Equal(t, "abc-123", creds.Key)

	creds, err = LoadCDSCredentials(writeCredentials(t, "key: only-key\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCDSURL, creds.URL)

	_, err = LoadCDSCredentials(writeCredentials(t, "url: https://cds.example.org/api\n"))
	assert.ErrorIs(t, err, climate.ErrNoCredentials)

	_, err = LoadCDSCredentials(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, climate.ErrNoCredentials)
}

type cdsFake struct {
	server   *httptest.Server
	polls    atomic.Int32
	failPoll atomic.Int32 // polls left to answer with 503
	finalJob string

	mu        sync.Mutex
	submitted eraRequest
	href      string
}

func (f *cdsFake) setHref(href string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.href = href
}

func (f *cdsFake) lastSubmitted() eraRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func newCDSFake(t *testing.T, finalStatus string) *cdsFake {
	t.Helper()
	f := &cdsFake{finalJob: finalStatus, href: "/download/job-1.nc"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /retrieve/v1/processes/reanalysis-era5-single-levels/execution", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		var body struct {
			Inputs eraRequest `json:"inputs"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.submitted = body.Inputs
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"jobID":"job-1","status":"accepted"}`))
	})
	mux.HandleFunc("GET /retrieve/v1/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		if f.failPoll.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		status := "running"
		if f.polls.Add(1) > 1 {
			status = f.finalJob
		}
		_ = json.NewEncoder(w).Encode(cdsJob{JobID: "job-1", Status: status})
	})
	mux.HandleFunc("GET /retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		href := f.href
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"asset": map[string]any{"value": map[string]string{"href": href, "type": "application/netcdf"}},
		})
	})
	mux.HandleFunc("GET /download/job-1.nc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		_, _ = w.Write([]byte("CDF\x01grid"))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestCDS(t *testing.T, f *cdsFake) (*CDSProvider, string) {
	t.Helper()
	gridDir := filepath.Join(t.TempDir(), "era5")
	creds := writeCredentials(t, "url: "+f.server.URL+"\nkey: secret\n")
	p := NewCDSProvider(f.server.Client(), CDSConfig{
		CredentialsPath: creds,
		GridDir:         gridDir,
		PollInterval:    time.Millisecond,
	}, climate.NewGenerator(8))
	return p, gridDir
}

func TestCDSFetch(t *testing.T) {
	f := newCDSFake(t, "successful")
	p, gridDir := newTestCDS(t, f)

	req := climate.Request{Lat: 48.8566, Lon: 2.3522, StartYear: 2020, EndYear: 2022}
	series, err := p.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, climate.SourcePrimaryAPI, series.DataSource)
	assert.Equal(t, []int{2020, 2021, 2022}, series.Years)
	assert.Len(t, series.Temperatures, 3)
	assert.Equal(t, climate.Coordinates{Lat: 48.8566, Lon: 2.3522}, series.Location)

	assert.Equal(t, filepath.Join(gridDir, "era5_48.8566_2.3522_2020-2022.nc"), series.GridFile)
	grid, err := os.ReadFile(series.GridFile)
	require.NoError(t, err)
	assert.Equal(t, "CDF\x01grid", string(grid))

	submitted := f.lastSubmitted()
	assert.Equal(t, []string{"2020", "2021", "2022"}, submitted.Year)
	assert.Equal(t, []string{"2m_temperature"}, submitted.Variable)
	assert.Len(t, submitted.Month, 12)
	assert.InDeltaSlice(t, []float64{48.9566, 2.2522, 48.7566, 2.4522}, submitted.Area, 1e-9)
	assert.Equal(t, "netcdf", submitted.DataFormat)
	assert.Equal(t, int32(2), f.polls.Load())
}

func TestCDSFailedJob(t *testing.T) {
	f := newCDSFake(t, "failed")
	p, gridDir := newTestCDS(t, f)

	_, err := p.Fetch(context.Background(), climate.Request{Lat: 1, Lon: 1, StartYear: 2020, EndYear: 2020})
	assert.ErrorIs(t, err, climate.ErrJobFailed)
	assert.NoDirExists(t, gridDir)
}

func TestCDSWithoutCredentials(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	p := NewCDSProvider(srv.Client(), CDSConfig{
		CredentialsPath: filepath.Join(t.TempDir(), ".cdsapirc"),
	}, climate.NewGenerator(1))

	_, err := p.Fetch(context.Background(), climate.Request{Lat: 1, Lon: 1, StartYear: 2020, EndYear: 2020})
	assert.ErrorIs(t, err, climate.ErrNoCredentials)
	assert.Zero(t, hits.Load())
	assert.Equal(t, climate.SourcePrimaryAPI, p.Name())
}

func TestCDSCancelledWhilePolling(t *testing.T) {
	f := newCDSFake(t, "running")
	p, _ := newTestCDS(t, f)
	p.cfg.PollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Fetch(ctx, climate.Request{Lat: 1, Lon: 1, StartYear: 2020, EndYear: 2020})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCDSRetriesTransientPollErrors(t *testing.T) {
	f := newCDSFake(t, "successful")
	f.failPoll.Store(2)
	p, _ := newTestCDS(t, f)

	series, err := p.Fetch(context.Background(), climate.Request{Lat: 1, Lon: 1, StartYear: 2020, EndYear: 2020})
	require.NoError(t, err)
	assert.Equal(t, climate.SourcePrimaryAPI, series.DataSource)
	assert.Equal(t, int32(2), f.polls.Load())
}

func TestCDSGivesUpWhenPollKeepsFailing(t *testing.T) {
	f := newCDSFake(t, "successful")
	f.failPoll.Store(100)
	p, _ := newTestCDS(t, f)

	_, err := p.Fetch(context.Background(), climate.Request{Lat: 1, Lon: 1, StartYear: 2020, EndYear: 2020})
	assert.ErrorIs(t, err, errServerError)
	assert.Equal(t, int32(100-3), f.failPoll.Load(), "one attempt plus two retries")
}

func TestCDSTokenNotSentToForeignHost(t *testing.T) {
	var token atomic.Value
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token.Store(r.Header.Get("PRIVATE-TOKEN"))
		_, _ = w.Write([]byte("CDF\x01grid"))
	}))
	defer storage.Close()

	f := newCDSFake(t, "successful")
	f.setHref(storage.URL + "/bucket/job-1.nc")
	p, _ := newTestCDS(t, f)

	series, err := p.Fetch(context.Background(), climate.Request{Lat: 1, Lon: 1, StartYear: 2020, EndYear: 2020})
	require.NoError(t, err)
	assert.FileExists(t, series.GridFile)
	assert.Equal(t, "", token.Load())
}
