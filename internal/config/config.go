package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
type AppConfig struct {
	Years     YearsConfig     `mapstructure:"years"`
	Output    OutputConfig    `mapstructure:"output"`
	Locations LocationsConfig `mapstructure:"locations"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	S3        S3Config        `mapstructure:"s3"`

	// Resolved location list: from Locations.File when present, otherwise the defaults.
	LocationList []LocationEntry `mapstructure:"-"`
}

type YearsConfig struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
	// Seed makes synthetic noise reproducible; 0 means random.
	Seed uint64 `mapstructure:"seed"`
}

type OutputConfig struct {
	Dir            string `mapstructure:"dir"`
	CitiesFile     string `mapstructure:"cities_file"`
	GlobalFile     string `mapstructure:"global_file"`
	Description    string `mapstructure:"description"`
	SampleLocation string `mapstructure:"sample_location"`
}

type LocationsConfig struct {
	File string `mapstructure:"file"`
}

type SourcesConfig struct {
	RequestDelay time.Duration   `mapstructure:"request_delay"`
	CDS          CDSConfig       `mapstructure:"cds"`
	OpenMeteo    OpenMeteoConfig `mapstructure:"openmeteo"`
}

type CDSConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ConfigPath   string        `mapstructure:"config_path"`
	Dataset      string        `mapstructure:"dataset"`
	GridDir      string        `mapstructure:"grid_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type OpenMeteoConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeocoderConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type StoreConfig struct {
	// HistoryDB is a SQLite file path; empty keeps history in memory only.
	HistoryDB  string        `mapstructure:"history_db"`
	MaxHistory int           `mapstructure:"max_history"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	RegenerateInterval time.Duration `mapstructure:"regenerate_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether publishing to object storage is configured.
func (s S3Config) Enabled() bool {
	return s.Endpoint != ""
}

// Load reads configuration from an optional .env file, an optional config.yaml
// and CLIMATE_* environment variables (CLIMATE_OUTPUT_DIR → output.dir).
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file found or error loading it")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	v.SetEnvPrefix("CLIMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	locs, err := LoadLocations(cfg.Locations.File)
	if err != nil {
		return nil, err
	}
	cfg.LocationList = locs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("years.start", 1975)
	v.SetDefault("years.end", 2024)
	v.SetDefault("years.seed", 0)

	v.SetDefault("output.dir", "data")
	v.SetDefault("output.cities_file", "french_cities_climate.json")
	v.SetDefault("output.global_file", "global_climate_data.json")
	v.SetDefault("output.description", "Realistic simulated climate data for the Climate Striper")
	v.SetDefault("output.sample_location", "Paris")

	v.SetDefault("locations.file", "configs/locations.yaml")

	v.SetDefault("sources.request_delay", "1s")
	v.SetDefault("sources.cds.enabled", true)
	v.SetDefault("sources.cds.config_path", "~/.cdsapirc")
	v.SetDefault("sources.cds.dataset", "reanalysis-era5-single-levels")
	v.SetDefault("sources.cds.grid_dir", "data/era5")
	v.SetDefault("sources.cds.poll_interval", "5s")
	v.SetDefault("sources.openmeteo.enabled", true)
	v.SetDefault("sources.openmeteo.url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("sources.openmeteo.timeout", "30s")

	v.SetDefault("geocoder.api_key", "")

	v.SetDefault("store.history_db", "")
	v.SetDefault("store.max_history", 50)
	v.SetDefault("store.max_age", "0s")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.regenerate_interval", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "climate-stripes")
	v.SetDefault("s3.prefix", "data")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)
}

// Validate checks that required configuration fields are present and sane.
func (c *AppConfig) Validate() error {
	var errs []string

	if c.Years.Start <= 0 {
		errs = append(errs, fmt.Sprintf("years.start must be positive, got %d", c.Years.Start))
	}
	if c.Years.End < c.Years.Start {
		errs = append(errs, fmt.Sprintf("years.end (%d) must not be before years.start (%d)", c.Years.End, c.Years.Start))
	}
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir is required")
	}
	if c.Output.CitiesFile == "" || c.Output.GlobalFile == "" {
		errs = append(errs, "output.cities_file and output.global_file are required")
	}
	if len(c.LocationList) == 0 {
		errs = append(errs, "at least one location is required")
	}
	if c.Sources.RequestDelay < 0 {
		errs = append(errs, "sources.request_delay must not be negative")
	}
	if c.Sources.OpenMeteo.Timeout <= 0 {
		errs = append(errs, "sources.openmeteo.timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.S3.Enabled() && c.S3.Bucket == "" {
		errs = append(errs, "s3.bucket is required when s3.endpoint is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
