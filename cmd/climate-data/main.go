package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/climate-stripes-data/internal/api/http"
	"github.com/i474232898/climate-stripes-data/internal/climate"
	"github.com/i474232898/climate-stripes-data/internal/climate/providers"
	"github.com/i474232898/climate-stripes-data/internal/config"
	"github.com/i474232898/climate-stripes-data/internal/logging"
	"github.com/i474232898/climate-stripes-data/internal/metrics"
	"github.com/i474232898/climate-stripes-data/internal/output"
	"github.com/i474232898/climate-stripes-data/internal/pipeline"
	"github.com/i474232898/climate-stripes-data/internal/scheduler"
	"github.com/i474232898/climate-stripes-data/internal/store"
)

const usage = `usage: climate-data [generate|serve] [flags]

  generate  fetch or synthesize the series once and write the JSON files (default)
  serve     regenerate periodically and serve the files and a JSON API
`

func main() {
	mode, args := "generate", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode, args = args[0], args[1:]
	}
	if mode != "generate" && mode != "serve" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	startYear := fs.Int("start", 0, "first year of the series (overrides years.start)")
	endYear := fs.Int("end", 0, "last year of the series (overrides years.end)")
	outDir := fs.String("out", "", "output directory (overrides output.dir)")
	seed := fs.Uint64("seed", 0, "seed for the synthetic generator, 0 for random (overrides years.seed)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *startYear != 0 {
		cfg.Years.Start = *startYear
	}
	if *endYear != 0 {
		cfg.Years.End = *endYear
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *seed != 0 {
		cfg.Years.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer app.close()

	switch mode {
	case "serve":
		err = serve(ctx, cfg, app, logger)
	default:
		err = generate(ctx, app, logger)
	}
	if err != nil {
		app.close()
		logger.Fatal().Err(err).Str("mode", mode).Msg("climate-data failed")
	}
}

// application holds the wired components shared by both modes.
type application struct {
	service   *climate.Service
	pipeline  *pipeline.Pipeline
	writer    *output.Writer
	geocoder  climate.Geocoder
	locations []climate.Location
	startYear int
	endYear   int
	closers   []func() error
}

func (a *application) close() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

func build(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*application, error) {
	app := &application{startYear: cfg.Years.Start, endYear: cfg.Years.End}

	generator := climate.NewGenerator(cfg.Years.Seed)

	// Fallback chain: ERA5 grid retrieval, Open-Meteo archive, then synthetic.
	var sources []climate.Source
	if cfg.Sources.CDS.Enabled {
		sources = append(sources, providers.NewCDSProvider(&http.Client{}, providers.CDSConfig{
			CredentialsPath: cfg.Sources.CDS.ConfigPath,
			Dataset:         cfg.Sources.CDS.Dataset,
			GridDir:         cfg.Sources.CDS.GridDir,
			PollInterval:    cfg.Sources.CDS.PollInterval,
		}, generator))
	}
	if cfg.Sources.OpenMeteo.Enabled {
		client := &http.Client{Timeout: cfg.Sources.OpenMeteo.Timeout}
		sources = append(sources, providers.NewOpenMeteoProvider(client, cfg.Sources.OpenMeteo.URL))
	}
	selector := climate.NewSelector(generator, logger, sources...)

	var snapshots climate.Store = store.NewMemoryStore(cfg.Store.MaxHistory, cfg.Store.MaxAge)
	if cfg.Store.HistoryDB != "" {
		db, err := store.NewSQLite(cfg.Store.HistoryDB, cfg.Store.MaxHistory, cfg.Store.MaxAge, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		snapshots = db
	}
	app.service = climate.NewService(selector, snapshots, cfg.Sources.RequestDelay, logger)

	if cfg.Geocoder.APIKey != "" {
		app.geocoder = providers.NewGoogleGeocoder(cfg.Geocoder.APIKey)
	}
	app.locations = pipeline.ResolveLocations(ctx, cfg.LocationList, app.geocoder, logger)
	if len(app.locations) == 0 {
		app.close()
		return nil, fmt.Errorf("no location could be resolved")
	}

	app.writer = output.NewWriter(cfg.Output.Dir, cfg.Output.CitiesFile, cfg.Output.GlobalFile, logger)

	var publisher pipeline.Publisher
	if cfg.S3.Enabled() {
		s3, err := output.NewS3Publisher(output.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			app.close()
			return nil, err
		}
		publisher = s3
	}

	app.pipeline = pipeline.New(app.service, app.writer, publisher, pipeline.Options{
		Locations:   app.locations,
		Sample:      pipeline.SampleLocation(app.locations, cfg.Output.SampleLocation),
		StartYear:   cfg.Years.Start,
		EndYear:     cfg.Years.End,
		Description: cfg.Output.Description,
	}, logger)

	return app, nil
}

func generate(ctx context.Context, app *application, logger zerolog.Logger) error {
	res, err := app.pipeline.Run(ctx)
	if err != nil {
		return err
	}

	for _, name := range res.Cities.Names() {
		s, _ := res.Cities.Get(name)
		logger.Info().Str("location", name).Str("source", string(s.DataSource)).Int("years", len(s.Years)).Msg("series ready")
	}
	logger.Info().
		Str("cities_file", res.CitiesPath).
		Str("global_file", res.GlobalPath).
		Msg("climate data files written")
	return nil
}

func serve(ctx context.Context, cfg *config.AppConfig, app *application, logger zerolog.Logger) error {
	sched := scheduler.New(app.pipeline, cfg.Server.RegenerateInterval, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := fiber.New(fiber.Config{
		AppName:               "climate-data",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	srv.Use(fiberlogger.New())
	srv.Use(recover.New())
	srv.Use(metrics.Middleware())

	srv.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "climate-data",
			"locations": len(app.locations),
		})
	})
	srv.Get("/metrics", metrics.Handler())
	srv.Static("/data", app.writer.Dir())

	httpapi.RegisterRoutes(srv, httpapi.Deps{
		Service:   app.service,
		Locations: app.locations,
		Geocoder:  app.geocoder,
		StartYear: app.startYear,
		EndYear:   app.endYear,
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.Listen(addr); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	return nil
}
