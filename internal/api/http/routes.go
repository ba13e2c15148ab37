package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

var validate = validator.New()

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Service   *climate.Service
	Locations []climate.Location
	// Geocoder is optional; without it /point requires lat and lon.
	Geocoder  climate.Geocoder
	StartYear int
	EndYear   int
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1/climate")

	v1.Get("/cities", func(c *fiber.Ctx) error {
		rs, err := deps.Service.Latest(c.UserContext(), deps.Locations)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read climate data")
		}
		if rs.Len() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no climate data generated yet")
		}
		return c.JSON(rs)
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		loc, err := deps.lookupCity(c)
		if err != nil {
			return err
		}
		snap, err := deps.Service.GetLatest(c.UserContext(), loc)
		if err != nil {
			return notFoundOr500(err, "no climate data for requested city")
		}
		return c.JSON(snap)
	})

	v1.Get("/stripes", func(c *fiber.Ctx) error {
		loc, err := deps.lookupCity(c)
		if err != nil {
			return err
		}
		snap, err := deps.Service.GetLatest(c.UserContext(), loc)
		if err != nil {
			return notFoundOr500(err, "no climate data for requested city")
		}
		return c.JSON(fiber.Map{
			"name":        loc.Name,
			"data_source": snap.Series.DataSource,
			"stripes":     climate.Stripes(snap.Series),
		})
	})

	v1.Get("/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc, err := deps.findLocation(req.City)
		if err != nil {
			return err
		}
		snapshots, err := deps.Service.GetRange(c.UserContext(), loc, req.From, req.To)
		if err != nil {
			return notFoundOr500(err, "no climate history for requested range")
		}

		return c.JSON(fiber.Map{
			"name":      loc.Name,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})

	v1.Get("/point", func(c *fiber.Ctx) error {
		req, err := deps.bindPoint(c)
		if err != nil {
			return err
		}
		series, err := deps.Service.Select(c.UserContext(), climate.Request{
			Lat:       *req.Lat,
			Lon:       *req.Lon,
			StartYear: req.StartYear,
			EndYear:   req.EndYear,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "request cancelled")
		}
		return c.JSON(series)
	})
}

func notFoundOr500(err error, msg string) error {
	if errors.Is(err, climate.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, msg)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read climate data")
}

// cityQuery identifies one of the configured locations.
type cityQuery struct {
	City string `validate:"required"`
}

func (d Deps) lookupCity(c *fiber.Ctx) (climate.Location, error) {
	q := cityQuery{City: strings.TrimSpace(c.Query("city"))}
	if err := validate.Struct(q); err != nil {
		return climate.Location{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return d.findLocation(q.City)
}

func (d Deps) findLocation(city string) (climate.Location, error) {
	key := climate.Location{Name: city}.Key()
	for _, l := range d.Locations {
		if l.Key() == key {
			return l, nil
		}
	}
	return climate.Location{}, fiber.NewError(fiber.StatusNotFound, "unknown city")
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	City string    `validate:"required"`
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.City = strings.TrimSpace(c.Query("city"))

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// pointQuery holds query parameters for an on-demand series.
type pointQuery struct {
	Lat       *float64 `validate:"required,gte=-90,lte=90"`
	Lon       *float64 `validate:"required,gte=-180,lte=180"`
	StartYear int      `validate:"gte=1900,lte=2100"`
	EndYear   int      `validate:"gtefield=StartYear,lte=2100"`
}

func (d Deps) bindPoint(c *fiber.Ctx) (pointQuery, error) {
	q := pointQuery{StartYear: d.StartYear, EndYear: d.EndYear}

	var err error
	if q.Lat, err = parseOptionalFloat(c.Query("lat")); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid lat")
	}
	if q.Lon, err = parseOptionalFloat(c.Query("lon")); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid lon")
	}
	if s := c.Query("start"); s != "" {
		if q.StartYear, err = strconv.Atoi(s); err != nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid start year")
		}
	}
	if s := c.Query("end"); s != "" {
		if q.EndYear, err = strconv.Atoi(s); err != nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid end year")
		}
	}

	if (q.Lat == nil || q.Lon == nil) && c.Query("city") != "" {
		if d.Geocoder == nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "geocoding is not configured; provide lat and lon")
		}
		lat, lon, err := d.Geocoder.Geocode(c.UserContext(), c.Query("city"), c.Query("country"))
		if err != nil {
			return q, fiber.NewError(fiber.StatusBadGateway, "failed to geocode city")
		}
		q.Lat, q.Lon = &lat, &lon
	}

	if err := validate.Struct(q); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return q, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
