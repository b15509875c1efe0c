package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/samsmart/pd-boxes/internal/telemetry"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *telemetry.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/records/current", func(c *fiber.Ctx) error {
		// Without a source, the latest readings of every accessible
		// source are returned.
		set, err := service.AllCurrent(c.Context(), c.Query("source"))
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(set)
	})

	v1.Get("/records/live", func(c *fiber.Ctx) error {
		var req liveQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := service.NLatest(c.Context(), req.Source, req.Sensor, req.Tag, req.N)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(fiber.Map{"records": records})
	})

	v1.Get("/records/historical", func(c *fiber.Ctx) error {
		var req historicalQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var records []telemetry.RawRecord
		var err error
		if req.Past > 0 {
			records, err = service.PastTimedelta(c.Context(), req.Source, req.Sensor, req.Tag, req.Past)
		} else {
			records, err = service.Historical(c.Context(), req.Source, req.Sensor, req.Tag, req.From, req.To)
		}
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(fiber.Map{"records": records})
	})

	v1.Get("/records", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table, report, err := service.TimeframeRecords(c.Context(), req.From, req.To)
		if err != nil {
			return mapServiceError(err)
		}
		return respondTable(c, service, table, report, req.tableOptions)
	})

	v1.Get("/households/:id/records", func(c *fiber.Ctx) error {
		var opts tableOptions
		if err := opts.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		household := c.Params("id")
		table, report, err := service.HouseholdRecords(c.Context(), household)
		if err != nil {
			return mapServiceError(err)
		}
		return respondTable(c, service, table, report, opts)
	})

	v1.Get("/timeframes", func(c *fiber.Ctx) error {
		if household := c.Query("household"); household != "" {
			return c.JSON(fiber.Map{
				"household":  household,
				"timeframes": service.Registry().HouseholdTimeframes(household),
			})
		}
		return c.JSON(fiber.Map{"bySource": service.Registry().TimeframesBySource()})
	})
}

// respondTable serializes an assembled table, downsampling it first when
// a window was requested. With a window, nominal columns are aggregated
// with "any true" and cardinal columns with the mean, matching the
// sensor kinds; normalization applies to the cardinal half only.
func respondTable(c *fiber.Ctx, service *telemetry.Service, table *telemetry.Table, report *telemetry.FetchReport, opts tableOptions) error {
	if opts.Window <= 0 {
		return c.JSON(fiber.Map{"table": table, "report": report})
	}

	sensors := service.Registry().Sensors()
	nominals, cardinals := telemetry.NominalsCardinals(table, sensors)

	downNom, err := telemetry.Downsample(nominals, opts.Window, telemetry.AnyTrue(), sensors)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	downCard, err := telemetry.Downsample(cardinals, opts.Window, telemetry.Mean(), sensors)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if opts.Normalize {
		downCard = telemetry.Normalize(downCard)
	}

	return c.JSON(fiber.Map{
		"window":    opts.Window.String(),
		"nominals":  downNom,
		"cardinals": downCard,
		"report":    report,
	})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, telemetry.ErrBadTag), errors.Is(err, telemetry.ErrUnknownSensor):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, telemetry.ErrRemoteUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "remote source unavailable")
	case errors.Is(err, telemetry.ErrRemoteData):
		return fiber.NewError(fiber.StatusBadGateway, "remote source returned malformed data")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch records")
	}
}

// liveQuery holds query parameters for the n-latest endpoint.
type liveQuery struct {
	Source string `validate:"required"`
	Sensor string `validate:"required"`
	Tag    string
	N      int `validate:"required,gte=1,lte=1000"`
}

func (q *liveQuery) bind(c *fiber.Ctx) error {
	q.Source = c.Query("source")
	q.Sensor = c.Query("sensor")
	q.Tag = c.Query("tag")
	q.N = c.QueryInt("n")
	return validate.Struct(q)
}

// historicalQuery holds query parameters for the historical endpoint.
// Either past or both from and to must be given.
type historicalQuery struct {
	Source string `validate:"required"`
	Sensor string `validate:"required"`
	Tag    string
	From   time.Time
	To     time.Time
	Past   time.Duration
}

func (q *historicalQuery) bind(c *fiber.Ctx) error {
	q.Source = c.Query("source")
	q.Sensor = c.Query("sensor")
	q.Tag = c.Query("tag")

	if err := validate.Struct(q); err != nil {
		return err
	}

	if pastStr := c.Query("past"); pastStr != "" {
		past, err := time.ParseDuration(pastStr)
		if err != nil || past <= 0 {
			return errors.New("past must be a positive duration")
		}
		q.Past = past
		return nil
	}

	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("either past or both from and to query parameters are required")
	}
	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}
	q.From, q.To = from, to
	return nil
}

// tableOptions holds the optional downsampling parameters of the
// assembled-table endpoints.
type tableOptions struct {
	Window    time.Duration
	Normalize bool
}

func (o *tableOptions) bind(c *fiber.Ctx) error {
	if windowStr := c.Query("window"); windowStr != "" {
		window, err := time.ParseDuration(windowStr)
		if err != nil || window <= 0 {
			return errors.New("window must be a positive duration")
		}
		o.Window = window
	}
	o.Normalize = c.QueryBool("normalize")
	if o.Normalize && o.Window <= 0 {
		return errors.New("normalize requires a window")
	}
	return nil
}

// rangeQuery holds query parameters for the all-devices records
// endpoint.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtfield=From"`
	tableOptions
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr, toStr := c.Query("from"), c.Query("to")
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
	q.From, q.To = from, to

	if err := validate.Struct(q); err != nil {
		return err
	}
	return q.tableOptions.bind(c)
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
