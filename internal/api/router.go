package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinora/clinic-scheduling/internal/metrics"
	"github.com/clinora/clinic-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Booking  *scheduling.BookingService
	Slots    *scheduling.SlotGenerator
	Imprevus *scheduling.ImprevuService
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
	Location *time.Location
	Logger   zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	appointments := NewAppointmentHandler(cfg.Booking, cfg.Slots, cfg.Location)
	imprevus := NewImprevuHandler(cfg.Imprevus)

	r.Group(func(r chi.Router) {
		r.Use(DoctorMiddleware)
		r.Mount("/appointments", appointments.Routes())
		r.Mount("/imprevus", imprevus.Routes())
	})

	return r
}
