// Package api is the HTTP surface over the scheduling service. Handlers
// stay thin: decode, call the service, map errors to status codes. All
// booking policy lives in the scheduling package.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/cache"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/scheduling"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/tasks"
)

type Deps struct {
	Service    *scheduling.Service
	Cache      *cache.Cache
	Dispatcher *tasks.Dispatcher
	Results    *tasks.ResultStore
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Log        zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", livenessHandler())
	r.Get("/readyz", readinessHandler(d.Pool, d.Redis))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(d.Service, d.Log))
			r.Get("/", listAppointmentsHandler(d.Service, d.Cache, d.Log))
			r.Get("/{id}", getAppointmentHandler(d.Service, d.Cache, d.Log))
			r.Patch("/{id}", rescheduleAppointmentHandler(d.Service, d.Log))
			r.Post("/{id}/cancel", cancelAppointmentHandler(d.Service, d.Log))
			r.Put("/{id}/status", setStatusHandler(d.Service, d.Log))
			r.Put("/{id}/treatment", treatmentHandler(d.Service, d.Log))
			r.Get("/{id}/history", historyHandler(d.Service, d.Log))
		})

		r.Post("/bookings/validate", validateBookingHandler(d.Service, d.Log))
		r.Get("/conflicts/analytics", analyticsHandler(d.Service, d.Log))

		r.Route("/availability", func(r chi.Router) {
			r.Post("/", setAvailabilityHandler(d.Service, d.Log))
			r.Get("/", listOpenSlotsHandler(d.Service, d.Cache, d.Log))
			r.Delete("/{id}", removeAvailabilityHandler(d.Service, d.Log))
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/exports/patient-history", exportPatientHistoryHandler(d.Dispatcher, d.Log))
			r.Post("/reports/doctor-summary", doctorReportHandler(d.Dispatcher, d.Log))
			r.Post("/reminders", reminderHandler(d.Dispatcher, d.Log))
			r.Get("/{id}", taskStatusHandler(d.Dispatcher, d.Log))
			r.Get("/{id}/result", taskResultHandler(d.Results, d.Log))
		})
	})

	return r
}
