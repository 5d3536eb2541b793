package api

import (
	"net/http"

	"github.com/dom/shared-calendar/internal/api/handlers"
	"github.com/dom/shared-calendar/internal/api/middleware"
	"github.com/dom/shared-calendar/internal/config"
	"github.com/dom/shared-calendar/internal/metrics"
	"github.com/dom/shared-calendar/internal/service"
	"github.com/dom/shared-calendar/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func NewRouter(services *service.Services, hub *websocket.Hub, cfg *config.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.RequestLogging(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	sessions := middleware.NewSessionStore(cfg)

	userHandler := handlers.NewUserHandler(services.User, sessions)
	calendarHandler := handlers.NewCalendarHandler(services.Membership, services.Event)
	eventHandler := handlers.NewEventHandler(services.Event)
	wsHandler := handlers.NewWebSocketHandler(hub, services.User, sessions)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Identify(services.User, sessions))

		// Public routes
		r.Post("/users", userHandler.CreateOrResume)
		r.Route("/user", func(r chi.Router) {
			r.Get("/check-username", userHandler.CheckUsername)
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.Post("/logout", userHandler.Logout)
			r.With(middleware.RequireUser).Get("/current", userHandler.Current)
		})

		r.Get("/calendars", calendarHandler.ListMine)
		r.Route("/calendars/{idOrCode}", func(r chi.Router) {
			r.Get("/", calendarHandler.Get)
			r.Get("/members", calendarHandler.Members)
			r.Get("/events", calendarHandler.Events)
			r.Get("/upcoming-events", calendarHandler.UpcomingEvents)
			r.Get("/export.ics", calendarHandler.ExportICS)

			authed := r.With(middleware.RequireUser)
			authed.Delete("/", calendarHandler.Delete)
			authed.Delete("/leave", calendarHandler.Leave)
			authed.Delete("/members/{userId}", calendarHandler.RemoveMember)
			authed.Post("/transfer-ownership", calendarHandler.TransferOwnership)
		})

		r.Get("/events/upcoming", eventHandler.Upcoming)
		r.Get("/events/{id}", eventHandler.Get)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Get("/users/current", userHandler.Current)
			r.Get("/users/calendars", calendarHandler.ListMine)

			r.Post("/calendars", calendarHandler.Create)
			r.Post("/calendars/join", calendarHandler.Join)

			r.Post("/events", eventHandler.Create)
			r.Put("/events/{id}", eventHandler.Update)
			r.Delete("/events/{id}", eventHandler.Delete)
		})

		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
