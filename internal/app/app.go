package app

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"availability-scheduler/internal/config"
	"availability-scheduler/internal/schedule"
)

// App holds what the HTTP handlers need.
type App struct {
	Service *schedule.Service
	// Calendar is nil when Google Calendar is not configured.
	Calendar EventSource
	Auth     config.AuthConfig
	// Ping reports store health; nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewRouter registers every route on a new gin engine.
func NewRouter(a *App) *gin.Engine {
	if err := RegisterValidators(); err != nil {
		slog.Warn("Custom validators not registered", "error", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	router.GET("/health", a.HealthHandler)

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api")
	if a.Auth.Enabled() {
		api.Use(AuthMiddleware(a.Auth))
	} else {
		slog.Warn("API authentication disabled: no JWT secret or static tokens configured")
	}
	{
		api.GET("/slots", a.GetSlotsHandler)
		api.POST("/appointments", a.BookAppointmentHandler)

		agents := api.Group("/agents/:id", RequireAgent())
		{
			agents.GET("/appointments", a.ListAppointmentsHandler)
			agents.DELETE("/appointments/:appointment_id", a.CancelAppointmentHandler)
			agents.GET("/schedule", a.GetScheduleHandler)
			agents.PUT("/schedule", a.SetScheduleHandler)
			agents.GET("/rules", a.ListRulesHandler)
			agents.POST("/exceptions", a.AddExceptionHandler)
			agents.DELETE("/exceptions/:rule_id", a.DeleteExceptionHandler)
			agents.POST("/quick-toggle", a.QuickToggleHandler)
			agents.GET("/status", a.StatusHandler)
			agents.GET("/availability", a.AvailabilityHandler)
			agents.POST("/calendar/import", a.ImportCalendarHandler)
		}

		// Google Calendar integration routes
		calendar := api.Group("/calendar")
		{
			calendar.GET("/auth", a.GoogleAuthHandler)
			calendar.GET("/events", a.GoogleCalendarEventsHandler)
			calendar.GET("/calendars", a.GoogleCalendarListHandler)
		}
	}

	return router
}
