package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"availability-scheduler/internal/config"
	"availability-scheduler/internal/schedule"
)

const (
	googleTokenHeader = "X-Google-Token"
	maxImportDays     = 92
)

// CalendarEvent represents a Google Calendar event
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Transparent bool      `json:"transparent"`
	Creator     string    `json:"creator,omitempty"`
}

type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"`
}

// EventSource is an external calendar the agent can import busy time from.
type EventSource interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Calendars(ctx context.Context, token *oauth2.Token) ([]CalendarInfo, error)
	Events(ctx context.Context, token *oauth2.Token, calendarID string, from, to time.Time) ([]CalendarEvent, error)
}

// GoogleCalendar reads calendars through the Google Calendar API with a
// read-only OAuth2 scope.
type GoogleCalendar struct {
	config *oauth2.Config
}

// NewGoogleCalendar returns nil when the OAuth2 client is not configured.
func NewGoogleCalendar(cfg config.GoogleConfig) *GoogleCalendar {
	if !cfg.Configured() {
		return nil
	}
	return &GoogleCalendar{config: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			calendar.CalendarReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}}
}

func (g *GoogleCalendar) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (g *GoogleCalendar) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(ctx, code)
}

func (g *GoogleCalendar) service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	return calendar.NewService(ctx, option.WithHTTPClient(g.config.Client(ctx, token)))
}

func (g *GoogleCalendar) Calendars(ctx context.Context, token *oauth2.Token) ([]CalendarInfo, error) {
	srv, err := g.service(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	list, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	calendars := make([]CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		calendars = append(calendars, CalendarInfo{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
			AccessRole:  item.AccessRole,
		})
	}
	return calendars, nil
}

func (g *GoogleCalendar) Events(ctx context.Context, token *oauth2.Token, calendarID string, from, to time.Time) ([]CalendarEvent, error) {
	srv, err := g.service(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	call := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339))

	var events []CalendarEvent
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if ev, ok := parseEvent(item); ok {
				events = append(events, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve events: %w", err)
	}
	return events, nil
}

// parseEvent converts an API event, dropping items without usable times.
func parseEvent(item *calendar.Event) (CalendarEvent, bool) {
	if item == nil || item.Start == nil || item.End == nil {
		return CalendarEvent{}, false
	}
	event := CalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		Transparent: item.Transparency == "transparent",
	}
	if item.Creator != nil {
		event.Creator = item.Creator.Email
	}

	var err error
	switch {
	case item.Start.DateTime != "":
		if event.StartTime, err = time.Parse(time.RFC3339, item.Start.DateTime); err != nil {
			return CalendarEvent{}, false
		}
		if event.EndTime, err = time.Parse(time.RFC3339, item.End.DateTime); err != nil {
			return CalendarEvent{}, false
		}
	case item.Start.Date != "":
		event.AllDay = true
		if event.StartTime, err = time.Parse("2006-01-02", item.Start.Date); err != nil {
			return CalendarEvent{}, false
		}
		if event.EndTime, err = time.Parse("2006-01-02", item.End.Date); err != nil {
			return CalendarEvent{}, false
		}
	default:
		return CalendarEvent{}, false
	}
	return event, event.StartTime.Before(event.EndTime)
}

// busyBlock is one day's share of a busy event, ready to become a blocking
// exception.
type busyBlock struct {
	EventID string
	Date    schedule.Date
	Span    schedule.Span
}

// busyBlocks turns the opaque, confirmed, timed events into per-day blocks on
// the agent's calendar. An event crossing midnight yields one block per day.
func busyBlocks(events []CalendarEvent, loc *time.Location) []busyBlock {
	var out []busyBlock
	for _, ev := range events {
		if ev.AllDay || ev.Transparent || ev.Status == "cancelled" {
			continue
		}
		start, end := ev.StartTime.In(loc), ev.EndTime.In(loc)
		for day := schedule.DateOf(start); ; day = day.AddDays(1) {
			dayStart := day.At(schedule.Midnight, loc)
			if !dayStart.Before(end) {
				break
			}
			span := schedule.WholeDay
			if start.After(dayStart) {
				span.Start = schedule.TimeOfDayOf(start)
			}
			if end.Before(day.AddDays(1).At(schedule.Midnight, loc)) {
				span.End = schedule.TimeOfDayOf(end)
			}
			if span.Valid() {
				out = append(out, busyBlock{EventID: ev.ID, Date: day, Span: span})
			}
		}
	}
	return out
}

func googleToken(c *gin.Context) (*oauth2.Token, bool) {
	tokenStr := c.GetHeader(googleTokenHeader)
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google token required in X-Google-Token header"})
		return nil, false
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(tokenStr), &token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token format"})
		return nil, false
	}
	return &token, true
}

func (a *App) calendarConfigured(c *gin.Context) bool {
	if a.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return false
	}
	return true
}

// GET /api/calendar/auth?agent_id=
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	state := fmt.Sprintf("agent_%s_%d", c.Query("agent_id"), time.Now().Unix())
	c.JSON(http.StatusOK, gin.H{
		"auth_url": a.Calendar.AuthURL(state),
		"state":    state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	token, err := a.Calendar.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}

	// The caller keeps the token and sends it back in X-Google-Token.
	tokenJSON, _ := json.Marshal(token)
	c.JSON(http.StatusOK, gin.H{
		"message": "Authorization successful",
		"state":   c.Query("state"),
		"token":   string(tokenJSON),
	})
}

// GET /api/calendar/calendars
func (a *App) GoogleCalendarListHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	token, ok := googleToken(c)
	if !ok {
		return
	}
	calendars, err := a.Calendar.Calendars(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calendars": calendars,
		"count":     len(calendars),
	})
}

// GET /api/calendar/events?calendar_id=&time_min=&time_max=
func (a *App) GoogleCalendarEventsHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	token, ok := googleToken(c)
	if !ok {
		return
	}

	now := time.Now()
	from, to := now, now.AddDate(0, 0, 7)
	var err error
	if v := c.Query("time_min"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time_min"})
			return
		}
	}
	if v := c.Query("time_max"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time_max"})
			return
		}
	}

	events, err := a.Calendar.Events(c.Request.Context(), token, c.DefaultQuery("calendar_id", "primary"), from, to)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

type skippedJSON struct {
	EventID   string `json:"event_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
	Kind      string `json:"kind"`
}

// POST /api/agents/:id/calendar/import
// Copies busy time from the agent's calendar into blocking exceptions.
func (a *App) ImportCalendarHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	if !a.calendarConfigured(c) {
		return
	}
	token, ok := googleToken(c)
	if !ok {
		return
	}
	var body importBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindError(err))
		return
	}
	from, _ := schedule.ParseDate(body.From)
	to, _ := schedule.ParseDate(body.To)
	if to.Before(from) {
		writeError(c, fmt.Errorf("to must not be before from: %w", schedule.ErrValidation))
		return
	}
	if to.Time().Sub(from.Time()) > maxImportDays*24*time.Hour {
		writeError(c, fmt.Errorf("import range is limited to %d days: %w", maxImportDays, schedule.ErrValidation))
		return
	}
	calendarID := body.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	ctx := c.Request.Context()
	loc := a.Service.Location()
	events, err := a.Calendar.Events(ctx, token, calendarID, from.At(schedule.Midnight, loc), to.AddDays(1).At(schedule.Midnight, loc))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	imported := []ruleJSON{}
	skipped := []skippedJSON{}
	for _, b := range busyBlocks(events, loc) {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		span := b.Span
		rule, err := a.Service.AddException(ctx, agentID, schedule.ExceptionRequest{Date: b.Date, Span: &span})
		switch {
		case err == nil:
			imported = append(imported, toRule(*rule))
		case errors.Is(err, schedule.ErrValidation), errors.Is(err, schedule.ErrPastDateTime), errors.Is(err, schedule.ErrInvalidTimeRange):
			skipped = append(skipped, skippedJSON{
				EventID:   b.EventID,
				Date:      b.Date.String(),
				StartTime: b.Span.Start.String(),
				EndTime:   b.Span.End.String(),
				Reason:    err.Error(),
				Kind:      schedule.ErrorKind(err),
			})
		default:
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}
