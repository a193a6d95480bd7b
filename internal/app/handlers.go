package app

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"availability-scheduler/internal/logger"
	"availability-scheduler/internal/schedule"
)

func agentParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, fmt.Errorf("agent id %q must be a positive integer: %w", c.Param("id"), schedule.ErrValidation))
		return 0, false
	}
	return id, true
}

// GET /health
func (a *App) HealthHandler(c *gin.Context) {
	if a.Ping != nil {
		if err := a.Ping(c.Request.Context()); err != nil {
			logger.FromContext(c.Request.Context()).Error("Health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/slots?agent_id=&date=YYYY-MM-DD
func (a *App) GetSlotsHandler(c *gin.Context) {
	var q slotsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindError(err))
		return
	}
	date, err := schedule.ParseDate(q.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	slots, err := a.Service.AvailableSlots(c.Request.Context(), q.AgentID, date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSlots(slots))
}

// POST /api/appointments
func (a *App) BookAppointmentHandler(c *gin.Context) {
	var body bookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindError(err))
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(c, err)
		return
	}

	appt, err := a.Service.BookSlot(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAppointment(*appt, a.Service.Location()))
}

// GET /api/agents/:id/appointments?from=&to=&status=
func (a *App) ListAppointmentsHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	var q appointmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindError(err))
		return
	}

	appts, err := a.Service.ListAppointments(c.Request.Context(), q.filter(agentID))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]appointmentJSON, 0, len(appts))
	for _, appt := range appts {
		out = append(out, toAppointment(appt, a.Service.Location()))
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/agents/:id/appointments/:appointment_id
func (a *App) CancelAppointmentHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	appt, err := a.Service.CancelAppointment(c.Request.Context(), agentID, c.Param("appointment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAppointment(*appt, a.Service.Location()))
}

// GET /api/agents/:id/schedule
func (a *App) GetScheduleHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	rules, err := a.Service.ListRules(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id":      agentID,
		"slot_duration": a.Service.SlotDuration().String(),
		"days":          weeklyView(rules),
	})
}

// PUT /api/agents/:id/schedule
// Replaces the whole weekly schedule; days left out become closed.
func (a *App) SetScheduleHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	var body weeklyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindError(err))
		return
	}
	days, err := body.days()
	if err != nil {
		writeError(c, err)
		return
	}

	rules, err := a.Service.SetWeeklySchedule(c.Request.Context(), agentID, days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": agentID,
		"days":     weeklyView(rules),
		"rules":    toRules(rules),
	})
}

// GET /api/agents/:id/rules
func (a *App) ListRulesHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	rules, err := a.Service.ListRules(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRules(rules))
}

// POST /api/agents/:id/exceptions
func (a *App) AddExceptionHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	var body exceptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindError(err))
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(c, err)
		return
	}

	rule, err := a.Service.AddException(c.Request.Context(), agentID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRule(*rule))
}

// DELETE /api/agents/:id/exceptions/:rule_id
func (a *App) DeleteExceptionHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil || ruleID <= 0 {
		writeError(c, fmt.Errorf("rule id %q must be a positive integer: %w", c.Param("rule_id"), schedule.ErrValidation))
		return
	}

	if err := a.Service.DeleteException(c.Request.Context(), agentID, ruleID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/agents/:id/quick-toggle
func (a *App) QuickToggleHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	var body quickToggleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindError(err))
		return
	}

	d := time.Duration(body.DurationMinutes) * time.Minute
	rules, err := a.Service.QuickToggle(c.Request.Context(), agentID, body.Type == "available", d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toQuickToggle(rules))
}

// GET /api/agents/:id/status
func (a *App) StatusHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	st, err := a.Service.CurrentStatus(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatus(st))
}

// GET /api/agents/:id/availability?date=YYYY-MM-DD (defaults to today)
func (a *App) AvailabilityHandler(c *gin.Context) {
	agentID, ok := agentParam(c)
	if !ok {
		return
	}
	var q dayQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindError(err))
		return
	}
	date := a.Service.Today()
	if q.Date != "" {
		date, _ = schedule.ParseDate(q.Date)
	}

	day, err := a.Service.ResolveDay(c.Request.Context(), agentID, date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDay(day))
}
