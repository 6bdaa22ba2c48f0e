package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/gate"
	"github.com/trannm/healthpulse/internal/model"
	"github.com/trannm/healthpulse/internal/repository"
	"go.uber.org/zap"
)

// ScheduleHandler covers the user-facing surfaces: schedules, device
// registrations and backfill completion. Mutations that change a gate input
// invalidate the user's cached verdicts.
type ScheduleHandler struct {
	schedules  *repository.ScheduleRepository
	devices    *repository.DeviceRepository
	onboarding *repository.OnboardingRepository
	gate       *gate.Gate
	log        *zap.Logger
}

func NewScheduleHandler(schedules *repository.ScheduleRepository, devices *repository.DeviceRepository, onboarding *repository.OnboardingRepository, g *gate.Gate, log *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules:  schedules,
		devices:    devices,
		onboarding: onboarding,
		gate:       g,
		log:        log,
	}
}

// UpsertSchedule creates or replaces the schedule for (user, type)
func (h *ScheduleHandler) UpsertSchedule(c *gin.Context) {
	var req model.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Unknown notification type"})
		return
	}

	days := req.DaysOfWeek
	if days == 0 {
		days = model.AllDays
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	s := model.Schedule{
		UserID:       req.UserID,
		Type:         req.Type,
		LocalTime:    req.LocalTime,
		Timezone:     req.Timezone,
		DaysOfWeek:   days,
		Enabled:      enabled,
		GraceMinutes: req.GraceMinutes,
	}

	// Reject unresolvable schedules up front rather than on every populator tick
	if _, _, err := s.LocalClock(); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid local time", Message: err.Error()})
		return
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid timezone", Message: err.Error()})
		return
	}

	if err := h.schedules.Upsert(&s); err != nil {
		h.log.Error("schedule upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not save schedule"})
		return
	}

	c.JSON(http.StatusOK, s)
}

// ListSchedules returns all schedules for a user
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid user id"})
		return
	}

	schedules, err := h.schedules.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not list schedules"})
		return
	}
	c.JSON(http.StatusOK, schedules)
}

// DisableSchedule turns one schedule off without deleting it
func (h *ScheduleHandler) DisableSchedule(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid user id"})
		return
	}
	typ := model.NotificationType(c.Param("type"))
	if !typ.Valid() {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Unknown notification type"})
		return
	}

	if err := h.schedules.Disable(userID, typ); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not disable schedule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule disabled"})
}

// RegisterDevice adds or reactivates a push token
func (h *ScheduleHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.devices.Register(req.UserID, req.Token, req.Platform); err != nil {
		h.log.Error("device register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not register device"})
		return
	}

	// Device presence is a cached gate input
	h.gate.Invalidate(c.Request.Context(), req.UserID)
	c.JSON(http.StatusCreated, gin.H{"message": "Device registered"})
}

// DeactivateDevice flags a push token inactive
func (h *ScheduleHandler) DeactivateDevice(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid user id"})
		return
	}
	var req model.DeactivateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.devices.Deactivate(req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not deactivate device"})
		return
	}

	h.gate.Invalidate(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"message": "Device deactivated"})
}

// CompleteBackfill records that a user's historical import finished.
// Notifications still wait out the backfill cooldown.
func (h *ScheduleHandler) CompleteBackfill(c *gin.Context) {
	var req model.BackfillCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.onboarding.MarkBackfillComplete(req.UserID, time.Now().UTC()); err != nil {
		h.log.Error("backfill completion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not record backfill"})
		return
	}

	h.gate.Invalidate(c.Request.Context(), req.UserID)
	h.log.Info("✅ Backfill complete", zap.String("user", req.UserID.String()))
	c.JSON(http.StatusOK, gin.H{"message": "Backfill recorded"})
}
