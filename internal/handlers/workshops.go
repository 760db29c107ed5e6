package handlers

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"workshops/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CreateWorkshopRequest is the payload of POST /admin/workshops.
// Price is in rupees and stored in paise.
type CreateWorkshopRequest struct {
	Title            string                   `json:"title" binding:"required,max=255"`
	Description      string                   `json:"description"`
	DateTime         time.Time                `json:"date_time" binding:"required"`
	Duration         int                      `json:"duration" binding:"omitempty,gt=0"`
	Price            float64                  `json:"price" binding:"gte=0"`
	InstructorName   string                   `json:"instructor_name" binding:"max=255"`
	ReminderSettings []models.ReminderSetting `json:"reminder_settings" binding:"omitempty,dive"`
}

// UpdateWorkshopRequest is a partial update; absent fields are left unchanged.
// An empty reminder_settings list clears the per-workshop rules.
type UpdateWorkshopRequest struct {
	Title            string                   `json:"title" binding:"max=255"`
	Description      string                   `json:"description"`
	DateTime         *time.Time               `json:"date_time"`
	Duration         int                      `json:"duration" binding:"omitempty,gt=0"`
	Price            *float64                 `json:"price" binding:"omitempty,gte=0"`
	InstructorName   string                   `json:"instructor_name" binding:"max=255"`
	ReminderSettings []models.ReminderSetting `json:"reminder_settings" binding:"omitempty,dive"`
}

func toPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// Apply copies the present fields onto w
func (r *UpdateWorkshopRequest) Apply(w *models.Workshop) {
	if t := strings.TrimSpace(r.Title); t != "" {
		w.Title = t
	}
	if r.Description != "" {
		w.Description = r.Description
	}
	if r.DateTime != nil {
		w.DateTime = r.DateTime.UTC()
	}
	if r.Duration > 0 {
		w.DurationMinutes = r.Duration
	}
	if r.Price != nil {
		w.Price = toPaise(*r.Price)
	}
	if n := strings.TrimSpace(r.InstructorName); n != "" {
		w.InstructorName = n
	}
	if r.ReminderSettings != nil {
		w.ReminderSettings = datatypes.JSONSlice[models.ReminderSetting](r.ReminderSettings)
	}
}

// CreateWorkshop stores a new workshop and provisions its meeting when a
// meeting provider is configured.
func (h *AdminHandler) CreateWorkshop(c *gin.Context) {
	var req CreateWorkshopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid input", err)
		return
	}

	workshop := &models.Workshop{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		DateTime:         req.DateTime.UTC(),
		DurationMinutes:  req.Duration,
		Price:            toPaise(req.Price),
		InstructorName:   strings.TrimSpace(req.InstructorName),
		ReminderSettings: datatypes.JSONSlice[models.ReminderSetting](req.ReminderSettings),
	}
	if workshop.DurationMinutes == 0 {
		workshop.DurationMinutes = 60
	}

	ctx := c.Request.Context()
	h.provisionMeeting(ctx, workshop)

	if err := h.Workshops.Create(ctx, workshop); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to create workshop", err)
		return
	}

	h.Logger.Info("Workshop created", zap.String("workshop_id", workshop.ID), zap.Int("reminders", len(workshop.ReminderSettings)))
	c.JSON(http.StatusCreated, workshop)
}

// UpdateWorkshop applies a partial update. A workshop still without a
// meeting gets one provisioned.
func (h *AdminHandler) UpdateWorkshop(c *gin.Context) {
	var req UpdateWorkshopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid input", err)
		return
	}

	workshop, ok := h.loadWorkshop(c)
	if !ok {
		return
	}

	req.Apply(workshop)

	ctx := c.Request.Context()
	if workshop.ZoomJoinURL == "" {
		h.provisionMeeting(ctx, workshop)
	}

	if err := h.Workshops.Update(ctx, workshop); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to update workshop", err)
		return
	}
	c.JSON(http.StatusOK, workshop)
}

// provisionMeeting fills in the meeting links of w. Failures are logged and
// the workshop is saved without a meeting.
func (h *AdminHandler) provisionMeeting(ctx context.Context, w *models.Workshop) {
	if h.Meetings == nil {
		return
	}
	meeting, err := h.Meetings.CreateMeeting(ctx, w)
	if err != nil {
		h.Logger.Warn("Meeting creation skipped", zap.String("title", w.Title), zap.Error(err))
		return
	}
	w.ZoomMeetingID = meeting.ID
	w.ZoomJoinURL = meeting.JoinURL
	w.ZoomStartURL = meeting.StartURL
}
