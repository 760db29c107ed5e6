package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"workshops/internal/models"
	"workshops/internal/reminders"
	"workshops/internal/services"
	"workshops/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SettingsRepository interface {
	GetDefault(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, settings *models.Settings) error
}

type WorkshopRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workshop, error)
	Create(ctx context.Context, w *models.Workshop) error
	Update(ctx context.Context, w *models.Workshop) error
	SetMeeting(ctx context.Context, id, meetingID, joinURL, startURL string) error
}

type ReminderBroadcaster interface {
	Send(ctx context.Context, w *models.Workshop) (reminders.BroadcastResult, error)
}

type RegistrationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Registration, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type Mailer interface {
	SendTestEmail(ctx context.Context, settings models.GlobalReminderSettings, to string) error
	SendRegistrationEmail(ctx context.Context, settings models.GlobalReminderSettings, user *models.User, w *models.Workshop) error
}

type MeetingProvider interface {
	CreateMeeting(ctx context.Context, w *models.Workshop) (*services.Meeting, error)
}

// AdminHandler serves the admin reminder and settings endpoints
type AdminHandler struct {
	Settings      SettingsRepository
	Workshops     WorkshopRepository
	Registrations RegistrationRepository
	Users         UserRepository
	Runner        reminders.Runner
	Broadcaster   ReminderBroadcaster
	Email         Mailer
	Meetings      MeetingProvider // nil when Zoom is not configured
	Logger        *zap.Logger
	Now           func() time.Time
}

// Register mounts the admin routes on an already protected group
func (h *AdminHandler) Register(r *gin.RouterGroup) {
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)
	r.POST("/settings/test-email", h.SendTestEmail)
	r.POST("/reminders/run", h.RunReminders)
	r.POST("/workshops", h.CreateWorkshop)
	r.PUT("/workshops/:id", h.UpdateWorkshop)
	r.POST("/workshops/:id/send-reminder", h.SendReminder)
	r.POST("/workshops/:id/meeting", h.CreateMeeting)
	r.POST("/registrations/:id/confirmation", h.ResendConfirmation)
}

func (h *AdminHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// handleError logs err and writes a JSON error response
func (h *AdminHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.Logger.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"error": message})
}

// GetSettings returns the settings, creating the defaults on first access
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.Settings.GetDefault(c.Request.Context())
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettingsRequest is a partial update; absent fields are left unchanged
type UpdateSettingsRequest struct {
	ReminderHours        []float64 `json:"reminder_hours" binding:"omitempty,dive,gte=0"`
	ReminderHoursBefore  *float64  `json:"reminder_hours_before" binding:"omitempty,gte=0"`
	EmailSubjectTemplate string    `json:"email_subject_template" binding:"max=255"`
	SenderName           string    `json:"sender_name" binding:"max=255"`
	SenderEmail          string    `json:"sender_email" binding:"omitempty,email"`
	SendConfirmation     *bool     `json:"send_confirmation"`
	SendReminders        *bool     `json:"send_reminders"`
}

// Apply copies the present fields onto settings. A legacy
// reminder_hours_before without reminder_hours also replaces the list.
func (r *UpdateSettingsRequest) Apply(settings *models.Settings) {
	if r.ReminderHours != nil {
		settings.SetReminderHours(r.ReminderHours)
	}
	if r.ReminderHoursBefore != nil {
		hours := *r.ReminderHoursBefore
		settings.ReminderHoursBefore = &hours
		if r.ReminderHours == nil {
			settings.SetReminderHours([]float64{hours})
		}
	}
	if t := strings.TrimSpace(r.EmailSubjectTemplate); t != "" {
		settings.EmailSubjectTemplate = t
	}
	if n := strings.TrimSpace(r.SenderName); n != "" {
		settings.SenderName = n
	}
	if r.SenderEmail != "" {
		settings.SenderEmail = r.SenderEmail
	}
	if r.SendConfirmation != nil {
		settings.SendConfirmation = r.SendConfirmation
	}
	if r.SendReminders != nil {
		settings.SendReminders = r.SendReminders
	}
}

// UpdateSettings applies a partial settings update
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid input", err)
		return
	}

	ctx := c.Request.Context()
	settings, err := h.Settings.GetDefault(ctx)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch settings", err)
		return
	}

	req.Apply(settings)

	if err := h.Settings.Save(ctx, settings); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to update settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type testEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SendTestEmail sends a test email to the given address
func (h *AdminHandler) SendTestEmail(c *gin.Context) {
	var req testEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid input", err)
		return
	}

	ctx := c.Request.Context()
	settings, err := h.Settings.GetDefault(ctx)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch settings", err)
		return
	}

	if err := h.Email.SendTestEmail(ctx, settings.Normalize(), req.Email); err != nil {
		if errors.Is(err, services.ErrEmailNotConfigured) {
			h.handleError(c, http.StatusServiceUnavailable, "Email delivery is not configured", err)
			return
		}
		h.handleError(c, http.StatusBadGateway, "Failed to send test email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test email sent successfully"})
}

// RunReminders performs a reminder pass immediately and returns its summary.
// It goes through the ledger, so reminders already sent are not repeated.
func (h *AdminHandler) RunReminders(c *gin.Context) {
	// A client that disconnects must not leave sent reminders unrecorded
	ctx := context.WithoutCancel(c.Request.Context())
	summary := h.Runner.RunOnce(ctx, h.now())
	c.JSON(http.StatusOK, summary)
}

// SendReminder emails all paid registrants of a workshop now. This bypasses
// the sent-reminder ledger.
func (h *AdminHandler) SendReminder(c *gin.Context) {
	workshop, ok := h.loadWorkshop(c)
	if !ok {
		return
	}

	result, err := h.Broadcaster.Send(c.Request.Context(), workshop)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to send reminders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Reminders sent",
		"sent_count": result.Sent,
		"failed":     result.Failed,
		"recipients": result.Recipients,
	})
}

// CreateMeeting provisions a meeting for the workshop and stores its links
func (h *AdminHandler) CreateMeeting(c *gin.Context) {
	if h.Meetings == nil {
		h.handleError(c, http.StatusServiceUnavailable, "Meeting provider is not configured", services.ErrMeetingNotConfigured)
		return
	}

	workshop, ok := h.loadWorkshop(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	meeting, err := h.Meetings.CreateMeeting(ctx, workshop)
	if err != nil {
		h.handleError(c, http.StatusBadGateway, "Failed to create meeting", err)
		return
	}

	if err := h.Workshops.SetMeeting(ctx, workshop.ID, meeting.ID, meeting.JoinURL, meeting.StartURL); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to save meeting", err)
		return
	}
	c.JSON(http.StatusCreated, meeting)
}

// ResendConfirmation emails the registration confirmation again
func (h *AdminHandler) ResendConfirmation(c *gin.Context) {
	ctx := c.Request.Context()

	registration, err := h.Registrations.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Registration not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch registration", err)
		return
	}
	if registration.PaymentStatus != models.PaymentCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Registration payment is not completed"})
		return
	}

	user, err := h.Users.GetByID(ctx, registration.UserID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	workshop, err := h.Workshops.GetByID(ctx, registration.WorkshopID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch workshop", err)
		return
	}

	settings, err := h.Settings.GetDefault(ctx)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch settings", err)
		return
	}
	global := settings.Normalize()
	if !global.SendConfirmation {
		c.JSON(http.StatusOK, gin.H{"message": "Confirmation emails are disabled", "sent": false})
		return
	}

	if err := h.Email.SendRegistrationEmail(ctx, global, user, workshop); err != nil {
		h.handleError(c, http.StatusBadGateway, "Failed to send confirmation email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Confirmation email sent", "sent": true})
}

func (h *AdminHandler) loadWorkshop(c *gin.Context) (*models.Workshop, bool) {
	workshop, err := h.Workshops.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Workshop not found", err)
			return nil, false
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to fetch workshop", err)
		return nil, false
	}
	return workshop, true
}
