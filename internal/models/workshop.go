package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReminderKindEmail is the only reminder kind the scheduler delivers.
const ReminderKindEmail = "email"

// ReminderSetting is one per-workshop reminder entry configured by an admin
type ReminderSetting struct {
	HoursBefore float64 `json:"hours_before" binding:"required,gte=0"`
	Type        string  `json:"type,omitempty"`    // "email" when empty
	Subject     string  `json:"subject,omitempty"` // Overrides the global subject template
}

// Workshop represents a scheduled workshop
type Workshop struct {
	ID               string                             `gorm:"primaryKey;size:64" json:"id"`
	Title            string                             `gorm:"size:255;not null" json:"title"`
	Description      string                             `gorm:"type:text;not null" json:"description"`
	DateTime         time.Time                          `gorm:"not null;index" json:"date_time"`
	DurationMinutes  int                                `gorm:"not null;default:60" json:"duration_minutes"`
	Price            int64                              `gorm:"not null" json:"price"` // In paise
	InstructorName   string                             `gorm:"size:255;not null" json:"instructor_name"`
	ZoomMeetingID    string                             `gorm:"size:64" json:"zoom_meeting_id,omitempty"`
	ZoomJoinURL      string                             `gorm:"type:text" json:"zoom_join_url,omitempty"`
	ZoomStartURL     string                             `gorm:"type:text" json:"zoom_start_url,omitempty"`
	ReminderSettings datatypes.JSONSlice[ReminderSetting] `gorm:"not null;default:'[]'" json:"reminder_settings"`
	CreatedAt        time.Time                          `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                          `gorm:"not null" json:"updated_at"`
}

// BeforeCreate assigns an ID and makes sure the reminder list is never stored as null
func (w *Workshop) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.ReminderSettings == nil {
		w.ReminderSettings = datatypes.JSONSlice[ReminderSetting]{}
	}
	if w.DurationMinutes == 0 {
		w.DurationMinutes = 60
	}
	w.DateTime = w.DateTime.UTC()
	return nil
}

// TableName specifies the table name for the Workshop model
func (Workshop) TableName() string {
	return "workshop"
}

// EndTime returns the instant the workshop is scheduled to finish.
func (w *Workshop) EndTime() time.Time {
	return w.DateTime.Add(time.Duration(w.DurationMinutes) * time.Minute)
}
