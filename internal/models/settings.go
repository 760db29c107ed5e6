package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DefaultSettingsID is the primary key of the singleton settings row
const DefaultSettingsID = "default"

// Hard-coded fallbacks used when settings are missing or malformed
const (
	DefaultSubjectTemplate = "Reminder: {workshop_title} is coming up!"
	DefaultSenderName      = "LMS Platform"
)

// DefaultReminderHours returns the offsets used before an admin configures any.
func DefaultReminderHours() []float64 {
	return []float64{24, 1}
}

// Settings is the stored email and reminder configuration.
//
// ReminderHours holds raw JSON because rows written by older releases may
// carry null, a scalar or an array there. ReminderHoursBefore is the
// pre-array single offset, kept for those rows.
type Settings struct {
	ID                   string         `gorm:"primaryKey;size:32" json:"id"`
	ReminderHours        datatypes.JSON `json:"reminder_hours"`
	ReminderHoursBefore  *float64       `json:"reminder_hours_before,omitempty"`
	EmailSubjectTemplate string         `gorm:"size:255" json:"email_subject_template"`
	SenderName           string         `gorm:"size:255" json:"sender_name"`
	SenderEmail          string         `gorm:"size:255" json:"sender_email"`
	SendConfirmation     *bool          `json:"send_confirmation"`
	SendReminders        *bool          `json:"send_reminders"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the Settings model
func (Settings) TableName() string {
	return "settings"
}

// NewDefaultSettings returns the row created on first access.
func NewDefaultSettings() *Settings {
	legacy := 24.0
	hours, _ := json.Marshal(DefaultReminderHours())
	yes := true
	return &Settings{
		ID:                   DefaultSettingsID,
		ReminderHours:        datatypes.JSON(hours),
		ReminderHoursBefore:  &legacy,
		EmailSubjectTemplate: DefaultSubjectTemplate,
		SenderName:           DefaultSenderName,
		SendConfirmation:     &yes,
		SendReminders:        &yes,
	}
}

// SetReminderHours stores a new offset list.
func (s *Settings) SetReminderHours(hours []float64) {
	raw, _ := json.Marshal(hours)
	s.ReminderHours = datatypes.JSON(raw)
}

// GlobalReminderSettings is the canonical, typed view of Settings consumed by
// the reminder pipeline.
type GlobalReminderSettings struct {
	Offsets []float64
	// MultiOffset is set when the stored list had more than one entry, even
	// if validation left a single offset. Rule identities depend on it.
	MultiOffset      bool
	SubjectTemplate  string
	SenderName       string
	SenderEmail      string
	SendConfirmation bool
	SendReminders    bool
}

// DefaultGlobalReminderSettings is used when settings cannot be loaded at all.
func DefaultGlobalReminderSettings() GlobalReminderSettings {
	return GlobalReminderSettings{
		Offsets:          DefaultReminderHours(),
		MultiOffset:      true,
		SubjectTemplate:  DefaultSubjectTemplate,
		SenderName:       DefaultSenderName,
		SendConfirmation: true,
		SendReminders:    true,
	}
}

// Normalize resolves the stored shape into GlobalReminderSettings. The offset
// list comes from ReminderHours when it holds at least one valid offset, then
// from the legacy scalar, then from the defaults. Negative, NaN and infinite
// offsets are dropped.
func (s *Settings) Normalize() GlobalReminderSettings {
	g := DefaultGlobalReminderSettings()
	if s == nil {
		return g
	}

	if offsets, stored := parseOffsets(s.ReminderHours); len(offsets) > 0 {
		g.Offsets = offsets
		g.MultiOffset = stored > 1
	} else if s.ReminderHoursBefore != nil && validOffset(*s.ReminderHoursBefore) {
		g.Offsets = []float64{*s.ReminderHoursBefore}
		g.MultiOffset = false
	}

	if t := strings.TrimSpace(s.EmailSubjectTemplate); t != "" {
		g.SubjectTemplate = t
	}
	if n := strings.TrimSpace(s.SenderName); n != "" {
		g.SenderName = n
	}
	g.SenderEmail = strings.TrimSpace(s.SenderEmail)
	if s.SendConfirmation != nil {
		g.SendConfirmation = *s.SendConfirmation
	}
	if s.SendReminders != nil {
		g.SendReminders = *s.SendReminders
	}
	return g
}

// parseOffsets returns the valid offsets of raw and the number of entries
// stored before invalid ones were dropped.
func parseOffsets(raw datatypes.JSON) ([]float64, int) {
	if len(raw) == 0 {
		return nil, 0
	}

	var list []float64
	if err := json.Unmarshal(raw, &list); err != nil {
		// A bare number is accepted as a one-element list
		var single float64
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, 0
		}
		list = []float64{single}
	}

	offsets := make([]float64, 0, len(list))
	for _, h := range list {
		if validOffset(h) {
			offsets = append(offsets, h)
		}
	}
	return offsets, len(list)
}

func validOffset(h float64) bool {
	return h >= 0 && !math.IsNaN(h) && !math.IsInf(h, 0)
}
