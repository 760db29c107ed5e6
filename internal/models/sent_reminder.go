package models

import "time"

// SentReminder marks a reminder as delivered. The key is unique; a row is
// written once after a successful send and never touched again.
type SentReminder struct {
	Key    string    `gorm:"primaryKey;size:512" json:"key"`
	SentAt time.Time `gorm:"not null" json:"sent_at"`
}

// TableName specifies the table name for the SentReminder model
func (SentReminder) TableName() string {
	return "sent_reminder"
}
