package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workshops/internal/models"
	"workshops/internal/reminders"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger stores sent-reminder markers in the sent_reminder table. The primary
// key on sent_reminder.key is what makes MarkSent atomic.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// HasSent reports whether a marker exists for key
func (l *Ledger) HasSent(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("empty reminder key")
	}

	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.SentReminder{}).
		Where(&models.SentReminder{Key: key}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up reminder marker: %w", err)
	}
	return count > 0, nil
}

// MarkSent inserts the marker. An existing key leaves the row untouched and
// yields reminders.ErrAlreadyExists.
func (l *Ledger) MarkSent(ctx context.Context, key string, sentAt time.Time) error {
	marker := models.SentReminder{Key: key, SentAt: sentAt.UTC()}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&marker)
	if res.Error != nil {
		return fmt.Errorf("failed to record reminder marker: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return reminders.ErrAlreadyExists
	}
	return nil
}

var _ reminders.Ledger = (*Ledger)(nil)
