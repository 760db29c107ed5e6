// Package store implements the reminder collaborators on top of gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workshops/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by lookups of a single record that does not exist.
var ErrNotFound = errors.New("record not found")

// WorkshopStore reads and updates workshops
type WorkshopStore struct {
	db *gorm.DB
}

func NewWorkshopStore(db *gorm.DB) *WorkshopStore {
	return &WorkshopStore{db: db}
}

// ListUpcoming returns workshops starting after now, soonest first.
func (s *WorkshopStore) ListUpcoming(ctx context.Context, now time.Time) ([]models.Workshop, error) {
	var workshops []models.Workshop
	err := s.db.WithContext(ctx).
		Where("date_time > ?", now.UTC()).
		Order("date_time ASC").
		Find(&workshops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming workshops: %w", err)
	}
	return workshops, nil
}

// GetByID returns ErrNotFound when the workshop does not exist.
func (s *WorkshopStore) GetByID(ctx context.Context, id string) (*models.Workshop, error) {
	var w models.Workshop
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workshop %s: %w", id, err)
	}
	return &w, nil
}

// Create inserts a new workshop.
func (s *WorkshopStore) Create(ctx context.Context, w *models.Workshop) error {
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to create workshop: %w", err)
	}
	return nil
}

// Update writes every column of w except its id and creation time.
func (s *WorkshopStore) Update(ctx context.Context, w *models.Workshop) error {
	if w.ReminderSettings == nil {
		w.ReminderSettings = datatypes.JSONSlice[models.ReminderSetting]{}
	}
	res := s.db.WithContext(ctx).Model(w).
		Select("*").
		Omit("id", "created_at").
		Updates(w)
	if res.Error != nil {
		return fmt.Errorf("failed to update workshop %s: %w", w.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMeeting stores the meeting details of a workshop.
func (s *WorkshopStore) SetMeeting(ctx context.Context, id, meetingID, joinURL, startURL string) error {
	res := s.db.WithContext(ctx).Model(&models.Workshop{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"zoom_meeting_id": meetingID,
			"zoom_join_url":   joinURL,
			"zoom_start_url":  startURL,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update meeting for workshop %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RegistrationStore reads registrations
type RegistrationStore struct {
	db *gorm.DB
}

func NewRegistrationStore(db *gorm.DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

// GetByID returns ErrNotFound when the registration does not exist.
func (s *RegistrationStore) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	var r models.Registration
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get registration %s: %w", id, err)
	}
	return &r, nil
}

// Create inserts a new registration.
func (s *RegistrationStore) Create(ctx context.Context, r *models.Registration) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// ListCompletedByWorkshop returns the paid registrations of a workshop.
func (s *RegistrationStore) ListCompletedByWorkshop(ctx context.Context, workshopID string) ([]models.Registration, error) {
	var registrations []models.Registration
	err := s.db.WithContext(ctx).
		Where("workshop_id = ? AND payment_status = ?", workshopID, models.PaymentCompleted).
		Order("registered_at ASC").
		Find(&registrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations for workshop %s: %w", workshopID, err)
	}
	return registrations, nil
}

// UserStore reads users
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// GetByID returns nil and no error when the user does not exist.
func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Delete removes a user. Registrations pointing at it are left in place.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return nil
}

// SettingsStore manages the singleton settings row
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetDefault returns the settings row, inserting the defaults on first access.
func (s *SettingsStore) GetDefault(ctx context.Context) (*models.Settings, error) {
	db := s.db.WithContext(ctx)

	// Concurrent first calls may both try to insert; only one row wins.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(models.NewDefaultSettings()).Error; err != nil {
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}

	var settings models.Settings
	if err := db.Where("id = ?", models.DefaultSettingsID).First(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

// Save writes the settings row.
func (s *SettingsStore) Save(ctx context.Context, settings *models.Settings) error {
	settings.ID = models.DefaultSettingsID
	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
