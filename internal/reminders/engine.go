package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"workshops/internal/models"
	"workshops/internal/templates"

	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single email send when none is configured.
const DefaultSendTimeout = 10 * time.Second

type WorkshopStore interface {
	// ListUpcoming returns the workshops starting strictly after now.
	ListUpcoming(ctx context.Context, now time.Time) ([]models.Workshop, error)
}

type RegistrationStore interface {
	ListCompletedByWorkshop(ctx context.Context, workshopID string) ([]models.Registration, error)
}

type UserStore interface {
	// GetByID returns nil and no error when the user does not exist.
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type SettingsStore interface {
	// GetDefault returns the settings row, creating it with defaults if needed.
	GetDefault(ctx context.Context) (*models.Settings, error)
}

// EmailSender delivers a single HTML email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Dependencies are the collaborators of the dispatch engine
type Dependencies struct {
	Workshops     WorkshopStore
	Registrations RegistrationStore
	Users         UserStore
	Settings      SettingsStore
	Ledger        Ledger
	Sender        EmailSender
}

// Summary describes the outcome of one RunOnce call.
//
// Checked counts (recipient, rule) pairs whose rule was due. Failed counts
// pairs that should have been delivered but were not because of an error;
// they stay eligible for the next tick. Skipped counts pairs already sent or
// whose user no longer exists.
type Summary struct {
	Workshops int `json:"workshops"`
	Checked   int `json:"checked"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Engine decides which reminders are due and sends each one at most once.
// Passes are serialized: the ledger check and the marker write of one pass
// must not interleave with another pass, whoever triggered it.
type Engine struct {
	deps        Dependencies
	sendTimeout time.Duration
	logger      *zap.Logger

	mu sync.Mutex
}

func NewEngine(deps Dependencies, sendTimeout time.Duration, logger *zap.Logger) *Engine {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		deps:        deps,
		sendTimeout: sendTimeout,
		logger:      logger.Named("reminders"),
	}
}

// tick holds the per-run state shared by all workshops of one RunOnce call
type tick struct {
	now      time.Time
	settings models.GlobalReminderSettings
	users    map[string]*models.User
	summary  Summary
}

// RunOnce performs one reminder pass. It never returns an error: failures for
// a workshop or recipient are logged and the rest of the pass continues.
// A call made while another pass is in progress waits for it to finish.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = now.UTC()
	t := &tick{
		now:      now,
		settings: e.loadSettings(ctx),
		users:    make(map[string]*models.User),
	}

	if !t.settings.SendReminders {
		e.logger.Info("Reminder emails are disabled in settings, skipping run")
		return t.summary
	}

	workshops, err := e.deps.Workshops.ListUpcoming(ctx, now)
	if err != nil {
		e.logger.Error("Failed to list upcoming workshops", zap.Error(err))
		return t.summary
	}

	for i := range workshops {
		w := &workshops[i]
		if !w.DateTime.After(now) {
			continue
		}
		t.summary.Workshops++
		e.processWorkshop(ctx, t, w)
	}

	e.logger.Info("Reminder run finished",
		zap.Int("workshops", t.summary.Workshops),
		zap.Int("checked", t.summary.Checked),
		zap.Int("sent", t.summary.Sent),
		zap.Int("failed", t.summary.Failed),
		zap.Int("skipped", t.summary.Skipped),
	)
	return t.summary
}

func (e *Engine) loadSettings(ctx context.Context) models.GlobalReminderSettings {
	s, err := e.deps.Settings.GetDefault(ctx)
	if err != nil {
		e.logger.Warn("Failed to load settings, using defaults", zap.Error(err))
		return models.DefaultGlobalReminderSettings()
	}
	return s.Normalize()
}

func (e *Engine) processWorkshop(ctx context.Context, t *tick, w *models.Workshop) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered while processing workshop",
				zap.String("workshop_id", w.ID), zap.Any("panic", r))
		}
	}()

	var (
		registrations []models.Registration
		loaded        bool
	)

	for _, rule := range ResolveRules(w, t.settings) {
		if !IsDue(t.now, w.DateTime, rule) {
			continue
		}

		if !loaded {
			var err error
			registrations, err = e.deps.Registrations.ListCompletedByWorkshop(ctx, w.ID)
			if err != nil {
				e.logger.Error("Failed to load registrations",
					zap.String("workshop_id", w.ID), zap.Error(err))
				return
			}
			loaded = true
		}

		for j := range registrations {
			t.summary.Checked++
			e.processRecipient(ctx, t, w, rule, &registrations[j])
		}
	}
}

func (e *Engine) processRecipient(ctx context.Context, t *tick, w *models.Workshop, rule Rule, reg *models.Registration) {
	log := e.logger.With(
		zap.String("workshop_id", w.ID),
		zap.String("user_id", reg.UserID),
		zap.String("rule", rule.Identity),
	)

	key := DedupKey(w.ID, reg.UserID, rule.Identity)
	sent, err := e.alreadySent(ctx, key, w.ID, reg.UserID, rule)
	if err != nil {
		log.Error("Failed to check reminder ledger", zap.Error(err))
		t.summary.Failed++
		return
	}
	if sent {
		t.summary.Skipped++
		return
	}

	user, err := e.lookupUser(ctx, t, reg.UserID)
	if err != nil {
		log.Error("Failed to load user", zap.Error(err))
		t.summary.Failed++
		return
	}
	if user == nil {
		log.Warn("Registration references a missing user, skipping")
		t.summary.Skipped++
		return
	}

	subject, body, err := reminderContent(w, user, rule, t.settings)
	if err != nil {
		log.Error("Failed to render reminder", zap.Error(err))
		t.summary.Failed++
		return
	}

	if err := e.send(ctx, user.Email, subject, body); err != nil {
		log.Warn("Failed to send reminder, will retry next run", zap.String("email", user.Email), zap.Error(err))
		t.summary.Failed++
		return
	}
	t.summary.Sent++

	if err := e.deps.Ledger.MarkSent(ctx, key, t.now); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			log.Warn("Reminder was already marked as sent by another caller", zap.String("key", key))
			return
		}
		log.Error("Reminder sent but not recorded, it may be sent again", zap.String("key", key), zap.Error(err))
		return
	}

	log.Info("Reminder sent", zap.String("email", user.Email), zap.Float64("offset_hours", rule.OffsetHours))
}

// alreadySent checks the ledger for the current key and, for the single
// global default rule only, for the key format used before rule identities.
func (e *Engine) alreadySent(ctx context.Context, key, workshopID, userID string, rule Rule) (bool, error) {
	sent, err := e.deps.Ledger.HasSent(ctx, key)
	if err != nil || sent {
		return sent, err
	}
	if rule.Identity != DefaultIdentity {
		return false, nil
	}
	return e.deps.Ledger.HasSent(ctx, LegacyKey(workshopID, userID))
}

func (e *Engine) lookupUser(ctx context.Context, t *tick, id string) (*models.User, error) {
	if user, ok := t.users[id]; ok {
		return user, nil
	}
	user, err := e.deps.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.users[id] = user
	return user, nil
}

func (e *Engine) send(ctx context.Context, to, subject, body string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("email sender panicked: %v", r)
		}
	}()

	return e.deps.Sender.Send(ctx, to, subject, body)
}

// reminderContent builds the subject and HTML body of a reminder.
func reminderContent(w *models.Workshop, user *models.User, rule Rule, settings models.GlobalReminderSettings) (string, string, error) {
	tmpl := settings.SubjectTemplate
	if rule.Subject != "" {
		tmpl = rule.Subject
	}
	subject := templates.Subject(tmpl, w.Title)

	body, err := templates.Reminder(templates.WorkshopEmail{
		RecipientName:  user.Name,
		WorkshopTitle:  w.Title,
		InstructorName: w.InstructorName,
		StartsAt:       w.DateTime,
		JoinURL:        w.ZoomJoinURL,
		SenderName:     settings.SenderName,
	})
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}
