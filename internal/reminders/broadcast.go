package reminders

import (
	"context"
	"fmt"

	"workshops/internal/models"

	"go.uber.org/zap"
)

// Broadcaster sends the reminder email for one workshop to every completed
// registrant on demand. It has no ledger: it never reads or writes markers,
// so scheduled reminders are unaffected by manual sends.
type Broadcaster struct {
	registrations RegistrationStore
	users         UserStore
	engine        *Engine
	logger        *zap.Logger
}

// NewBroadcaster reuses the engine's settings loading and send path (timeout
// and panic recovery) but none of its dedup state.
func NewBroadcaster(engine *Engine, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		registrations: engine.deps.Registrations,
		users:         engine.deps.Users,
		engine:        engine,
		logger:        logger.Named("broadcast"),
	}
}

// BroadcastResult counts the outcome of a manual send
type BroadcastResult struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent_count"`
	Failed     int `json:"failed"`
}

// Send emails every completed registrant of w, regardless of what the
// scheduler has already delivered.
func (b *Broadcaster) Send(ctx context.Context, w *models.Workshop) (BroadcastResult, error) {
	var result BroadcastResult

	registrations, err := b.registrations.ListCompletedByWorkshop(ctx, w.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load registrations: %w", err)
	}

	settings := b.engine.loadSettings(ctx)

	for _, reg := range registrations {
		user, err := b.users.GetByID(ctx, reg.UserID)
		if err != nil {
			b.logger.Error("Failed to load user", zap.String("user_id", reg.UserID), zap.Error(err))
			result.Failed++
			continue
		}
		if user == nil {
			continue
		}
		result.Recipients++

		subject, body, err := reminderContent(w, user, Rule{}, settings)
		if err != nil {
			b.logger.Error("Failed to render reminder", zap.Error(err))
			result.Failed++
			continue
		}

		if err := b.engine.send(ctx, user.Email, subject, body); err != nil {
			b.logger.Warn("Failed to send manual reminder", zap.String("email", user.Email), zap.Error(err))
			result.Failed++
			continue
		}
		result.Sent++
	}

	b.logger.Info("Manual reminder broadcast finished",
		zap.String("workshop_id", w.ID),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
