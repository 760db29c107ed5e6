package reminders

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyExists is returned by MarkSent when the key is already recorded.
var ErrAlreadyExists = errors.New("reminder already marked as sent")

// Ledger is the durable set of sent-reminder markers.
type Ledger interface {
	HasSent(ctx context.Context, key string) (bool, error)
	// MarkSent records key atomically. Of several concurrent callers with the
	// same key exactly one gets nil; the others get ErrAlreadyExists.
	MarkSent(ctx context.Context, key string, sentAt time.Time) error
}
