package reminders

import (
	"context"
	"errors"
	"sync"
	"time"

	"workshops/internal/models"
)

type fakeWorkshops struct {
	workshops []models.Workshop
	err       error
}

func (f *fakeWorkshops) ListUpcoming(_ context.Context, now time.Time) ([]models.Workshop, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Workshop
	for _, w := range f.workshops {
		if w.DateTime.After(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeRegistrations struct {
	byWorkshop map[string][]models.Registration
	err        error
	calls      int
}

func (f *fakeRegistrations) ListCompletedByWorkshop(_ context.Context, workshopID string) ([]models.Registration, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Registration
	for _, r := range f.byWorkshop[workshopID] {
		if r.PaymentStatus == models.PaymentCompleted {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

type fakeSettings struct {
	settings *models.Settings
	err      error
}

func (f *fakeSettings) GetDefault(context.Context) (*models.Settings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.settings == nil {
		return models.NewDefaultSettings(), nil
	}
	return f.settings, nil
}

// memLedger is an in-memory Ledger with the same atomic insert semantics as
// the database one.
type memLedger struct {
	mu      sync.Mutex
	markers map[string]time.Time
	readErr error
	markErr error
}

func newMemLedger(keys ...string) *memLedger {
	l := &memLedger{markers: make(map[string]time.Time)}
	for _, k := range keys {
		l.markers[k] = time.Time{}
	}
	return l
}

func (l *memLedger) HasSent(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return false, l.readErr
	}
	_, ok := l.markers[key]
	return ok, nil
}

func (l *memLedger) MarkSent(_ context.Context, key string, sentAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return l.markErr
	}
	if _, ok := l.markers[key]; ok {
		return ErrAlreadyExists
	}
	l.markers[key] = sentAt
	return nil
}

func (l *memLedger) has(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.markers[key]
	return ok
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.markers)
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentEmail
	failTo map[string]bool
	send   func(ctx context.Context, to string) error
}

var errSendFailed = errors.New("smtp unavailable")

func (f *fakeSender) Send(ctx context.Context, to, subject, html string) error {
	if f.send != nil {
		if err := f.send(ctx, to); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to] {
		return errSendFailed
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: html})
	return nil
}

func (f *fakeSender) emails() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func (f *fakeSender) countTo(to string) int {
	n := 0
	for _, e := range f.emails() {
		if e.To == to {
			n++
		}
	}
	return n
}
