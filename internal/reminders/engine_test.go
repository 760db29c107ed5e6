package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"workshops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const (
	workshopID = "6f1c2a9e-3b5d-4e7f-8a90-b1c2d3e4f5a6"
	aliceID    = "a11ce000-0000-4000-8000-000000000001"
	bobID      = "b0b00000-0000-4000-8000-000000000002"
	carolID    = "ca201000-0000-4000-8000-000000000003"
)

var workshopStart = time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

type fixture struct {
	workshops     *fakeWorkshops
	registrations *fakeRegistrations
	users         *fakeUsers
	settings      *fakeSettings
	ledger        *memLedger
	sender        *fakeSender
	engine        *Engine
}

// newFixture sets up one workshop with two paid registrants and one pending.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		workshops: &fakeWorkshops{workshops: []models.Workshop{{
			ID:             workshopID,
			Title:          "Intro to Go",
			InstructorName: "Dana",
			DateTime:       workshopStart,
			ZoomJoinURL:    "https://zoom.us/j/123456",
		}}},
		registrations: &fakeRegistrations{byWorkshop: map[string][]models.Registration{
			workshopID: {
				{UserID: aliceID, WorkshopID: workshopID, PaymentStatus: models.PaymentCompleted},
				{UserID: bobID, WorkshopID: workshopID, PaymentStatus: models.PaymentCompleted},
				{UserID: carolID, WorkshopID: workshopID, PaymentStatus: models.PaymentPending},
			},
		}},
		users: &fakeUsers{users: map[string]*models.User{
			aliceID: {ID: aliceID, Name: "Alice", Email: "alice@example.com"},
			bobID:   {ID: bobID, Name: "Bob", Email: "bob@example.com"},
			carolID: {ID: carolID, Name: "Carol", Email: "carol@example.com"},
		}},
		settings: &fakeSettings{},
		ledger:   newMemLedger(),
		sender:   &fakeSender{failTo: map[string]bool{}},
	}
	f.engine = NewEngine(f.deps(), 50*time.Millisecond, nil)
	return f
}

func (f *fixture) deps() Dependencies {
	return Dependencies{
		Workshops:     f.workshops,
		Registrations: f.registrations,
		Users:         f.users,
		Settings:      f.settings,
		Ledger:        f.ledger,
		Sender:        f.sender,
	}
}

func (f *fixture) setOffsets(hours ...float64) {
	s := models.NewDefaultSettings()
	s.SetReminderHours(hours)
	f.settings.settings = s
}

func (f *fixture) runAt(before time.Duration) Summary {
	return f.engine.RunOnce(context.Background(), workshopStart.Add(-before))
}

func TestRunOnceSendsEachRuleOnce(t *testing.T) {
	f := newFixture(t)

	// T-26h: nothing is due yet
	s := f.runAt(26 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1}, s)
	assert.Zero(t, f.registrations.calls, "registrations are only loaded when a rule is due")

	// T-23h: the 24h reminder goes out to both paid registrants
	s = f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 2}, s)
	assert.True(t, f.ledger.has(DedupKey(workshopID, aliceID, "24h_default")))
	assert.True(t, f.ledger.has(DedupKey(workshopID, bobID, "24h_default")))
	assert.Zero(t, f.sender.countTo("carol@example.com"))

	// T-22h: already sent
	s = f.runAt(22 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Skipped: 2}, s)

	// T-30m: the 1h reminder goes out, the 24h one is still skipped
	s = f.runAt(30 * time.Minute)
	assert.Equal(t, Summary{Workshops: 1, Checked: 4, Sent: 2, Skipped: 2}, s)
	assert.True(t, f.ledger.has(DedupKey(workshopID, aliceID, "1h_default")))

	// After the start the workshop is no longer considered
	s = f.engine.RunOnce(context.Background(), workshopStart.Add(time.Minute))
	assert.Equal(t, Summary{}, s)

	assert.Equal(t, 2, f.sender.countTo("alice@example.com"))
	assert.Equal(t, 2, f.sender.countTo("bob@example.com"))
	assert.Equal(t, 4, f.ledger.len())
}

func TestRunOnceNoDuplicatesAcrossManyRuns(t *testing.T) {
	f := newFixture(t)

	for now := workshopStart.Add(-48 * time.Hour); now.Before(workshopStart.Add(time.Hour)); now = now.Add(7 * time.Minute) {
		f.engine.RunOnce(context.Background(), now)
	}

	assert.Equal(t, 2, f.sender.countTo("alice@example.com"))
	assert.Equal(t, 2, f.sender.countTo("bob@example.com"))
	assert.Equal(t, 4, f.ledger.len())
}

func TestRunOnceLateStartSendsAllDueRules(t *testing.T) {
	f := newFixture(t)

	// First run happens after both thresholds have passed
	s := f.runAt(10 * time.Minute)
	assert.Equal(t, 4, s.Sent)

	emails := f.sender.emails()
	require.Len(t, emails, 4)
	assert.Equal(t, "alice@example.com", emails[0].To)
}

func TestRunOnceContent(t *testing.T) {
	f := newFixture(t)
	f.runAt(23 * time.Hour)

	emails := f.sender.emails()
	require.NotEmpty(t, emails)
	assert.Equal(t, "Reminder: Intro to Go is coming up!", emails[0].Subject)
	assert.Contains(t, emails[0].Body, "Hi Alice")
	assert.Contains(t, emails[0].Body, "Dana")
	assert.Contains(t, emails[0].Body, "https://zoom.us/j/123456")
	assert.Contains(t, emails[0].Body, "Sunday, June 1, 2025")
	assert.Contains(t, emails[0].Body, "3:00 PM UTC")
}

func TestRunOnceOmitsMissingJoinURL(t *testing.T) {
	f := newFixture(t)
	f.workshops.workshops[0].ZoomJoinURL = ""
	f.runAt(23 * time.Hour)

	emails := f.sender.emails()
	require.NotEmpty(t, emails)
	assert.NotContains(t, emails[0].Body, "Join URL")
}

func TestRunOncePerWorkshopRules(t *testing.T) {
	f := newFixture(t)
	f.workshops.workshops[0].ReminderSettings = datatypes.JSONSlice[models.ReminderSetting]{
		{HoursBefore: 2, Type: models.ReminderKindEmail, Subject: "Starting soon: {workshop_title}"},
	}

	// The global 24h rule does not apply to this workshop
	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1}, s)

	s = f.runAt(90 * time.Minute)
	assert.Equal(t, 2, s.Sent)
	assert.True(t, f.ledger.has(DedupKey(workshopID, aliceID, "2h")))
	assert.Equal(t, "Starting soon: Intro to Go", f.sender.emails()[0].Subject)
}

func TestRunOnceLegacyMarker(t *testing.T) {
	f := newFixture(t)
	f.setOffsets(24)
	f.ledger = newMemLedger(LegacyKey(workshopID, aliceID))
	f.engine = NewEngine(f.deps(), time.Second, nil)

	s := f.runAt(2 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 1, Skipped: 1}, s)
	assert.Zero(t, f.sender.countTo("alice@example.com"))
	assert.Equal(t, 1, f.sender.countTo("bob@example.com"))
	assert.False(t, f.ledger.has(DedupKey(workshopID, aliceID, DefaultIdentity)))
	assert.True(t, f.ledger.has(DedupKey(workshopID, bobID, DefaultIdentity)))
}

func TestRunOnceLegacyMarkerIgnoredForMultipleOffsets(t *testing.T) {
	f := newFixture(t)
	f.ledger = newMemLedger(LegacyKey(workshopID, aliceID))
	f.engine = NewEngine(f.deps(), time.Second, nil)

	f.runAt(30 * time.Minute)
	assert.Equal(t, 2, f.sender.countTo("alice@example.com"))
}

func TestRunOnceFailedSendIsRetried(t *testing.T) {
	f := newFixture(t)
	f.sender.failTo["alice@example.com"] = true

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 1, Failed: 1}, s)
	assert.False(t, f.ledger.has(DedupKey(workshopID, aliceID, "24h_default")))

	f.sender.failTo["alice@example.com"] = false
	s = f.runAt(22 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 1, Skipped: 1}, s)
	assert.Equal(t, 1, f.sender.countTo("alice@example.com"))
	assert.Equal(t, 1, f.sender.countTo("bob@example.com"))
}

func TestRunOnceMissingUserIsSkipped(t *testing.T) {
	f := newFixture(t)
	delete(f.users.users, aliceID)

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 1, Skipped: 1}, s)
	assert.False(t, f.ledger.has(DedupKey(workshopID, aliceID, "24h_default")))
}

func TestRunOnceUserLookupError(t *testing.T) {
	f := newFixture(t)
	f.users.err = errors.New("connection reset")

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Failed: 2}, s)
	assert.Empty(t, f.sender.emails())
}

func TestRunOnceSendTimeout(t *testing.T) {
	f := newFixture(t)
	f.sender.send = func(ctx context.Context, to string) error {
		if to != "alice@example.com" {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	s := f.runAt(23 * time.Hour)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 1, Failed: 1}, s)
	assert.False(t, f.ledger.has(DedupKey(workshopID, aliceID, "24h_default")))
}

func TestRunOnceSenderPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.sender.send = func(_ context.Context, to string) error {
		if to == "alice@example.com" {
			panic("template exploded")
		}
		return nil
	}

	var s Summary
	require.NotPanics(t, func() { s = f.runAt(23 * time.Hour) })
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 1, Failed: 1}, s)
	assert.Equal(t, 1, f.sender.countTo("bob@example.com"))
}

type panickyRegistrations struct {
	RegistrationStore
	panicFor string
}

func (p *panickyRegistrations) ListCompletedByWorkshop(ctx context.Context, workshopID string) ([]models.Registration, error) {
	if workshopID == p.panicFor {
		panic("corrupt row")
	}
	return p.RegistrationStore.ListCompletedByWorkshop(ctx, workshopID)
}

func TestRunOnceWorkshopPanicIsContained(t *testing.T) {
	f := newFixture(t)
	const otherID = "0e1f2a3b-4c5d-4e6f-8a9b-0c1d2e3f4a5b"
	f.workshops.workshops = append(f.workshops.workshops, models.Workshop{
		ID: otherID, Title: "Advanced Go", DateTime: workshopStart.Add(time.Hour),
	})
	f.registrations.byWorkshop[otherID] = []models.Registration{
		{UserID: bobID, WorkshopID: otherID, PaymentStatus: models.PaymentCompleted},
	}

	deps := f.deps()
	deps.Registrations = &panickyRegistrations{RegistrationStore: f.registrations, panicFor: workshopID}
	engine := NewEngine(deps, time.Second, nil)

	var s Summary
	require.NotPanics(t, func() { s = engine.RunOnce(context.Background(), workshopStart.Add(-23*time.Hour)) })
	assert.Equal(t, 2, s.Workshops)
	assert.Equal(t, 1, s.Sent)
	assert.True(t, f.ledger.has(DedupKey(otherID, bobID, "24h_default")))
}

func TestRunOnceLedgerReadError(t *testing.T) {
	f := newFixture(t)
	f.ledger.readErr = errors.New("ledger offline")

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Failed: 2}, s)
	assert.Empty(t, f.sender.emails())
}

func TestRunOnceMarkConflictCountsAsSent(t *testing.T) {
	f := newFixture(t)
	f.ledger.markErr = ErrAlreadyExists

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1, Checked: 2, Sent: 2}, s)
}

func TestRunOnceRemindersDisabled(t *testing.T) {
	f := newFixture(t)
	disabled := false
	f.settings.settings = models.NewDefaultSettings()
	f.settings.settings.SendReminders = &disabled

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{}, s)
	assert.Empty(t, f.sender.emails())
}

func TestRunOnceSettingsErrorUsesDefaults(t *testing.T) {
	f := newFixture(t)
	f.settings.err = errors.New("settings table locked")

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, 2, s.Sent)
	assert.True(t, f.ledger.has(DedupKey(workshopID, aliceID, "24h_default")))
}

func TestRunOnceListError(t *testing.T) {
	f := newFixture(t)
	f.workshops.err = errors.New("database is down")

	assert.Equal(t, Summary{}, f.runAt(23*time.Hour))
}

func TestRunOnceRegistrationError(t *testing.T) {
	f := newFixture(t)
	f.registrations.err = errors.New("timeout")

	s := f.runAt(23 * time.Hour)
	assert.Equal(t, Summary{Workshops: 1}, s)
	assert.Empty(t, f.sender.emails())
}

func TestRunOnceConcurrentCallsSendOnce(t *testing.T) {
	f := newFixture(t)
	f.setOffsets(24)
	// Slow sends widen the window between the ledger check and the marker
	f.sender.send = func(context.Context, string) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	now := workshopStart.Add(-23 * time.Hour)
	summaries := make([]Summary, 2)
	var wg sync.WaitGroup
	for i := range summaries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i] = f.engine.RunOnce(context.Background(), now)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.sender.countTo("alice@example.com"))
	assert.Equal(t, 1, f.sender.countTo("bob@example.com"))
	assert.Equal(t, 2, f.ledger.len())
	assert.Equal(t, 2, summaries[0].Sent+summaries[1].Sent)
	assert.Equal(t, 2, summaries[0].Skipped+summaries[1].Skipped)
}
