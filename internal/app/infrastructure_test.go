package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

func TestMemoryInFlightGuard(t *testing.T) {
	guard := NewMemoryInFlightGuard()
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "apply:user_1:sub-1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := guard.Acquire(ctx, "apply:user_1:sub-1"); !errors.Is(err, domain.ErrEditInFlight) {
		t.Fatalf("expected ErrEditInFlight while held, got %v", err)
	}

	otherRelease, err := guard.Acquire(ctx, "apply:user_1:sub-2")
	if err != nil {
		t.Fatalf("expected independent key to be free, got %v", err)
	}
	otherRelease()

	release()
	release()

	again, err := guard.Acquire(ctx, "apply:user_1:sub-1")
	if err != nil {
		t.Fatalf("expected key to be free after release, got %v", err)
	}
	again()
}

func TestNewRedisInFlightGuardDefaults(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		ttl        time.Duration
		wantPrefix string
		wantTTL    time.Duration
	}{
		{name: "defaults", prefix: "  ", ttl: 0, wantPrefix: "subscription_edit:in_flight", wantTTL: time.Second},
		{name: "trailing colon trimmed", prefix: "edits:", ttl: 45 * time.Second, wantPrefix: "edits", wantTTL: 45 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewRedisInFlightGuard(nil, tt.prefix, tt.ttl, nil)
			if guard.prefix != tt.wantPrefix || guard.ttl != tt.wantTTL {
				t.Fatalf("got prefix=%q ttl=%s, want prefix=%q ttl=%s", guard.prefix, guard.ttl, tt.wantPrefix, tt.wantTTL)
			}
		})
	}
}

func TestEditSessionsExpire(t *testing.T) {
	sessions := NewEditSessions(10 * time.Minute)
	clock := time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	sessions.Put("user_1", "sub-1", domain.Subscription{ID: "sub-1"})
	sessions.Put("user_2", "sub-1", domain.Subscription{ID: "sub-1"})

	if _, ok := sessions.Get("user_1", "sub-1"); !ok {
		t.Fatal("expected fresh session to be found")
	}
	if _, ok := sessions.Get("user_3", "sub-1"); ok {
		t.Fatal("sessions must be scoped per user")
	}

	clock = clock.Add(10 * time.Minute)
	if _, ok := sessions.Get("user_1", "sub-1"); ok {
		t.Fatal("expected session to expire at ttl")
	}
	if sessions.Len() != 1 {
		t.Fatalf("expected expired entry to be removed on read, got %d entries", sessions.Len())
	}

	if removed := sessions.Prune(); removed != 1 {
		t.Fatalf("expected prune to remove 1 session, got %d", removed)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no sessions left, got %d", sessions.Len())
	}
}

type catalogSourceStub struct {
	sets []domain.MealSet
	err  error
}

func (s *catalogSourceStub) ListMealSets(ctx context.Context) ([]domain.MealSet, error) {
	return s.sets, s.err
}

func TestCatalogRefreshAndEnrich(t *testing.T) {
	source := &catalogSourceStub{sets: []domain.MealSet{
		{ID: "veg", Name: "Veg Thali", Price: decimal.NewFromInt(120)},
		{ID: "nonveg", Name: "Chicken Thali", Price: decimal.NewFromInt(160)},
	}}
	catalog := NewCatalog(source, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if !catalog.RefreshedAt().IsZero() {
		t.Fatal("expected zero refresh time before the first refresh")
	}
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	s := domain.EmptySchedule()
	s[0].Enabled = true
	s[0].Meals = []domain.MealSelection{{SetID: "veg", Quantity: 2}, {SetID: "mystery", Quantity: 1}}

	enriched := catalog.Enrich(s)
	if enriched[0].Meals[0].Name != "Veg Thali" || !enriched[0].Meals[0].Price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected known set to be enriched, got %+v", enriched[0].Meals[0])
	}
	if enriched[0].Meals[1].Name != "" || enriched[0].Meals[1].Price != nil {
		t.Fatalf("expected unknown set to stay bare, got %+v", enriched[0].Meals[1])
	}
	if s[0].Meals[0].Name != "" {
		t.Fatal("Enrich must not modify its input")
	}
	if !domain.SchedulesEqual(s, enriched) {
		t.Fatal("enriched schedule must still compare equal to the original")
	}

	price := catalog.PriceOr(decimal.NewFromInt(99))
	if !price("nonveg").Equal(decimal.NewFromInt(160)) || !price("mystery").Equal(decimal.NewFromInt(99)) {
		t.Fatal("unexpected PriceOr lookups")
	}
}

func TestCatalogRefreshFailureKeepsCache(t *testing.T) {
	source := &catalogSourceStub{sets: []domain.MealSet{{ID: "veg", Name: "Veg Thali", Price: decimal.NewFromInt(120)}}}
	catalog := NewCatalog(source, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	source.err = domain.ErrServerFailure
	if err := catalog.Refresh(context.Background()); !errors.Is(err, domain.ErrServerFailure) {
		t.Fatalf("expected refresh error, got %v", err)
	}
	if _, ok := catalog.Lookup("veg"); !ok {
		t.Fatal("expected cached set to survive a failed refresh")
	}

	if err := NewCatalog(nil, nil).Refresh(context.Background()); err == nil {
		t.Fatal("expected error for catalog without a source")
	}
}

func TestEstimateCost(t *testing.T) {
	flat := func(string) decimal.Decimal { return decimal.NewFromInt(100) }
	// 2025-01-13 is a Monday; the week runs Monday through Sunday.
	today := time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC)
	sub := domain.Subscription{
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC),
	}

	s := domain.EmptySchedule()
	s[0].Enabled = true
	s[0].Meals = []domain.MealSelection{{SetID: "veg", Quantity: 2}}
	s[4].Enabled = true
	s[4].Meals = []domain.MealSelection{{SetID: "veg", Quantity: 1}}
	s[6].Meals = []domain.MealSelection{{SetID: "veg", Quantity: 5}}

	got := EstimateCost(s, sub, today, flat)
	if want := decimal.NewFromInt(300); !got.Equal(want) {
		t.Fatalf("EstimateCost = %s, want %s", got, want)
	}

	ended := sub
	ended.EndDate = today.AddDate(0, 0, -1)
	if got := EstimateCost(s, ended, today, flat); !got.IsZero() {
		t.Fatalf("expected zero cost for an ended subscription, got %s", got)
	}

	future := domain.Subscription{
		StartDate: time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.January, 27, 0, 0, 0, 0, time.UTC),
	}
	if got := EstimateCost(s, future, today, flat); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected counting to start at the start date, got %s", got)
	}
}

func TestJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := &catalogSourceStub{sets: []domain.MealSet{{ID: "veg", Price: decimal.NewFromInt(120)}}}
	catalog := NewCatalog(source, logger)
	sessions := NewEditSessions(time.Minute)
	clock := time.Now()
	sessions.now = func() time.Time { return clock }
	sessions.Put("user_1", "sub-1", domain.Subscription{})

	jobs := NewJobs(catalog, sessions, logger, 0)

	jobs.RefreshCatalog()
	if _, ok := catalog.Lookup("veg"); !ok {
		t.Fatal("expected catalog refresh job to load sets")
	}

	clock = clock.Add(2 * time.Minute)
	jobs.PruneEditSessions()
	if sessions.Len() != 0 {
		t.Fatalf("expected prune job to drop expired sessions, got %d", sessions.Len())
	}
}

func TestSchedulerRegistersValidJobsOnly(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(NewCatalog(&catalogSourceStub{}, logger), NewEditSessions(time.Minute), logger, time.Second)

	scheduler := NewScheduler(jobs, logger, "@every 15m", "not a schedule")
	scheduler.Start()
	defer scheduler.Stop()

	if got := scheduler.Entries(); got != 1 {
		t.Fatalf("expected 1 registered job, got %d", got)
	}
}
