package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/matching"
	"github.com/example/roadassist/internal/dispatch/repository"
	"github.com/example/roadassist/internal/dispatch/service"
)

type pushCall struct {
	recipient uuid.UUID
	title     string
}

type smsCall struct {
	phone string
	text  string
}

type stubGateway struct {
	mu        sync.Mutex
	pushes    []pushCall
	smss      []smsCall
	failPush  map[uuid.UUID]bool
	failPhone map[string]bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{failPush: make(map[uuid.UUID]bool), failPhone: make(map[string]bool)}
}

func (g *stubGateway) SendPush(_ context.Context, recipientID uuid.UUID, title, _ string, _ map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPush[recipientID] {
		return errors.New("push gateway down")
	}
	g.pushes = append(g.pushes, pushCall{recipient: recipientID, title: title})
	return nil
}

func (g *stubGateway) SendSMS(_ context.Context, phone, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPhone[phone] {
		return errors.New("sms gateway down")
	}
	g.smss = append(g.smss, smsCall{phone: phone, text: text})
	return nil
}

func (g *stubGateway) pushRecipients() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uuid.UUID, 0, len(g.pushes))
	for _, p := range g.pushes {
		out = append(out, p.recipient)
	}
	return out
}

func (g *stubGateway) smsPhones() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.smss))
	for _, s := range g.smss {
		out = append(out, s.phone)
	}
	return out
}

func (g *stubGateway) smsTextsTo(phone string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.smss {
		if s.phone == phone {
			out = append(out, s.text)
		}
	}
	return out
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.DispatchEvent
}

func (p *stubPublisher) Publish(_ context.Context, event domain.DispatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type stubClock struct{ t time.Time }

func (c stubClock) Now() time.Time { return c.t }

type fixture struct {
	store    *repository.MemoryStore
	gateway  *stubGateway
	events   *stubPublisher
	clock    stubClock
	svc      *service.Service
	customer domain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	gateway := newStubGateway()
	events := &stubPublisher{}
	clock := stubClock{t: time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)}
	svc := service.New(store, store, store, gateway, events, matching.NewRepoSource(store), clock, nil, service.Config{
		RadiusKM:      10,
		NotifyTimeout: time.Second,
	})
	customer := domain.Customer{ID: uuid.New(), Name: "Asha", Phone: "+911234500001"}
	store.PutCustomer(context.Background(), customer)
	return &fixture{store: store, gateway: gateway, events: events, clock: clock, svc: svc, customer: customer}
}

func (f *fixture) addMechanic(t *testing.T, name, phone string, loc *domain.GeoPoint, available bool) domain.Mechanic {
	t.Helper()
	mech := domain.Mechanic{
		ID:         uuid.New(),
		Name:       name,
		Phone:      phone,
		MechanicID: domain.NewMechanicCode(f.clock.t),
		Workshop:   name + " Garage",
		Location:   loc,
		Available:  available,
	}
	f.store.PutMechanic(context.Background(), mech)
	return mech
}

var (
	origin = domain.GeoPoint{Lat: 12.90, Lng: 77.60}
	pt2km  = domain.GeoPoint{Lat: 12.918, Lng: 77.60}
	pt8km  = domain.GeoPoint{Lat: 12.972, Lng: 77.60}
	pt15km = domain.GeoPoint{Lat: 13.035, Lng: 77.60}
)

func createInput() service.CreateRequestInput {
	return service.CreateRequestInput{
		VehicleModel:  "Hero Splendor",
		ServiceType:   "breakdown",
		Issue:         "engine will not start",
		Location:      origin,
		EstimatedCost: 450,
	}
}

func TestCreateRequestPersistsPending(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, created.Status)
	require.Nil(t, created.MechanicID)
	require.Equal(t, domain.UrgencyMedium, created.Urgency)
	require.Equal(t, f.clock.t, created.CreatedAt)
	require.Equal(t, f.customer.ID, created.CustomerID)

	stored, err := f.store.GetRequestByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, stored.ID)
}

func TestCreateRequestNotifiesNearbyMechanicsOnly(t *testing.T) {
	f := newFixture(t)
	near := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	mid := f.addMechanic(t, "Sunil", "+911234500003", &pt8km, true)
	f.addMechanic(t, "Far Away", "+911234500004", &pt15km, true)
	f.addMechanic(t, "Off Shift", "+911234500005", &pt2km, false)

	_, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.gateway.pushRecipients()) == 2 && len(f.gateway.smsPhones()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.ElementsMatch(t, []uuid.UUID{near.ID, mid.ID}, f.gateway.pushRecipients())
	require.ElementsMatch(t, []string{near.Phone, mid.Phone}, f.gateway.smsPhones())
}

func TestCreateRequestFanOutIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	broken := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	healthy := f.addMechanic(t, "Sunil", "+911234500003", &pt8km, true)
	f.gateway.failPush[broken.ID] = true
	f.gateway.failPhone[broken.Phone] = true

	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.gateway.pushRecipients()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []uuid.UUID{healthy.ID}, f.gateway.pushRecipients())

	// The persisted request survives delivery failures.
	stored, err := f.store.GetRequestByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, stored.Status)
}

func TestAcceptExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)

	const contenders = 8
	mechanics := make([]domain.Mechanic, contenders)
	for i := range mechanics {
		mechanics[i] = f.addMechanic(t, "M", fmt.Sprintf("+91123450010%d", i), &pt2km, true)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(context.Background(), created.ID, mechanics[i].ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, domain.ErrRequestConflict)
		}
	}
	require.Equal(t, 1, wins)

	// The winner is stable under repeated reads.
	stored, err := f.store.GetRequestByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAccepted, stored.Status)
	require.NotNil(t, stored.MechanicID)
	winner := *stored.MechanicID
	again, err := f.store.GetRequestByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, winner, *again.MechanicID)
}

func TestAcceptNotifiesCustomer(t *testing.T) {
	f := newFixture(t)
	mech := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), created.ID, mech.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.gateway.smsTextsTo(f.customer.Phone)) > 0
	}, 2*time.Second, 10*time.Millisecond)
	texts := f.gateway.smsTextsTo(f.customer.Phone)
	require.Contains(t, texts[0], "accepted by Ravi")
}

func TestAcceptUnknownMechanic(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), created.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrMechanicNotFound)
}

func TestTransitionRequiresAssignedMechanic(t *testing.T) {
	f := newFixture(t)
	assigned := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	other := f.addMechanic(t, "Sunil", "+911234500003", &pt8km, true)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), created.ID, assigned.ID)
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), created.ID, other.ID, domain.StatusInProgress, nil)
	require.ErrorIs(t, err, domain.ErrNotAssigned)

	// A pending request has no assignee, so nobody may transition it.
	pending, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), pending.ID, assigned.ID, domain.StatusCancelled, nil)
	require.ErrorIs(t, err, domain.ErrNotAssigned)
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	f := newFixture(t)
	mech := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), created.ID, mech.ID)
	require.NoError(t, err)

	// Skipping in-progress is not allowed.
	_, err = f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusCompleted, nil)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Reverting is not allowed either.
	_, err = f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusPending, nil)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransitionCompleteRecordsCostAndTimestamp(t *testing.T) {
	f := newFixture(t)
	mech := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), created.ID, mech.ID)
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusInProgress, nil)
	require.NoError(t, err)

	cost := 500.0
	completed, err := f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusCompleted, &cost)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.ActualCost)
	require.Equal(t, 500.0, *completed.ActualCost)
	require.NotNil(t, completed.CompletedAt)
	require.Equal(t, f.clock.t, *completed.CompletedAt)

	// Terminal states accept nothing further.
	_, err = f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusCompleted, nil)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusCancelled, nil)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.Eventually(t, func() bool {
		for _, text := range f.gateway.smsTextsTo(f.customer.Phone) {
			if strings.Contains(text, "completed") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	for _, text := range f.gateway.smsTextsTo(f.customer.Phone) {
		if strings.Contains(text, "completed") {
			require.Contains(t, text, "500")
		}
	}
}

func TestTransitionCompleteWithoutCostKeepsEstimate(t *testing.T) {
	f := newFixture(t)
	mech := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), created.ID, mech.ID)
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusInProgress, nil)
	require.NoError(t, err)

	completed, err := f.svc.Transition(context.Background(), created.ID, mech.ID, domain.StatusCompleted, nil)
	require.NoError(t, err)
	require.Nil(t, completed.ActualCost)
	require.Equal(t, 450.0, completed.FinalCost())
}

func TestAvailableRequestsWithinRadius(t *testing.T) {
	f := newFixture(t)
	nearMech := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	farMech := f.addMechanic(t, "Far Away", "+911234500004", &pt15km, true)
	unlocated := f.addMechanic(t, "Lost", "+911234500006", nil, true)

	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)

	visible, err := f.svc.AvailableRequests(context.Background(), nearMech.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, created.ID, visible[0].ID)

	invisible, err := f.svc.AvailableRequests(context.Background(), farMech.ID)
	require.NoError(t, err)
	require.Empty(t, invisible)

	_, err = f.svc.AvailableRequests(context.Background(), unlocated.ID)
	require.ErrorIs(t, err, domain.ErrNoLocation)
}

func TestHistoryReturnsOwnRequestsNewestFirst(t *testing.T) {
	f := newFixture(t)
	other := domain.Customer{ID: uuid.New(), Name: "Vikram", Phone: "+911234500009"}
	f.store.PutCustomer(context.Background(), other)

	base := f.clock.t
	for i := 0; i < 2; i++ {
		_, err := f.store.CreateRequest(context.Background(), domain.ServiceRequest{
			ID:         uuid.New(),
			CustomerID: f.customer.ID,
			Status:     domain.StatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := f.store.CreateRequest(context.Background(), domain.ServiceRequest{
		ID:         uuid.New(),
		CustomerID: other.ID,
		Status:     domain.StatusPending,
		CreatedAt:  base,
	})
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), f.customer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].CreatedAt.After(history[1].CreatedAt))
	for _, req := range history {
		require.Equal(t, f.customer.ID, req.CustomerID)
	}
}

func TestEventsPublishedOnLifecycle(t *testing.T) {
	f := newFixture(t)
	mech := f.addMechanic(t, "Ravi", "+911234500002", &pt2km, true)
	created, err := f.svc.CreateRequest(context.Background(), f.customer.ID, createInput())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), created.ID, mech.ID)
	require.NoError(t, err)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 2)
	require.Equal(t, domain.EventRequestCreated, f.events.events[0].Type)
	require.Equal(t, domain.EventRequestAccepted, f.events.events[1].Type)
}
