package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/geo"
	"github.com/example/roadassist/internal/dispatch/matching"
)

// Config carries the dispatch tunables. Values are decided once at process
// start and passed in; nothing here is read from the environment at call time.
type Config struct {
	RadiusKM      float64
	NotifyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RadiusKM <= 0 {
		c.RadiusKM = geo.DefaultRadiusKM
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 3 * time.Second
	}
	return c
}

// Service coordinates service request dispatch: creation, candidate matching
// and notification fan-out, and the request lifecycle with its exclusive
// acceptance semantics.
type Service struct {
	requests  domain.RequestRepository
	mechanics domain.MechanicRepository
	customers domain.CustomerRepository
	gateway   domain.NotificationGateway
	events    domain.EventPublisher
	source    matching.CandidateSource
	clock     domain.Clock
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New constructs a Service with the required collaborators.
func New(
	requests domain.RequestRepository,
	mechanics domain.MechanicRepository,
	customers domain.CustomerRepository,
	gateway domain.NotificationGateway,
	events domain.EventPublisher,
	source matching.CandidateSource,
	clock domain.Clock,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		requests:  requests,
		mechanics: mechanics,
		customers: customers,
		gateway:   gateway,
		events:    events,
		source:    source,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		tracer:    otel.Tracer("dispatch.service"),
	}
}

// CreateRequestInput contains the customer-supplied request fields. Presence
// validation happens at the HTTP boundary; defaults are applied here.
type CreateRequestInput struct {
	VehicleModel  string
	ServiceType   string
	Issue         string
	Address       string
	Location      domain.GeoPoint
	EstimatedTime string
	EstimatedCost float64
	Urgency       domain.Urgency
}

// CreateRequest persists a pending request and kicks off the notification
// fan-out to nearby available mechanics. The caller gets the persisted
// request back immediately; delivery happens in the background and its
// failures never surface here.
func (s *Service) CreateRequest(ctx context.Context, customerID uuid.UUID, in CreateRequestInput) (domain.ServiceRequest, error) {
	urgency := in.Urgency
	if urgency == "" {
		urgency = domain.UrgencyMedium
	}

	req := domain.ServiceRequest{
		ID:            uuid.New(),
		CustomerID:    customerID,
		VehicleModel:  in.VehicleModel,
		ServiceType:   in.ServiceType,
		Issue:         in.Issue,
		Address:       in.Address,
		Location:      in.Location,
		EstimatedTime: in.EstimatedTime,
		EstimatedCost: in.EstimatedCost,
		Urgency:       urgency,
		Status:        domain.StatusPending,
		CreatedAt:     s.clock.Now(),
	}

	created, err := s.requests.CreateRequest(ctx, req)
	if err != nil {
		return domain.ServiceRequest{}, fmt.Errorf("create request: %w", err)
	}

	_ = s.events.Publish(ctx, domain.DispatchEvent{
		RequestID: created.ID,
		Type:      domain.EventRequestCreated,
		Payload:   map[string]any{"customer_id": created.CustomerID.String(), "service_type": created.ServiceType},
		CreatedAt: s.clock.Now(),
	})

	go s.fanOutNewRequest(ctx, created)

	return created, nil
}

// fanOutNewRequest notifies every matched mechanic. Each recipient gets its
// own goroutine and timeout so one slow push cannot delay the rest.
func (s *Service) fanOutNewRequest(parent context.Context, req domain.ServiceRequest) {
	ctx, span := s.tracer.Start(context.WithoutCancel(parent), "dispatch.fanout")
	defer span.End()

	candidates, err := s.source.Candidates(ctx, req.Location, s.cfg.RadiusKM)
	matching.ObserveLookup(len(candidates), err)
	if err != nil {
		s.logger.Warn("candidate lookup failed", zap.Error(err), zap.String("request_id", req.ID.String()))
		return
	}

	var wg sync.WaitGroup
	for _, mech := range candidates {
		wg.Add(1)
		go func(m domain.Mechanic) {
			defer wg.Done()
			nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
			defer cancel()

			if err := s.gateway.SendPush(nctx, m.ID, "New Service Request",
				fmt.Sprintf("New request for %s on %s", req.ServiceType, req.VehicleModel),
				map[string]string{"request_id": req.ID.String()},
			); err != nil {
				s.logger.Warn("push failed", zap.Error(err), zap.String("mechanic_id", m.ID.String()))
			}
			if err := s.gateway.SendSMS(nctx, m.Phone,
				fmt.Sprintf("New service request available: %s on %s. Estimated cost: ₹%.0f. Login to accept.",
					req.ServiceType, req.VehicleModel, req.EstimatedCost),
			); err != nil {
				s.logger.Warn("sms failed", zap.Error(err), zap.String("mechanic_id", m.ID.String()))
			}
		}(mech)
	}
	wg.Wait()
}

// AvailableRequests lists pending requests within the dispatch radius of the
// calling mechanic's last known location, in creation order.
func (s *Service) AvailableRequests(ctx context.Context, mechanicID uuid.UUID) ([]domain.ServiceRequest, error) {
	mech, err := s.mechanics.GetMechanicByID(ctx, mechanicID)
	if err != nil {
		return nil, err
	}
	if mech.Location == nil {
		return nil, domain.ErrNoLocation
	}

	pending, err := s.requests.PendingRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	var out []domain.ServiceRequest
	for _, req := range pending {
		if geo.WithinRadius(*mech.Location, req.Location, s.cfg.RadiusKM) {
			out = append(out, req)
		}
	}
	return out, nil
}

// Accept assigns the calling mechanic to a pending request. The write is a
// storage-level compare-and-swap on the pending status: under concurrent
// accepts exactly one mechanic wins and everyone else observes
// ErrRequestConflict. The winner is never reassigned.
func (s *Service) Accept(ctx context.Context, requestID, mechanicID uuid.UUID) (domain.ServiceRequest, error) {
	mech, err := s.mechanics.GetMechanicByID(ctx, mechanicID)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	accepted, err := s.requests.AcceptPending(ctx, requestID, mechanicID)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	_ = s.events.Publish(ctx, domain.DispatchEvent{
		RequestID: accepted.ID,
		Type:      domain.EventRequestAccepted,
		Payload:   map[string]any{"mechanic_id": mechanicID.String()},
		CreatedAt: s.clock.Now(),
	})

	go s.notifyCustomer(ctx, accepted,
		fmt.Sprintf("Your service request for %s has been accepted by %s. They will contact you shortly.",
			accepted.VehicleModel, mech.Name))

	return accepted, nil
}

// Transition moves an assigned request along the lifecycle graph. Only the
// assigned mechanic may drive it, the edge must exist in the state graph, and
// the write is conditioned on the status observed here so a concurrent
// transition loses cleanly instead of double-applying.
func (s *Service) Transition(ctx context.Context, requestID, mechanicID uuid.UUID, newStatus domain.RequestStatus, actualCost *float64) (domain.ServiceRequest, error) {
	current, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	if current.MechanicID == nil || *current.MechanicID != mechanicID {
		return domain.ServiceRequest{}, domain.ErrNotAssigned
	}
	if !current.Status.CanTransitionTo(newStatus) {
		return domain.ServiceRequest{}, domain.ErrInvalidTransition
	}

	change := domain.StatusChange{}
	if newStatus == domain.StatusCompleted {
		now := s.clock.Now()
		change.CompletedAt = &now
		change.ActualCost = actualCost
	}

	updated, err := s.requests.TransitionStatus(ctx, requestID, current.Status, newStatus, change)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	eventType := domain.EventStatusChanged
	if newStatus == domain.StatusCompleted {
		eventType = domain.EventRequestCompleted
	}
	_ = s.events.Publish(ctx, domain.DispatchEvent{
		RequestID: updated.ID,
		Type:      eventType,
		Payload:   map[string]any{"status": string(newStatus)},
		CreatedAt: s.clock.Now(),
	})

	if newStatus == domain.StatusCompleted {
		go s.notifyCustomer(ctx, updated,
			fmt.Sprintf("Your service for %s has been completed. Total cost: ₹%.0f. Please provide feedback.",
				updated.VehicleModel, updated.FinalCost()))
	}

	return updated, nil
}

// History returns all of the customer's requests, newest first.
func (s *Service) History(ctx context.Context, customerID uuid.UUID) ([]domain.ServiceRequest, error) {
	return s.requests.HistoryByCustomer(ctx, customerID)
}

// notifyCustomer sends a single best-effort SMS to the request owner.
func (s *Service) notifyCustomer(parent context.Context, req domain.ServiceRequest, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.NotifyTimeout)
	defer cancel()

	customer, err := s.customers.GetCustomerByID(ctx, req.CustomerID)
	if err != nil {
		s.logger.Warn("customer lookup failed", zap.Error(err), zap.String("request_id", req.ID.String()))
		return
	}
	if err := s.gateway.SendSMS(ctx, customer.Phone, text); err != nil {
		s.logger.Warn("customer sms failed", zap.Error(err), zap.String("request_id", req.ID.String()))
	}
}
