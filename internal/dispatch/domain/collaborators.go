package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusChange carries the optional field updates applied together with a
// status transition. Fields left nil are untouched.
type StatusChange struct {
	ActualCost  *float64
	CompletedAt *time.Time
}

// RequestRepository persists service requests. AcceptPending and
// TransitionStatus are conditional writes: the precondition on the stored
// status and the update must be applied atomically at the storage layer, and
// a failed precondition is reported as ErrRequestConflict. Implementations
// must never use a read-then-write sequence for these two.
type RequestRepository interface {
	CreateRequest(ctx context.Context, req ServiceRequest) (ServiceRequest, error)
	GetRequestByID(ctx context.Context, id uuid.UUID) (ServiceRequest, error)
	// AcceptPending assigns the mechanic and moves pending -> accepted in a
	// single write conditioned on the stored status still being pending.
	AcceptPending(ctx context.Context, id, mechanicID uuid.UUID) (ServiceRequest, error)
	// TransitionStatus moves from -> to conditioned on the stored status
	// still being from, applying change in the same write.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus, change StatusChange) (ServiceRequest, error)
	PendingRequests(ctx context.Context) ([]ServiceRequest, error)
	// HistoryByCustomer returns the customer's requests across all statuses,
	// newest first.
	HistoryByCustomer(ctx context.Context, customerID uuid.UUID) ([]ServiceRequest, error)
}

type MechanicRepository interface {
	GetMechanicByID(ctx context.Context, id uuid.UUID) (Mechanic, error)
	// AvailableMechanics returns mechanics with the availability flag set and
	// a known location, the candidate pool for matching.
	AvailableMechanics(ctx context.Context) ([]Mechanic, error)
	UpdateMechanicLocation(ctx context.Context, id uuid.UUID, point GeoPoint) error
}

type CustomerRepository interface {
	GetCustomerByID(ctx context.Context, id uuid.UUID) (Customer, error)
}

// NotificationGateway delivers best-effort push and SMS messages. Neither
// call carries a delivery guarantee; errors are for logging only.
type NotificationGateway interface {
	SendPush(ctx context.Context, recipientID uuid.UUID, title, body string, data map[string]string) error
	SendSMS(ctx context.Context, phone, text string) error
}

type DispatchEventType string

const (
	EventRequestCreated   DispatchEventType = "RequestCreated"
	EventRequestAccepted  DispatchEventType = "RequestAccepted"
	EventStatusChanged    DispatchEventType = "StatusChanged"
	EventRequestCompleted DispatchEventType = "RequestCompleted"
)

type DispatchEvent struct {
	RequestID uuid.UUID         `json:"request_id"`
	Type      DispatchEventType `json:"type"`
	Payload   map[string]any    `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
