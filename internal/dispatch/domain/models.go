package domain

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusAccepted   RequestStatus = "accepted"
	StatusInProgress RequestStatus = "in-progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid service request state transition")
var ErrRequestConflict = errors.New("service request no longer pending")
var ErrNotAssigned = errors.New("mechanic not assigned to service request")
var ErrRequestNotFound = errors.New("service request not found")
var ErrMechanicNotFound = errors.New("mechanic not found")
var ErrNoLocation = errors.New("mechanic location unknown")
var ErrCustomerNotFound = errors.New("customer not found")

var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the state graph permits moving to next.
// Terminal states (completed, cancelled) permit nothing, including self.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

type Customer struct {
	ID        uuid.UUID `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone" bson:"phone"`
	Location  *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// DocumentState captures the review state of a single verification document.
type DocumentState string

const (
	DocumentPending  DocumentState = "pending"
	DocumentVerified DocumentState = "verified"
	DocumentRejected DocumentState = "rejected"
)

type DocumentStatus struct {
	State  DocumentState `json:"state" bson:"state"`
	Expiry *time.Time    `json:"expiry,omitempty" bson:"expiry,omitempty"`
}

// Mechanic is a service provider. Identity fields are immutable after
// registration; location and availability are kept fresh by external feeds.
// The verification document map is descriptive state owned by a back-office
// process and is never written by dispatch.
type Mechanic struct {
	ID            uuid.UUID                 `json:"id" bson:"_id"`
	Name          string                    `json:"name" bson:"name"`
	Phone         string                    `json:"phone" bson:"phone"`
	MechanicID    string                    `json:"mechanic_id" bson:"mechanic_id"`
	Workshop      string                    `json:"workshop_name" bson:"workshop_name"`
	Location      *GeoPoint                 `json:"location,omitempty" bson:"location,omitempty"`
	Available     bool                      `json:"is_available" bson:"is_available"`
	Rating        float64                   `json:"rating" bson:"rating"`
	TotalServices int                       `json:"total_services" bson:"total_services"`
	Documents     map[string]DocumentStatus `json:"documents,omitempty" bson:"documents,omitempty"`
	CreatedAt     time.Time                 `json:"created_at" bson:"created_at"`
}

// NewMechanicCode produces a registration code like MCH-2026-4821.
func NewMechanicCode(now time.Time) string {
	return fmt.Sprintf("MCH-%d-%04d", now.Year(), 1000+rand.Intn(9000))
}

type Feedback struct {
	Rating  int    `json:"rating" bson:"rating"`
	Comment string `json:"comment,omitempty" bson:"comment,omitempty"`
}

// ServiceRequest is the unit of dispatch. CustomerID is set at creation and
// never changes; MechanicID is nil exactly while the request is pending and
// immutable once the accept race settles. CompletedAt is written exactly once,
// on the transition into completed.
type ServiceRequest struct {
	ID            uuid.UUID     `json:"id" bson:"_id"`
	CustomerID    uuid.UUID     `json:"customer_id" bson:"customer_id"`
	MechanicID    *uuid.UUID    `json:"mechanic_id,omitempty" bson:"mechanic_id,omitempty"`
	VehicleModel  string        `json:"vehicle_model" bson:"vehicle_model"`
	ServiceType   string        `json:"service_type" bson:"service_type"`
	Issue         string        `json:"issue" bson:"issue"`
	Address       string        `json:"address,omitempty" bson:"address,omitempty"`
	Location      GeoPoint      `json:"location" bson:"location"`
	EstimatedTime string        `json:"estimated_time,omitempty" bson:"estimated_time,omitempty"`
	EstimatedCost float64       `json:"estimated_cost" bson:"estimated_cost"`
	Urgency       Urgency       `json:"urgency" bson:"urgency"`
	Status        RequestStatus `json:"status" bson:"status"`
	ActualCost    *float64      `json:"actual_cost,omitempty" bson:"actual_cost,omitempty"`
	Feedback      *Feedback     `json:"feedback,omitempty" bson:"feedback,omitempty"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// FinalCost is the amount reported to the customer on completion: the actual
// cost when the mechanic recorded one, otherwise the original estimate.
func (r ServiceRequest) FinalCost() float64 {
	if r.ActualCost != nil {
		return *r.ActualCost
	}
	return r.EstimatedCost
}
