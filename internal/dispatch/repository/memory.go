package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/roadassist/internal/dispatch/domain"
)

// MemoryStore keeps all entities in process. The conditional writes are
// atomic under the store mutex, which gives the same exactly-one-winner
// guarantee the Mongo store gets from FindOneAndUpdate. Suitable for tests
// and single-instance local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[uuid.UUID]domain.ServiceRequest
	mechanics map[uuid.UUID]domain.Mechanic
	customers map[uuid.UUID]domain.Customer
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[uuid.UUID]domain.ServiceRequest),
		mechanics: make(map[uuid.UUID]domain.Mechanic),
		customers: make(map[uuid.UUID]domain.Customer),
	}
}

// CreateRequest stores the request and returns it.
func (m *MemoryStore) CreateRequest(_ context.Context, req domain.ServiceRequest) (domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	return req, nil
}

// GetRequestByID retrieves a request.
func (m *MemoryStore) GetRequestByID(_ context.Context, id uuid.UUID) (domain.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.ServiceRequest{}, domain.ErrRequestNotFound
	}
	return req, nil
}

// AcceptPending assigns the mechanic iff the stored status is still pending.
func (m *MemoryStore) AcceptPending(_ context.Context, id, mechanicID uuid.UUID) (domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.ServiceRequest{}, domain.ErrRequestNotFound
	}
	if req.Status != domain.StatusPending {
		return domain.ServiceRequest{}, domain.ErrRequestConflict
	}
	req.MechanicID = &mechanicID
	req.Status = domain.StatusAccepted
	m.requests[id] = req
	return req, nil
}

// TransitionStatus applies the transition iff the stored status equals from.
func (m *MemoryStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.RequestStatus, change domain.StatusChange) (domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.ServiceRequest{}, domain.ErrRequestNotFound
	}
	if req.Status != from {
		return domain.ServiceRequest{}, domain.ErrRequestConflict
	}
	req.Status = to
	if change.ActualCost != nil {
		req.ActualCost = change.ActualCost
	}
	if change.CompletedAt != nil {
		req.CompletedAt = change.CompletedAt
	}
	m.requests[id] = req
	return req, nil
}

// PendingRequests returns all requests still awaiting acceptance.
func (m *MemoryStore) PendingRequests(_ context.Context) ([]domain.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ServiceRequest
	for _, req := range m.requests {
		if req.Status == domain.StatusPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// HistoryByCustomer returns the customer's requests, newest first.
func (m *MemoryStore) HistoryByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ServiceRequest
	for _, req := range m.requests {
		if req.CustomerID == customerID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PutMechanic stores a mechanic profile.
func (m *MemoryStore) PutMechanic(_ context.Context, mech domain.Mechanic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mechanics[mech.ID] = mech
}

// GetMechanicByID retrieves a mechanic.
func (m *MemoryStore) GetMechanicByID(_ context.Context, id uuid.UUID) (domain.Mechanic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mech, ok := m.mechanics[id]
	if !ok {
		return domain.Mechanic{}, domain.ErrMechanicNotFound
	}
	return mech, nil
}

// AvailableMechanics returns the candidate pool: available and located.
func (m *MemoryStore) AvailableMechanics(_ context.Context) ([]domain.Mechanic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Mechanic
	for _, mech := range m.mechanics {
		if mech.Available && mech.Location != nil {
			out = append(out, mech)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateMechanicLocation stores the latest reported position.
func (m *MemoryStore) UpdateMechanicLocation(_ context.Context, id uuid.UUID, point domain.GeoPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mech, ok := m.mechanics[id]
	if !ok {
		return domain.ErrMechanicNotFound
	}
	mech.Location = &point
	m.mechanics[id] = mech
	return nil
}

// PutCustomer stores a customer profile.
func (m *MemoryStore) PutCustomer(_ context.Context, c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

// GetCustomerByID retrieves a customer.
func (m *MemoryStore) GetCustomerByID(_ context.Context, id uuid.UUID) (domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return c, nil
}
