package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/roadassist/internal/auth"
	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/service"
)

// HTTP exposes the service request endpoints.
type HTTP struct {
	svc       *service.Service
	jwtSecret string
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service, jwtSecret string) *HTTP {
	return &HTTP{svc: svc, jwtSecret: jwtSecret}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	customer := auth.Middleware(h.jwtSecret, auth.RoleCustomer)
	mechanic := auth.Middleware(h.jwtSecret, auth.RoleMechanic)

	r.Route("/service-requests", func(r chi.Router) {
		r.With(customer).Post("/", h.createRequest)
		r.With(customer).Get("/history", h.history)
		r.With(mechanic).Get("/available", h.available)
		r.With(mechanic).Put("/{id}/accept", h.accept)
		r.With(mechanic).Put("/{id}/status", h.updateStatus)
	})
	return r
}

type createRequestPayload struct {
	VehicleModel  string           `json:"vehicle_model"`
	ServiceType   string           `json:"service_type"`
	Issue         string           `json:"issue"`
	Address       string           `json:"address"`
	Location      *domain.GeoPoint `json:"location"`
	EstimatedTime string           `json:"estimated_time"`
	EstimatedCost float64          `json:"estimated_cost"`
	Urgency       domain.Urgency   `json:"urgency"`
}

func (p createRequestPayload) validate() string {
	switch {
	case p.VehicleModel == "":
		return "vehicle_model is required"
	case p.ServiceType == "":
		return "service_type is required"
	case p.Issue == "":
		return "issue is required"
	case p.Location == nil:
		return "location is required"
	case p.Urgency != "" && !p.Urgency.Valid():
		return "urgency must be low, medium or high"
	}
	return ""
}

func (h *HTTP) createRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.svc.CreateRequest(r.Context(), actor.ID, service.CreateRequestInput{
		VehicleModel:  payload.VehicleModel,
		ServiceType:   payload.ServiceType,
		Issue:         payload.Issue,
		Address:       payload.Address,
		Location:      *payload.Location,
		EstimatedTime: payload.EstimatedTime,
		EstimatedCost: payload.EstimatedCost,
		Urgency:       payload.Urgency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HTTP) available(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	requests, err := h.svc.AvailableRequests(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if requests == nil {
		requests = []domain.ServiceRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *HTTP) accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	accepted, err := h.svc.Accept(r.Context(), id, actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

type updateStatusPayload struct {
	Status     domain.RequestStatus `json:"status"`
	ActualCost *float64             `json:"actual_cost"`
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var payload updateStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !payload.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	updated, err := h.svc.Transition(r.Context(), id, actor.ID, payload.Status, payload.ActualCost)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *HTTP) history(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return
	}
	requests, err := h.svc.History(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if requests == nil {
		requests = []domain.ServiceRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// writeDomainError maps the error taxonomy onto HTTP statuses. A lost accept
// race and an illegal transition both read as conflicts, distinct from bad
// input.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrMechanicNotFound),
		errors.Is(err, domain.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRequestConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotAssigned):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNoLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
