package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/roadassist/internal/dispatch/domain"
)

// MongoStore persists dispatch entities in MongoDB. The accept and transition
// writes use FindOneAndUpdate with the expected status in the filter, so the
// precondition check and the update are a single server-side operation.
type MongoStore struct {
	requests  *mongo.Collection
	mechanics *mongo.Collection
	customers *mongo.Collection
}

// NewMongoStore wires the store against the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		requests:  db.Collection("service_requests"),
		mechanics: db.Collection("mechanics"),
		customers: db.Collection("customers"),
	}
}

// ConnectMongo dials MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (s *MongoStore) CreateRequest(ctx context.Context, req domain.ServiceRequest) (domain.ServiceRequest, error) {
	if _, err := s.requests.InsertOne(ctx, req); err != nil {
		return domain.ServiceRequest{}, fmt.Errorf("insert request: %w", err)
	}
	return req, nil
}

func (s *MongoStore) GetRequestByID(ctx context.Context, id uuid.UUID) (domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	err := s.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ServiceRequest{}, domain.ErrRequestNotFound
	}
	if err != nil {
		return domain.ServiceRequest{}, fmt.Errorf("find request: %w", err)
	}
	return req, nil
}

// AcceptPending relies on the {_id, status: pending} filter: when two
// mechanics race, the second FindOneAndUpdate matches nothing and loses.
func (s *MongoStore) AcceptPending(ctx context.Context, id, mechanicID uuid.UUID) (domain.ServiceRequest, error) {
	filter := bson.M{"_id": id, "status": domain.StatusPending}
	update := bson.M{"$set": bson.M{"status": domain.StatusAccepted, "mechanic_id": mechanicID}}
	return s.conditionalUpdate(ctx, id, filter, update)
}

func (s *MongoStore) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.RequestStatus, change domain.StatusChange) (domain.ServiceRequest, error) {
	set := bson.M{"status": to}
	if change.ActualCost != nil {
		set["actual_cost"] = *change.ActualCost
	}
	if change.CompletedAt != nil {
		set["completed_at"] = *change.CompletedAt
	}
	filter := bson.M{"_id": id, "status": from}
	return s.conditionalUpdate(ctx, id, filter, bson.M{"$set": set})
}

func (s *MongoStore) conditionalUpdate(ctx context.Context, id uuid.UUID, filter, update bson.M) (domain.ServiceRequest, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var req domain.ServiceRequest
	err := s.requests.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the request is gone or the status precondition failed.
		if _, getErr := s.GetRequestByID(ctx, id); getErr != nil {
			return domain.ServiceRequest{}, getErr
		}
		return domain.ServiceRequest{}, domain.ErrRequestConflict
	}
	if err != nil {
		return domain.ServiceRequest{}, fmt.Errorf("conditional update: %w", err)
	}
	return req, nil
}

func (s *MongoStore) PendingRequests(ctx context.Context) ([]domain.ServiceRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.requests.Find(ctx, bson.M{"status": domain.StatusPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending: %w", err)
	}
	var out []domain.ServiceRequest
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return out, nil
}

func (s *MongoStore) HistoryByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.ServiceRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.requests.Find(ctx, bson.M{"customer_id": customerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	var out []domain.ServiceRequest
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out, nil
}

func (s *MongoStore) GetMechanicByID(ctx context.Context, id uuid.UUID) (domain.Mechanic, error) {
	var mech domain.Mechanic
	err := s.mechanics.FindOne(ctx, bson.M{"_id": id}).Decode(&mech)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Mechanic{}, domain.ErrMechanicNotFound
	}
	if err != nil {
		return domain.Mechanic{}, fmt.Errorf("find mechanic: %w", err)
	}
	return mech, nil
}

func (s *MongoStore) AvailableMechanics(ctx context.Context) ([]domain.Mechanic, error) {
	filter := bson.M{"is_available": true, "location": bson.M{"$exists": true, "$ne": nil}}
	cursor, err := s.mechanics.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find mechanics: %w", err)
	}
	var out []domain.Mechanic
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode mechanics: %w", err)
	}
	return out, nil
}

func (s *MongoStore) UpdateMechanicLocation(ctx context.Context, id uuid.UUID, point domain.GeoPoint) error {
	res, err := s.mechanics.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"location": point}})
	if err != nil {
		return fmt.Errorf("update mechanic location: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrMechanicNotFound
	}
	return nil
}

func (s *MongoStore) GetCustomerByID(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	var c domain.Customer
	err := s.customers.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("find customer: %w", err)
	}
	return c, nil
}
