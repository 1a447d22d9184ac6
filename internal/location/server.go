package location

import (
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/matching"
)

// Server ingests mechanic position updates and keeps the candidate pool
// fresh: each update lands in the mechanic repository and, when a Redis geo
// index is configured, in the index as well.
type Server struct {
	mechanics domain.MechanicRepository
	index     *matching.GeoIndex
	logger    *zap.Logger
}

// NewServer constructs a server. index may be nil.
func NewServer(mechanics domain.MechanicRepository, index *matching.GeoIndex, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{mechanics: mechanics, index: index, logger: logger}
}

// StreamLocation consumes mechanic location updates. Malformed or unknown
// mechanics are skipped, not fatal to the stream.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		mechanicID, err := uuid.Parse(msg.MechanicId)
		if err != nil {
			continue
		}
		ctx := stream.Context()
		point := domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}
		if err := s.mechanics.UpdateMechanicLocation(ctx, mechanicID, point); err != nil {
			if !errors.Is(err, domain.ErrMechanicNotFound) {
				s.logger.Warn("location update failed", zap.Error(err), zap.String("mechanic_id", msg.MechanicId))
			}
			continue
		}
		if s.index != nil {
			if msg.Available {
				if err := s.index.Upsert(ctx, mechanicID, point); err != nil {
					s.logger.Warn("geo index upsert failed", zap.Error(err))
				}
			} else if err := s.index.Remove(ctx, mechanicID); err != nil {
				s.logger.Warn("geo index remove failed", zap.Error(err))
			}
		}
	}
}
