package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/roadassist/internal/dispatch/domain"
	"github.com/example/roadassist/internal/dispatch/handler"
	"github.com/example/roadassist/internal/dispatch/matching"
	"github.com/example/roadassist/internal/dispatch/notify"
	"github.com/example/roadassist/internal/dispatch/repository"
	dispatchservice "github.com/example/roadassist/internal/dispatch/service"
	ratelimitmw "github.com/example/roadassist/internal/http/middleware"
	"github.com/example/roadassist/internal/location"
	"github.com/example/roadassist/pkg/events"
	"github.com/example/roadassist/pkg/observability"
)

type appConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	MongoURI       string
	MongoDatabase  string
	RedisAddr      string
	NATSURL        string
	SMSGatewayURL  string
	PushSubject    string
	EventSubject   string
	JWTSecret      string
	RadiusKM       float64
	NotifyTimeout  time.Duration
	RateReadRPS    float64
	RateReadBurst  float64
	RateWriteRPS   float64
	RateWriteBurst float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("dispatch-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "dispatch-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	var requests domain.RequestRepository
	var mechanics domain.MechanicRepository
	var customers domain.CustomerRepository
	if cfg.MongoURI != "" {
		client, err := repository.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			logger.Fatal("mongo connect", zap.Error(err))
		}
		defer client.Disconnect(context.Background()) //nolint:errcheck
		store := repository.NewMongoStore(client.Database(cfg.MongoDatabase))
		requests, mechanics, customers = store, store, store
	} else {
		store := repository.NewMemoryStore()
		requests, mechanics, customers = store, store, store
		logger.Warn("no MONGO_URI configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("dispatchservice")); err == nil {
			natsConn = conn
			defer conn.Drain() //nolint:errcheck
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var source matching.CandidateSource
	var geoIndex *matching.GeoIndex
	if redisClient != nil {
		geoIndex = matching.NewGeoIndex(redisClient, "", mechanics)
		source = geoIndex
	} else {
		source = matching.NewRepoSource(mechanics)
	}

	gateway := notify.New(natsConn, cfg.PushSubject, cfg.SMSGatewayURL, logger.Named("notify"))
	publisher := events.NewPublisher(natsConn, cfg.EventSubject)

	svc := dispatchservice.New(requests, mechanics, customers, gateway, publisher, source, domain.SystemClock{}, logger.Named("dispatch"), dispatchservice.Config{
		RadiusKM:      cfg.RadiusKM,
		NotifyTimeout: cfg.NotifyTimeout,
	})

	limiter := ratelimitmw.NewRateLimiter(redisClient,
		ratelimitmw.RateConfig{Rate: cfg.RateReadRPS, Burst: cfg.RateReadBurst},
		ratelimitmw.RateConfig{Rate: cfg.RateWriteRPS, Burst: cfg.RateWriteBurst})

	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Mount("/", handler.NewHTTP(svc, cfg.JWTSecret).Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go runGRPC(logger, cfg.GRPCAddr, mechanics, geoIndex)

	go func() {
		logger.Info("dispatch service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runGRPC(logger *zap.Logger, addr string, mechanics domain.MechanicRepository, index *matching.GeoIndex) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer()
	location.RegisterLocationServer(srv, location.NewServer(mechanics, index, logger.Named("location")))
	logger.Info("location grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":9090"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDatabase:  getenv("MONGO_DATABASE", "roadassist"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		NATSURL:        os.Getenv("NATS_URL"),
		SMSGatewayURL:  os.Getenv("SMS_GATEWAY_URL"),
		PushSubject:    getenv("PUSH_SUBJECT", "notify.push"),
		EventSubject:   getenv("EVENT_SUBJECT", "dispatch.events"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RadiusKM:       parseFloatEnv("MATCH_RADIUS_KM", 10),
		NotifyTimeout:  time.Duration(parseIntEnv("NOTIFY_TIMEOUT_MS", 3000)) * time.Millisecond,
		RateReadRPS:    parseFloatEnv("RATE_READ_RPS", 50),
		RateReadBurst:  parseFloatEnv("RATE_READ_BURST", 100),
		RateWriteRPS:   parseFloatEnv("RATE_WRITE_RPS", 10),
		RateWriteBurst: parseFloatEnv("RATE_WRITE_BURST", 20),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
