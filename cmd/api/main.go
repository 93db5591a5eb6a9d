package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/checkcalendar-api/internal/config"
	"github.com/checkcalendar-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/checkcalendar-api/internal/infrastructure/jwt"
	"github.com/checkcalendar-api/internal/infrastructure/mailer"
	"github.com/checkcalendar-api/internal/infrastructure/memstore"
	s3infra "github.com/checkcalendar-api/internal/infrastructure/s3"
	"github.com/checkcalendar-api/internal/pkg/ratelimit"
	transporthttp "github.com/checkcalendar-api/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := &transporthttp.Deps{}
	switch cfg.StoreBackend {
	case "memory":
		slog.Warn("using in-memory stores; data is lost on restart")
		deps.AccountRepo = memstore.NewAccountStore()
		deps.PendingCodeRepo = memstore.NewPendingCodeStore()
		deps.ActivityRepo = memstore.NewActivityStore()
		deps.ExportStore = memstore.NewObjectStore()
	default:
		// Bootstrap DynamoDB tables (creates them if they don't exist).
		dynamoClient := dynamo.NewClient(cfg)
		dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
		deps.AccountRepo = dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts, cfg.StoreQueryTimeout)
		deps.PendingCodeRepo = dynamo.NewPendingCodeRepo(dynamoClient, cfg.DynamoTables.PendingCodes, cfg.StoreQueryTimeout)
		deps.ActivityRepo = dynamo.NewActivityRepo(dynamoClient, cfg.DynamoTables.Activities, cfg.StoreQueryTimeout)

		s3Store := s3infra.NewStore(s3infra.NewClient(cfg), cfg.S3BucketName)
		if cfg.AWSEndpointURL != "" {
			if err := s3Store.EnsureBucket(ctx); err != nil {
				slog.Warn("export bucket not ready", "err", err)
			}
		}
		deps.ExportStore = s3Store
	}

	limiter, closeLimiter := newRequestLimiter(ctx, cfg)
	defer closeLimiter()
	deps.RequestLimiter = limiter

	m, err := mailer.New(cfg)
	if err != nil {
		log.Fatalf("mailer: %v", err)
	}
	deps.Mailer = m

	generated, err := cfg.EnsureJWTSecret()
	if err != nil {
		log.Fatalf("jwt secret: %v", err)
	}
	if generated {
		slog.Warn("JWT_SECRET not set; signing with a random per-process secret, sessions end on restart")
	}
	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}
	deps.Tokens = tokens

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend, "mail", cfg.MailProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}

// newRequestLimiter shares the code-request budget through Redis when
// REDIS_URL is set, and keeps it in process otherwise.
func newRequestLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisURL == "" {
		w := ratelimit.NewWindow(cfg.OTPRequestLimit, cfg.OTPRequestWindow)
		go w.Run(ctx, time.Minute)
		return w, func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis not reachable at startup", "err", err)
	}
	return ratelimit.NewRedisWindow(client, "otp-req:", cfg.OTPRequestLimit, cfg.OTPRequestWindow), func() { _ = client.Close() }
}
