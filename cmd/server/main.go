package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"credential-authority/internal/config"
	"credential-authority/internal/db"
	healthhandler "credential-authority/internal/health/handler"
	identityservice "credential-authority/internal/identity/service"
	"credential-authority/internal/notify"
	"credential-authority/internal/oauth"
	"credential-authority/internal/security"
	"credential-authority/internal/server"
	sessionservice "credential-authority/internal/session/service"
	"credential-authority/internal/telemetry/metrics"
	oteltelemetry "credential-authority/internal/telemetry/otel"
	"credential-authority/internal/verification"
)

const healthInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateSigning(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel: shutdown: %v", err)
		}
	}()

	metrics.Init()
	metricsSrv := serveMetrics(cfg.MetricsAddr)

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
	} else {
		log.Println("DATABASE_URL not set; sessions and the local directory are kept in memory")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	} else {
		log.Println("REDIS_URL not set; OTP challenges and revoked tokens are kept in memory")
	}

	dir, closeDir, err := newDirectory(cfg, conn)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	defer closeDir()

	tokens, err := newTokenProvider(cfg)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	var sink notify.Sink
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		ks := notify.NewKafkaSink(brokers, cfg.NotificationTopicPrefix)
		defer ks.Close()
		sink = ks
	} else {
		log.Println("KAFKA_BROKERS not set; notifications are disabled")
	}

	sessions := sessionservice.NewTokenService(tokens, newSessionRepo(cfg, conn), newRevocationList(rdb), cfg.SessionTTL)
	challenges := verification.NewService(newChallengeStore(rdb), sink, cfg.OTPTTL)

	var strategies []oauth.Strategy
	if g := oauth.NewGoogleStrategy(oauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}); g != nil {
		strategies = append(strategies, g)
	}

	authSvc := identityservice.NewAuthService(
		dir,
		security.NewHasher(cfg.BcryptCost),
		sessions,
		challenges,
		sink,
		identityservice.Links{
			ClientBaseURL:     cfg.ClientBaseURL,
			AccountVerifyPath: cfg.AccountVerifyPath,
			OAuthWebhooksPath: cfg.OAuthWebhooksPath,
		},
		strategies...,
	)

	health := healthhandler.NewServer(pingers(conn, rdb), "auth.v1.AuthService")
	go health.Run(ctx, healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewGRPCServer(server.Deps{
		Auth:         authSvc,
		AuditEmitter: oteltelemetry.NewAuditEmitter(providers.LoggerProvider),
		Health:       health,
	})

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	health.Shutdown()
	s.GracefulStop()
	cancel()
	// Let in-flight notification and audit sends finish before sinks close.
	time.Sleep(notify.ShutdownDrainDuration)
	if metricsSrv != nil {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		c()
	}
	log.Println("gRPC server stopped")
}

func serveMetrics(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics: %v", err)
		}
	}()
	return srv
}
