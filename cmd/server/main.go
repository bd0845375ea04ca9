// Command server runs one support-relay instance: the REST API, the
// STOMP-over-WebSocket endpoint and the relay subscriber that fans broker
// events out to local sessions.
//
//	@title						Support Relay API
//	@version					1.0
//	@description				Support chat between end users and operators.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/support-relay/internal/auth"
	"github.com/tbourn/support-relay/internal/config"
	httpapi "github.com/tbourn/support-relay/internal/http"
	"github.com/tbourn/support-relay/internal/http/middleware"
	"github.com/tbourn/support-relay/internal/observability"
	"github.com/tbourn/support-relay/internal/relay"
	"github.com/tbourn/support-relay/internal/repo"
	"github.com/tbourn/support-relay/internal/services"
	"github.com/tbourn/support-relay/internal/stream"
	"github.com/tbourn/support-relay/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const (
	purgeInterval   = time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	instanceID := sysutil.InstanceID()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, instanceID)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, instanceID); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, instanceID string) error {
	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Instance{
		Version: sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev"),
		ID:      instanceID,
		Broker:  cfg.Relay.Broker,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	broker, err := openBroker(ctx, cfg.Relay)
	if err != nil {
		return err
	}
	defer broker.Close()

	resolver, err := auth.NewResolver(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		return err
	}

	rooms := services.NewRoomService(db, relay.NewBus(broker))
	msgs := services.NewMessageService(rooms, cfg.MaxContentRunes)
	msgs.IdempotencyTTL = cfg.IdempotencyTTL

	hub := stream.NewHub()
	sendLimiter := middleware.NewRateLimiter(cfg.Stream.SendRPS, cfg.Stream.SendBurst, nil)
	wsHandler := stream.NewHandler(hub, resolver, rooms, msgs, sendLimiter, cfg.Stream, cfg.CORS.AllowedOrigins)

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		Auth:     services.NewAuthService(db, resolver),
		Rooms:    rooms,
		Messages: msgs,
		Resolver: resolver,
		Stream:   wsHandler,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("broker", cfg.Relay.Broker).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return relay.NewSubscriber(broker, hub).Run(gctx)
	})

	g.Go(func() error {
		t := time.NewTicker(purgeInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				n, err := msgs.Purge(gctx)
				if err != nil {
					log.Warn().Err(err).Msg("purge idempotency records")
					continue
				}
				if n > 0 {
					log.Debug().Int64("purged", n).Msg("idempotency records purged")
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("sessions", hub.Len()).Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown.
		hub.CloseAll()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

func openBroker(ctx context.Context, cfg config.RelayConfig) (relay.Broker, error) {
	if cfg.Broker == config.BrokerRedis {
		b, err := relay.NewRedisBroker(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return relay.NewMemoryBroker(0), nil
}
