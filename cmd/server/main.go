package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/subwire/agentpay/internal/chain"
	"github.com/subwire/agentpay/internal/config"
	"github.com/subwire/agentpay/internal/database"
	"github.com/subwire/agentpay/internal/handler"
	"github.com/subwire/agentpay/internal/jobs"
	"github.com/subwire/agentpay/internal/messaging"
	"github.com/subwire/agentpay/internal/middleware"
	"github.com/subwire/agentpay/internal/model"
	"github.com/subwire/agentpay/internal/redis"
	"github.com/subwire/agentpay/internal/repository"
	"github.com/subwire/agentpay/internal/service"
	"github.com/subwire/agentpay/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	fee, err := model.ParseBigInt(cfg.MessageFee)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid MESSAGE_FEE")
	}

	network, err := chain.LookupNetwork(cfg.Network)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown NETWORK")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	signer, err := chain.NewSigner(cfg.SpenderPrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SPENDER_PRIVATE_KEY")
	}
	agent := strings.ToLower(signer.Address().Hex())
	log.Info().Str("agent", agent).Str("network", network.Name).Msg("agent identity loaded")

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startupCancel()

	relay, err := chain.NewRelayClient(startupCtx, cfg.BundlerURL, signer, cfg.PaymasterURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to bundler")
	}

	gateway, err := chain.NewGateway(startupCtx, cfg.RPCURL, relay, network)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rpc node")
	}

	subscriptionRepo := repository.NewSubscriptionRepository(db.DB)
	eventRepo := repository.NewEventRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	subscriptionService := service.NewSubscriptionService(subscriptionRepo, eventRepo, gateway, network, broker)

	var transport messaging.Transport
	if cfg.TransportWebhookURL != "" {
		transport = messaging.NewWebhookTransport(cfg.TransportWebhookURL)
	} else {
		transport = messaging.NewLogTransport()
	}

	settlementEngine := service.NewSettlementEngine(subscriptionService, gateway, transport, broker, service.SettlementConfig{
		Fee:     fee,
		Token:   cfg.TokenAddress,
		Agent:   agent,
		Network: network,
	})
	sender := messaging.NewMonetizedSender(transport, settlementEngine)

	subscriptionsHandler := handler.NewSubscriptionsHandler(subscriptionService)
	messagesHandler := handler.NewMessagesHandler(sender)
	eventsHandler := handler.NewEventsHandler(broker)

	rateLimitMiddleware := middleware.NewIPRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"network":   network.Name,
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware.Handler)
		// SSE stream stays outside the request timeout.
		r.Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/subscriptions", subscriptionsHandler.Routes())
			r.Mount("/messages", messagesHandler.Routes())
		})
	})

	revalidateJob := jobs.NewRevalidateJob(subscriptionRepo, gateway, broker, agent, config.RevalidateJobInterval)
	revalidateJob.Start()
	defer revalidateJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
