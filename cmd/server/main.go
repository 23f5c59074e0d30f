package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campuseats/internal/api"
	"campuseats/internal/config"
	"campuseats/internal/database"
	"campuseats/internal/distributor"
	"campuseats/internal/fulfillment"
	"campuseats/internal/monitoring"
	"campuseats/internal/push"
	"campuseats/internal/qr"
	"campuseats/internal/store"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to default configuration")
		cfg = config.Default()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	var presence distributor.PresenceRegistry
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		presence = distributor.NewRedisPresence(client, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis presence registry")
	} else {
		presence = distributor.NewMemoryPresence()
	}

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	orderStore := store.NewOrderStore(db, log)
	dist := distributor.New(push.LogNotifier{Log: log}, presence, metrics, log)
	machine := fulfillment.NewMachine(orderStore, dist, metrics, log)
	codec := qr.NewCodec(cfg.QR.Secret)
	verifier := qr.NewVerifier(orderStore, machine, codec, metrics, log)

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(orderStore, machine, verifier, dist, presence, codec, log)

	go startMetricsServer(cfg.Server.MetricsPort, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("API server error")
	}
}

func startMetricsServer(port int, log zerolog.Logger) {
	metricsRouter := gin.New()
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Int("port", port).Msg("starting metrics server")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), metricsRouter); err != nil {
		log.Error().Err(err).Msg("metrics server error")
	}
}
