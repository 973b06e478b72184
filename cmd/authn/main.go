package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/config"
	"github.com/charleshuang3/finansecure/internal/gormw"
	"github.com/charleshuang3/finansecure/internal/handlers/authapi"
	"github.com/charleshuang3/finansecure/internal/handlers/firewall"
	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
	"github.com/charleshuang3/finansecure/internal/metrics"
	"github.com/charleshuang3/finansecure/internal/storage"
	"github.com/charleshuang3/finansecure/internal/token"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
)

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	// Load configuration
	cfg := config.LoadConfig(*configPath)

	// Initialize database
	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	signer, err := token.NewSigner(&cfg.JWT)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token signer")
	}

	m := metrics.New()
	svc, err := auth.NewService(
		&cfg.Auth,
		storage.NewUserStore(db, cfg.Auth.StoreTimeout),
		storage.NewRefreshTokenStore(db, cfg.Auth.StoreTimeout),
		signer,
		auth.WithMetrics(m),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth service")
	}
	defer svc.Close()

	// cron schedule
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if !cfg.Sweeper.Disabled {
		if err := storage.RegisterRefreshTokensCleaner(scheduler, svc, cfg.Sweeper.Schedule); err != nil {
			log.Fatal().Err(err).Msg("Failed to register refresh token cleaner")
		}
	}
	scheduler.Start()

	var fw *firewall.Firewall
	if cfg.Firewall != nil {
		fw, err = firewall.New(cfg.Firewall)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create firewall")
		}
	}

	// Set up Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Recovery())
	router.Use(middleware.CORS(&cfg.CORS))
	if fw != nil {
		// engine level, so requests to undefined urls are counted too.
		router.Use(fw.Middleware())
	}

	authapi.New(svc, signer, version).RegisterHandlers(router.Group("/"))

	servers := []*http.Server{newServer(cfg.Port, router)}

	if cfg.AdminPort != 0 {
		admin := gin.New()
		admin.Use(middleware.Recovery())
		admin.GET("/metrics", gin.WrapH(m.Handler()))
		servers = append(servers, newServer(cfg.AdminPort, admin))
	}

	// Run our servers in goroutines so that they don't block.
	for _, srv := range servers {
		go func() {
			log.Info().Msgf("start server at %q", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}()
	}

	c := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C) or SIGTERM.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal.
	<-c
	log.Info().Msg("shutting down")

	// Create a deadline to wait for.
	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("Failed to shutdown server")
		}
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown scheduler")
	}
}

func newServer(port uint, handler http.Handler) *http.Server {
	return &http.Server{
		Addr: fmt.Sprintf(":%d", port),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      handler,
	}
}
