// manualtest runs the auth service on an in-memory database next to a
// downstream test app, for poking at the whole flow with curl:
//
//	curl -XPOST localhost:8081/api/v1/auth/login -d '{"username":"testuser","password":"Passw0rd!"}'
//	curl localhost:8082/api/v1/transactions -H "Authorization: Bearer <accessToken>"
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/finansecure/cmd/manualtest/internal/testapp"
	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/config"
	"github.com/charleshuang3/finansecure/internal/gormw"
	"github.com/charleshuang3/finansecure/internal/handlers/authapi"
	"github.com/charleshuang3/finansecure/internal/handlers/middleware"
	"github.com/charleshuang3/finansecure/internal/metrics"
	"github.com/charleshuang3/finansecure/internal/storage"
	"github.com/charleshuang3/finansecure/internal/token"
)

const (
	testUser     = "testuser"
	testPassword = "Passw0rd!"
)

func main() {
	cfg := config.Config{
		Port:      8081,
		AdminPort: 8083,
		GinMode:   "debug",
		JWT: token.Config{
			SecretKey:      "manualtest-secret-manualtest-secret",
			AccessTokenTTL: 2 * time.Minute,
		},
		Auth: auth.Config{
			RefreshTokenTTL:   time.Hour,
			RevokeAllOnReplay: true,
			MaxFailedLogins:   3,
		},
		DB: gormw.Config{},
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"http://127.0.0.1:8082"},
		},
		Sweeper: config.SweeperConfig{
			Schedule: "* * * * *",
		},
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	// Initialize database
	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
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

	// cron schedule
	scheduler, _ := gocron.NewScheduler()
	if err := storage.RegisterRefreshTokensCleaner(scheduler, svc, cfg.Sweeper.Schedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to register refresh token cleaner")
	}
	scheduler.Start()

	preloadData(svc)

	// Set up Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Recovery())
	router.Use(middleware.CORS(&cfg.CORS))
	authapi.New(svc, signer, "manualtest").RegisterHandlers(router.Group("/"))

	admin := gin.New()
	admin.GET("/metrics", gin.WrapH(m.Handler()))

	// Start auth server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Msgf("Starting server on %s", addr)
		if err := router.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.AdminPort)
		log.Info().Msgf("Starting admin server on %s", addr)
		if err := admin.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start admin server")
		}
	}()

	time.Sleep(2 * time.Second)

	// The test app shares the signing secret, nothing else.
	verifier, err := token.NewSigner(&token.Config{SecretKey: cfg.JWT.SecretKey})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token verifier")
	}
	testapp.NewServer(8082, verifier)
}

func preloadData(svc *auth.Service) {
	resp, err := svc.Register(context.Background(), auth.RegisterRequest{
		Username:  testUser,
		Email:     "testuser@example.com",
		FirstName: "Test",
		LastName:  "User",
		Password:  testPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}
	log.Info().Str("user_id", resp.User.ID).Str("username", testUser).Str("password", testPassword).Msg("Test user created")
}
