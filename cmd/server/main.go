package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sakubank/backend/internal/config"
	"github.com/sakubank/backend/internal/database"
	"github.com/sakubank/backend/internal/handlers"
	"github.com/sakubank/backend/internal/metrics"
	mW "github.com/sakubank/backend/internal/middleware"
	"github.com/sakubank/backend/internal/services"
	"github.com/spf13/viper"
)

// @title SakuBank API
// @version 1.0
// @description API for QRIS payment processing and intrabank transfers
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	viper.SetDefault("jwt.expiry_hours", 24)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.MustConnect()
	defer db.Close()

	redisClient := database.ConnectRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	qrisConfig := config.LoadQRISConfig()
	metrics.Init()

	settlementService := services.NewSettlementService(redisClient, qrisConfig)
	qrisService := services.NewQrisService(db, redisClient, qrisConfig, settlementService)
	transferService := services.NewTransferService(db)
	accountService := services.NewAccountService(db)
	mutationService := services.NewMutationService(db)
	authService := services.NewAuthService(db, redisClient)

	qrisHandler := handlers.NewQrisHandler(qrisService)
	transferHandler := handlers.NewTransferHandler(transferService, accountService)
	mutationHandler := handlers.NewMutationHandler(mutationService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(mW.HTTPMetrics)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/auth/step-up", authService.StepUp)
			r.Put("/auth/pin", authService.ChangePIN)
			r.Put("/auth/password", authService.ChangePassword)

			r.Get("/account/profile", transferHandler.GetProfile)
			r.Get("/account/balance", transferHandler.GetBalance)

			r.Post("/transfers", transferHandler.Transfer)
			r.Get("/destinations", transferHandler.ListDestinations)
			r.Post("/destinations", transferHandler.AddDestination)

			r.Get("/mutations", mutationHandler.ListMutations)
			r.Get("/mutations/{id}", mutationHandler.GetMutation)

			// QRIS endpoints
			r.Post("/qris/redeem", qrisHandler.Redeem)
			r.Post("/qris/mpm", qrisHandler.GenerateMPM)
			r.Post("/qris/cpm", qrisHandler.GenerateCPM)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
