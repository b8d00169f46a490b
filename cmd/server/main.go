package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/capacity"
	"github.com/clasedesurf/reservations/internal/classes"
	"github.com/clasedesurf/reservations/internal/config"
	"github.com/clasedesurf/reservations/internal/database"
	"github.com/clasedesurf/reservations/internal/discount"
	"github.com/clasedesurf/reservations/internal/events"
	"github.com/clasedesurf/reservations/internal/handlers"
	"github.com/clasedesurf/reservations/internal/notifier"
	"github.com/clasedesurf/reservations/internal/payment"
	"github.com/clasedesurf/reservations/internal/ratelimit"
	"github.com/clasedesurf/reservations/internal/reservation"
	"github.com/clasedesurf/reservations/internal/scheduler"
	"github.com/go-chi/chi/v5"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	// Connect to Database
	db := database.Connect(cfg)

	// Collaborators
	staffNotifier, err := notifier.FromConfig(cfg)
	if err != nil {
		log.Printf("Discord notifier not initialized: %v", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		publisher = events.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.EventsQueue)
		log.Printf("Publishing events to queue %s", cfg.EventsQueue)
	}

	limiter := ratelimit.FromConfig(cfg, ratelimit.WithRoutes(handlers.RateLimitedRoutes...))
	if limiter == nil {
		log.Printf("REDIS_ADDR is empty, rate limiting disabled")
	}

	// Core services
	ledger := capacity.NewLedger(db)
	discounts := discount.NewService(db)
	reservations := reservation.NewService(db, ledger, discounts,
		reservation.WithPublisher(publisher),
		reservation.WithNotifier(staffNotifier),
	)
	payments := payment.NewService(db,
		payment.WithPublisher(publisher),
		payment.WithNotifier(staffNotifier),
	)
	classService := classes.NewService(db, ledger,
		classes.WithPublisher(publisher),
		classes.WithNotifier(staffNotifier),
	)

	// Completion sweep
	sched, err := scheduler.New(reservations, cfg.CompletionSweepInterval)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	sched.Start()

	// Initialize Router
	r := chi.NewRouter()
	handlers.RegisterRoutes(r, handlers.Handlers{
		Auth:          auth.NewAuthHandler(cfg, db),
		Reservations:  handlers.NewReservationHandler(reservations),
		Payments:      handlers.NewPaymentHandler(payments),
		DiscountCodes: handlers.NewDiscountCodeHandler(discounts),
		Classes:       handlers.NewClassHandler(classService),
		Limiter:       limiter,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	// Start Server
	go func() {
		log.Printf("Starting server on port %s, docs at %s/docs", cfg.Port, cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown failed: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Println("Server exited gracefully")
}
