// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aerobook/internal/database"
	"aerobook/internal/handler"
	"aerobook/internal/repository"
	"aerobook/internal/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
)

func main() {
	port := pflag.String("port", getEnv("PORT", "8080"), "HTTP listen port")
	migrate := pflag.Bool("migrate", true, "create missing tables at startup")
	seed := pflag.Bool("seed", false, "insert default packs, prices and settings")
	pflag.Parse()

	ctx := context.Background()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	log.Println("connected to PostgreSQL")

	if *migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	if *seed {
		if err := database.Seed(ctx, pool); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Println("seed data inserted")
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	classRepo := repository.NewClassRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	packRepo := repository.NewPackRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	bookingSvc := service.NewBookingService(bookingRepo)
	classSvc := service.NewClassService(classRepo)
	packSvc := service.NewPackService(packRepo, settingsRepo)

	studio := handler.NewStudioHandler(bookingSvc, classSvc, packSvc)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS for the admin frontend

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/classes", func(r chi.Router) {
		r.Get("/", studio.ListClasses)
		r.Post("/", studio.CreateClass)
		r.Post("/recurring", studio.CreateRecurringClasses)
		r.Get("/attendees", studio.ListClassesWithAttendees)
		r.Get("/{id}", studio.GetClass)
		r.Put("/{id}", studio.UpdateClass)
		r.Delete("/{id}", studio.DeleteClass)
	})
	r.Route("/bookings", func(r chi.Router) {
		r.Get("/", studio.ListBookings)
		r.Post("/", studio.CreateBooking)
		r.Put("/{id}", studio.UpdateBooking)
		r.Patch("/{id}/status", studio.SetBookingPaymentStatus)
		r.Delete("/{id}", studio.DeleteBooking)
	})
	r.Route("/packs", func(r chi.Router) {
		r.Get("/", studio.ListPacks)
		r.Post("/", studio.AddPack)
		r.Get("/custom-prices", studio.GetCustomPrices)
		r.Put("/custom-prices", studio.SetCustomPrices)
		r.Put("/{id}", studio.UpdatePack)
		r.Delete("/{id}", studio.DeletePack)
	})
	r.Route("/settings", func(r chi.Router) {
		r.Get("/active-month", studio.GetActiveBookingMonth)
		r.Put("/active-month", studio.SetActiveBookingMonth)
	})
	r.Get("/stats/teachers", studio.TeacherStats)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", *port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Printf("server listening on http://localhost:%s", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
