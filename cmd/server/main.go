package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/booking"
	"github.com/padelclub/padelclub/internal/jobs"
	"github.com/padelclub/padelclub/internal/ledger"
	"github.com/padelclub/padelclub/internal/notify"
	"github.com/padelclub/padelclub/internal/schedule"
	"github.com/padelclub/padelclub/internal/store"
	"github.com/padelclub/padelclub/internal/web"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if getEnv("DEV_MODE", "") == "true" {
		log.SetLevel(logrus.DebugLevel)
	}

	// Configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DATABASE_PATH", "./data/padelclub.db")
	guestPrefix := getEnv("GUEST_PREFIX", "guest:")
	strictSlots := getEnv("STRICT_SLOT_UNIQUENESS", "") == "true"
	tzName := getEnv("TIMEZONE", "Local")

	admins := make(map[string]bool)
	for _, id := range strings.Split(getEnv("ADMIN_IDS", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = true
		}
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatalf("Invalid TIMEZONE %q: %v", tzName, err)
	}

	grid := schedule.DefaultGrid()
	if err := grid.Validate(); err != nil {
		log.Fatalf("Invalid slot grid: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize store
	db, err := store.NewSQLiteStore(dbPath, strictSlots)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize rating ledger and coordinator
	led := ledger.New(db, guestPrefix, log)
	coord := booking.New(db, led, booking.Config{
		GuestPrefix: guestPrefix,
		Admins:      admins,
		Grid:        grid,
		Location:    loc,
	}, log)

	// Notifications: web push if VAPID keys are configured, log-only
	// otherwise.
	var push *notify.PushSink
	var sink notify.Sink
	vapid := notify.VAPIDConfig{
		PublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		PrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		Subject:    getEnv("VAPID_SUBJECT", ""),
	}
	if vapid.PublicKey != "" && vapid.PrivateKey != "" {
		push = notify.NewPushSink(db, vapid, log)
		sink = push
	} else {
		log.Println("VAPID keys not set, notifications go to the log only")
		sink = notify.NewLogSink(log)
	}
	notifier := notify.NewNotifier(sink, guestPrefix, log)

	// Initialize web server
	server := web.NewServer(coord, db, push, grid, admins, log)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscriptions must exist before the command loop starts.
	events := coord.Subscribe()
	go coord.Run(ctx)
	go notifier.Run(ctx, events)

	// Start maintenance jobs (reminders, stale match sweep)
	sched, err := jobs.New(coord, loc, log)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start HTTP server
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: server,
	}

	// Handle shutdown signals
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Println("Shutting down...")
		cancel()

		if err := sched.Stop(); err != nil {
			log.Printf("Scheduler shutdown error: %v", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", port)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
