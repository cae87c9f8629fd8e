package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/httpapi"
	"threattracker.org/internal/obs"
	"threattracker.org/internal/sim"
	"threattracker.org/internal/store/pg"
	"threattracker.org/internal/tracker"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	addr := os.Getenv("TRACKER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	sessionTTL := auth.DefaultSessionTTL
	if raw := os.Getenv("TRACKER_SESSION_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse TRACKER_SESSION_TTL: %v", err)
		}
		sessionTTL = d
	}

	var (
		db         *sql.DB
		authStore  auth.Store
		trackerSvc tracker.Service
	)

	if dsn := os.Getenv("TRACKER_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		db = store.DB()
		authStore = store
		trackerSvc = store
	} else {
		// No DSN: run on the in-memory store with the demo fixtures so the
		// dashboards have something to log into.
		mem := auth.NewInMemory()
		scenario := sim.PhishingWaveScenario()
		if err := sim.Seed(context.Background(), mem, scenario); err != nil {
			log.Fatalf("seed demo fixtures: %v", err)
		}
		log.Printf("no TRACKER_PG_DSN set; using in-memory store with scenario %s", scenario.Name)
		authStore = mem
	}

	authSvc := auth.NewService(authStore, auth.WithSessionTTL(sessionTTL))
	if trackerSvc == nil {
		trackerSvc = tracker.NewInMemory(authSvc)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, authSvc, trackerSvc)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tracker-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
