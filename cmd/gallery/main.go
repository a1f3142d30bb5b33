// cmd/gallery/main.go
//
// Gallery backend – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (system-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load config (YAML + env overlay, Vault-resolved DSN).
//
//  4. Open the drawings pool and ensure the table exists.
//
//  5. Build the store, tab service, code cache, and comment checker, and
//     wire them into the operation gateway.
//
//  6. Serve /rpc/{op} plus the Prometheus /metrics endpoint; run the code
//     sweeper alongside under one errgroup, shutting everything down on
//     SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/inkdeck/gallery/internal/codes"
	"github.com/inkdeck/gallery/internal/config"
	"github.com/inkdeck/gallery/internal/database"
	"github.com/inkdeck/gallery/internal/drawing"
	"github.com/inkdeck/gallery/internal/gateway"
	"github.com/inkdeck/gallery/internal/logger"
	"github.com/inkdeck/gallery/internal/tabs"
	"github.com/inkdeck/gallery/internal/verify"
)

const serverEnvPath = "/usr/local/etc/gallery/global.env"

// loadEnv prefers the system-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logOut.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Drawings store ──────────────────────────────────────────────
	//
	logOut.Infow("connecting to drawings DB")
	db, err := database.OpenWithOptions(cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logOut.Fatalf("connect drawings DB: %v", err)
	}
	defer db.Close()

	if err := drawing.EnsureSchema(ctx, db); err != nil {
		logOut.Fatalf("ensure schema: %v", err)
	}

	var total int
	if err := db.Get(&total, `SELECT COUNT(*) FROM drawings`); err != nil {
		logOut.Debugw("drawing count unavailable", "err", err)
		logOut.Infow("drawings DB online")
	} else {
		logOut.Infow("drawings DB online", "rows", total)
	}

	//
	// ── 2.  Services ────────────────────────────────────────────────────
	//
	store := drawing.NewStore(db)
	tabSvc := tabs.New(db)
	codeCache := codes.New(cfg.Codes.Capacity,
		time.Duration(cfg.Codes.TTLSeconds)*time.Second)

	var checker verify.Checker = verify.Disabled{}
	if cfg.Uploads.CommentFeedURL != "" {
		checker = verify.NewHTTPChecker(cfg.Uploads.CommentFeedURL)
	} else {
		logOut.Warnw("no comment feed configured; unauthenticated uploads disabled")
	}

	var geo *geoip2.Reader
	if cfg.Geo.DBPath != "" {
		geo, err = geoip2.Open(cfg.Geo.DBPath)
		if err != nil {
			logOut.Warnw("geoip database unavailable", "path", cfg.Geo.DBPath, "err", err)
			geo = nil
		} else {
			defer geo.Close()
		}
	}

	gw := gateway.New(store, tabSvc, codeCache, checker,
		cfg.Uploads.PrivilegedUser, logOut)

	//
	// ── 3.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(gateway.RequestLogger(logOut, geo))
	r.Handle("/metrics", promhttp.Handler())
	gw.Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	//
	// ── 4.  Serve until signalled ───────────────────────────────────────
	//
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := codeCache.Sweep(); n > 0 {
					logOut.Infow("upload codes expired", "count", n)
				}
			}
		}
	})

	eg.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	if err := eg.Wait(); err != nil {
		logOut.Fatalf("server: %v", err)
	}
	logOut.Infow("shutdown complete")
}
