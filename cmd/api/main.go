package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
	"github.com/fx2y/treksistem-platform-sub001/internal/config"
	"github.com/fx2y/treksistem-platform-sub001/internal/csrf"
	"github.com/fx2y/treksistem-platform-sub001/internal/httpapi"
	"github.com/fx2y/treksistem-platform-sub001/internal/idp"
	"github.com/fx2y/treksistem-platform-sub001/internal/monitor"
	"github.com/fx2y/treksistem-platform-sub001/internal/obs"
	"github.com/fx2y/treksistem-platform-sub001/internal/ratelimit"
	"github.com/fx2y/treksistem-platform-sub001/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	codec, err := auth.NewCodec([]byte(cfg.AuthSecret))
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	guard, err := auth.NewGuard(codec, store)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	sessions, err := auth.NewService(codec, store, store, store,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithRevokeOnRefresh(cfg.RevokeOnRefresh),
	)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}
	csrfGuard, err := csrf.New([]byte(cfg.CSRFSecret), csrf.WithTTL(cfg.CSRFTTL))
	if err != nil {
		log.Fatalf("csrf: %v", err)
	}
	limiter, err := ratelimit.New(store, ratelimit.Config{
		Window:  cfg.RateWindow,
		Max:     cfg.RateMax,
		AuthMax: cfg.RateAuthMax,
	})
	if err != nil {
		log.Fatalf("ratelimit: %v", err)
	}
	verifier, err := idp.NewGoogleVerifier(cfg.GoogleClientID)
	if err != nil {
		log.Fatalf("idp: %v", err)
	}

	journal := audit.NewJournal(store)
	mon := monitor.New(store.DB(), journal, []monitor.Sweeper{
		{Name: "revocations", Run: sessions.CleanupExpiredRevocations},
		{Name: "events", Run: func(ctx context.Context) (int64, error) {
			return journal.Cleanup(ctx, cfg.EventRetention)
		}},
		{Name: "rate_windows", Run: func(ctx context.Context) (int64, error) {
			return store.CleanupWindows(ctx, time.Now().UTC().Add(-cfg.RateWindow))
		}},
	})

	api := httpapi.New(httpapi.Deps{
		Guard:          guard,
		Codec:          codec,
		Sessions:       sessions,
		Grants:         store,
		Verifier:       verifier,
		CSRF:           csrfGuard,
		Limiter:        limiter,
		Journal:        journal,
		Monitor:        mon,
		AllowedOrigins: cfg.AllowedOrigins,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.LogEvent("info", "starting auth-api", map[string]any{
		"version": version,
		"addr":    cfg.Addr,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.LogEvent("info", "shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	obs.LogEvent("info", "stopped", nil)
}
