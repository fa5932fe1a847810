package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"salesauto.org/internal/audit"
	"salesauto.org/internal/auth"
	"salesauto.org/internal/httpapi"
	"salesauto.org/internal/identity"
	"salesauto.org/internal/obs"
	"salesauto.org/internal/password"
	"salesauto.org/internal/rbac"
	"salesauto.org/internal/store/memory"
	"salesauto.org/internal/store/pg"
	"salesauto.org/internal/token"
)

var version = "0.3.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()

	secret := os.Getenv("SALESAUTO_AUTH_SECRET")
	if len(secret) < 32 {
		log.Fatal("SALESAUTO_AUTH_SECRET must be set to at least 32 bytes")
	}

	var (
		accounts  identity.Store
		refresh   token.RefreshStore
		blacklist token.BlacklistStore
		roles     rbac.Store
		auditLog  audit.Store
		probe     httpapi.ReadyProbe
		pgStore   *pg.Store
	)
	if dsn := os.Getenv("SALESAUTO_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		accounts = pgStore.Accounts()
		refresh = pgStore.RefreshTokens()
		blacklist = pgStore.Blacklist()
		roles = pgStore.Roles()
		auditLog = pgStore.Audit()
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		// In-memory stores for local development; state dies with the process.
		log.Print("SALESAUTO_PG_DSN not set, using in-memory stores")
		mem := memory.New()
		accounts = mem.Accounts
		refresh = mem.RefreshTokens
		blacklist = mem.Blacklist
		roles = mem.Roles
		auditLog = mem.Audit
	}

	issuer, err := token.NewIssuer([]byte(secret),
		token.WithIssuerName("salesauto"),
		token.WithAccessTTL(envDuration("SALESAUTO_ACCESS_TTL", 15*time.Minute)))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	trail, err := audit.NewTrail(auditLog)
	if err != nil {
		log.Fatalf("audit trail: %v", err)
	}
	rbacSvc, err := rbac.NewService(roles)
	if err != nil {
		log.Fatalf("rbac: %v", err)
	}

	svc, err := auth.NewService(auth.Config{
		Accounts:  accounts,
		Guard:     identity.NewGuard(accounts),
		Hasher:    password.NewHasher(password.DefaultParams(), envInt64("SALESAUTO_HASH_CONCURRENCY", 4)),
		Issuer:    issuer,
		Ledger:    token.NewLedger(refresh, token.WithRefreshTTL(envDuration("SALESAUTO_REFRESH_TTL", 7*24*time.Hour))),
		Blacklist: token.NewBlacklist(blacklist),
		RBAC:      rbacSvc,
		Trail:     trail,
	})
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, trail, probe, version)

	handler := httpapi.Logging(
		httpapi.SecurityHeaders(
			httpapi.CORS(
				httpapi.RateLimit(
					httpapi.MaxBodyBytes(api.Handler(), 1<<20),
					20, 10))))

	addr := os.Getenv("SALESAUTO_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting salesauto-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Hourly sweep of expired refresh tokens and blacklist entries.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				refreshN, blacklistN, err := svc.PurgeExpired(sweepCtx)
				if err != nil {
					log.Printf("purge expired: %v", err)
					continue
				}
				log.Printf("purged %d refresh tokens, %d blacklist entries", refreshN, blacklistN)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}

func envInt64(key string, def int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return n
}
