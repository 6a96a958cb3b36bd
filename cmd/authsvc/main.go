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

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/polyshop/auth-service/internal/admission"
	"github.com/polyshop/auth-service/internal/config"
	"github.com/polyshop/auth-service/internal/httpapi"
	"github.com/polyshop/auth-service/internal/keys"
	"github.com/polyshop/auth-service/internal/notify"
	"github.com/polyshop/auth-service/internal/obs"
	"github.com/polyshop/auth-service/internal/opaque"
	"github.com/polyshop/auth-service/internal/token"
	"github.com/polyshop/auth-service/internal/user"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	keyring, err := keys.NewManager(cfg.KeyDir, cfg.AllowDevKeys)
	if err != nil {
		log.Fatalf("load signing keys: %v", err)
	}
	issuer, err := token.NewIssuer(keyring, cfg.Issuer, cfg.BearerTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	// Without a DSN the service runs on in-memory stores: dev mode only.
	var (
		tokenStore opaque.Store
		banStore   admission.BanStore
		users      user.Directory
	)
	if db != nil {
		tokenStore = opaque.NewPGStore(db)
		banStore = admission.NewPGBanStore(db)
		users = user.NewPGDirectory(db)
	} else {
		log.Println("no AUTH_PG_DSN set, using in-memory stores")
		tokenStore = opaque.NewMemStore()
		banStore = admission.NewMemBanStore()
		users = user.NewMemDirectory()
	}

	tokens, err := opaque.NewService(tokenStore,
		opaque.WithTTL(opaque.KindAccess, cfg.BearerTTL),
		opaque.WithTTL(opaque.KindRefresh, cfg.RefreshTTL),
		opaque.WithTTL(opaque.KindEmailVerification, cfg.EmailTokenTTL),
		opaque.WithTTL(opaque.KindPasswordReset, cfg.ResetTokenTTL),
		opaque.WithTTL(opaque.KindPhoneOTP, cfg.PhoneOTPTTL),
		opaque.WithTTL(opaque.KindAccountRestore, cfg.RestoreTokenTTL),
	)
	if err != nil {
		log.Fatalf("opaque token service: %v", err)
	}
	bans, err := admission.NewBanlist(banStore)
	if err != nil {
		log.Fatalf("banlist: %v", err)
	}
	limiter := admission.NewLimiter()

	api := httpapi.New(httpapi.Deps{
		Issuer:  issuer,
		Tokens:  tokens,
		Users:   users,
		Keyring: keyring,
		Limiter: limiter,
		Bans:    bans,
		Sender:  notify.LogSender{},
		Policy: httpapi.AdmissionPolicy{
			IPMax:          cfg.IPRateMax,
			IPWindowSec:    cfg.IPRateWindowSec,
			IdentMax:       cfg.IdentRateMax,
			IdentWindowSec: cfg.IdentRateWindowSec,
		},
		Ready:   httpapi.ReadyProbe{DB: db},
		Version: version,
	})

	// Background maintenance: key rotation, token sweep, limiter pruning.
	stopMaintenance := make(chan struct{})
	go keyring.RotateEvery(cfg.RotateInterval, stopMaintenance)
	go tokens.SweepEvery(cfg.SweepInterval, cfg.Retention, stopMaintenance)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Prune()
			case <-stopMaintenance:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting auth-service %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	close(stopMaintenance)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
