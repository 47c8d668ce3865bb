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

	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/chain"
	"github.com/stake-plus/govboard/src/board/comments"
	"github.com/stake-plus/govboard/src/board/config"
	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/identity"
	"github.com/stake-plus/govboard/src/board/policy"
	"github.com/stake-plus/govboard/src/board/posts"
	"github.com/stake-plus/govboard/src/board/votes"
	"github.com/stake-plus/govboard/src/board/webserver"
)

// loadSettings reads the settings table when MYSQL_DSN is set. The board
// runs on environment defaults without it.
func loadSettings() *data.Settings {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return nil
	}
	db, err := data.ConnectMySQL(dsn)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	s, err := data.LoadSettings(db)
	if err != nil {
		log.Fatalf("settings: %v", err)
	}
	return s
}

func main() {
	cfg := config.Load(loadSettings())

	rdb := data.MustRedis(cfg.RedisURL)
	store := data.NewRedisStore(rdb, cfg.KeyPrefix)

	disk, err := assets.NewDisk(cfg.AssetDir)
	if err != nil {
		log.Fatalf("assets: %v", err)
	}

	var oracle posts.BalanceOracle
	if o, err := chain.NewBalanceOracle(cfg.RPCURL, cfg.TokenDecimals); err != nil {
		log.Printf("chain: balance oracle unavailable: %v", err)
	} else {
		oracle = o
	}

	admins := policy.NewAdmins(cfg.Admins)
	registry := identity.NewRegistry(store, disk, nil)
	commentRepo := comments.NewRepository(store, registry, nil)
	ledger := votes.NewLedger(store, registry, nil)
	postRepo := posts.NewRepository(store, posts.Deps{
		Identities:  registry,
		Comments:    commentRepo,
		Votes:       ledger,
		Oracle:      oracle,
		Assets:      disk,
		Admins:      admins,
		TokenSymbol: cfg.TokenSymbol,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go postRepo.RunSweeper(ctx, cfg.SweepInterval)

	router := webserver.New(cfg, rdb, webserver.Services{
		Posts:      postRepo,
		Comments:   commentRepo,
		Votes:      ledger,
		Identities: registry,
		Assets:     disk,
		Oracle:     oracle,
		Admins:     admins,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.EnableSSL {
		certs, err := webserver.NewCertReloader(cfg.SSLCert, cfg.SSLKey)
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
		go certs.Watch(ctx, 5*time.Minute)
		srv.TLSConfig = certs.Config()
	}

	go func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()
	log.Printf("board listening on %s (tls=%v)", cfg.Port, cfg.EnableSSL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	_ = rdb.Close()
}
