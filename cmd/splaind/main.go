// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command splaind runs the splain service: the conversation engine, the
// question-answering API, and optionally the public share server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jeranaias/splain/internal/app"
	"github.com/jeranaias/splain/internal/config"
	"github.com/jeranaias/splain/internal/engine"
	"github.com/jeranaias/splain/internal/identity"
	"github.com/jeranaias/splain/internal/localstore"
	"github.com/jeranaias/splain/internal/provider"
	"github.com/jeranaias/splain/internal/remotestore"
	"github.com/jeranaias/splain/internal/share"
)

func main() {
	var (
		configPath string
		listenAddr string
	)
	flag.StringVar(&configPath, "config", "", "path to config.toml (default ~/.splain/config.toml)")
	flag.StringVar(&listenAddr, "listen", "127.0.0.1:8790", "API listen address")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("splaind ")

	if err := run(configPath, listenAddr); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, listenAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ==========================================================================
	// CONFIGURATION
	// ==========================================================================

	if configPath == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// ==========================================================================
	// STORES
	// ==========================================================================

	dataDir := cfg.Store.LocalDir
	if dataDir == "" {
		dataDir, err = config.Dir()
		if err != nil {
			return err
		}
	}

	local, err := localstore.NewWithDir(dataDir)
	if err != nil {
		return err
	}

	dbPath := cfg.Store.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "chats.db")
	}
	remote, err := remotestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer remote.Close()

	// ==========================================================================
	// ENGINE AND APP
	// ==========================================================================

	watcher := identity.NewWatcher()
	eng := engine.New(local, remote)
	eng.Watch(ctx, watcher.Subscribe())

	// Identity is externally decided; a fixed user id via the environment
	// stands in for a real auth integration.
	if userID := os.Getenv("SPLAIN_USER_ID"); userID != "" {
		watcher.Set(identity.SignedInState(userID))
	}

	prov := provider.NewClient(cfg.Provider.APIKey).
		WithModel(cfg.Provider.Model).
		WithMaxRetries(cfg.Provider.MaxRetries)
	if cfg.Provider.BaseURL != "" {
		prov = prov.WithBaseURL(cfg.Provider.BaseURL)
	}

	application := app.New(eng, prov, app.WithOptions(cfg.Answers.Options()))

	// Answer tuning follows the config file without a restart.
	if err := config.Watch(ctx, configPath, func(next *config.Config) {
		application.SetOptions(next.Answers.Options())
	}); err != nil {
		log.Printf("WARNING: config watching disabled: %v", err)
	}

	// ==========================================================================
	// SERVERS
	// ==========================================================================

	if cfg.Share.Enabled {
		shareSrv := share.New(cfg.Share.Addr, remote)
		go func() {
			if err := shareSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("WARNING: share server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shareSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("WARNING: share server shutdown: %v", err)
			}
		}()
	}

	api := newAPIServer(listenAddr, application, watcher)
	go func() {
		log.Printf("API listening on %s", listenAddr)
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("WARNING: API server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARNING: API server shutdown: %v", err)
	}

	// Let queued store mirrors land before closing the database.
	application.Cancel()
	eng.Wait()
	return nil
}
