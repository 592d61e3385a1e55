// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// carbonarad is the metric processing daemon: it folds queued measures into
// aggregated splits on a periodic tick and exposes health and prometheus
// metrics over HTTP.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carbonara-project/carbonara/internal/config"
	"github.com/carbonara-project/carbonara/internal/incoming"
	"github.com/carbonara-project/carbonara/internal/indexer"
	"github.com/carbonara-project/carbonara/internal/storage"
	"github.com/carbonara-project/carbonara/internal/taskmanager"
	"github.com/carbonara-project/carbonara/pkg/archivepolicy"
	"github.com/carbonara-project/carbonara/pkg/log"
)

func main() {
	var (
		configPath string
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "./config.json", "path to the configuration file")
	flag.StringVar(&logLevel, "loglevel", "", "override the configured log level")
	flag.Parse()

	// A .env in the working directory may carry credentials that do not
	// belong in the config file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("loading .env: %v", err)
	}

	config.Init(configPath)
	if logLevel == "" {
		logLevel = config.Keys.LogLevel
	}
	log.Init(logLevel, config.Keys.LogDateTime)

	index, err := indexer.Connect(config.Keys.Indexer.DSN)
	if err != nil {
		log.Fatalf("connecting indexer: %v", err)
	}
	defer index.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, p := range archivepolicy.Defaults() {
		if err := index.CreateArchivePolicy(ctx, p); err == nil {
			log.Infof("created default archive policy %q", p.Name)
		}
	}

	inc, err := incoming.Open(config.Keys.Incoming)
	if err != nil {
		log.Fatalf("opening incoming queue: %v", err)
	}
	log.Infof("incoming queue: %s", inc)

	store, err := storage.Open(ctx, config.Keys.Storage)
	if err != nil {
		log.Fatalf("opening storage: %v", err)
	}

	taskmanager.Start(store, index, inc)
	defer taskmanager.Shutdown()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	server := &http.Server{Addr: config.Keys.Addr, Handler: mux}
	go func() {
		log.Infof("listening on %s", config.Keys.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	server.Close()
}
