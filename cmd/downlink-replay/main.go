// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// downlink-replay drives the product assembler from recorded feed
// captures and inserts every finished product into a store. It is
// the offline counterpart of a live ingest daemon: the same session,
// handler, and store wiring, fed from files instead of a receiver.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/downlink-project/downlink/lib/cli"
	"github.com/downlink-project/downlink/lib/config"
	"github.com/downlink-project/downlink/lib/gini"
	"github.com/downlink-project/downlink/lib/ingest"
	"github.com/downlink-project/downlink/lib/product"
	"github.com/downlink-project/downlink/lib/store"
	"github.com/downlink-project/downlink/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "config file (defaults to $DOWNLINK_CONFIG)")
	storeDir := pflag.String("store-dir", "", "override the configured store directory")
	compressionName := pflag.String("compression", "", "override the configured store compression (none, lz4, zstd)")
	logLevel := pflag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	showVersion := pflag.BoolP("version", "V", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("downlink-replay %s\n", version.Info())
		return nil
	}

	captures := pflag.Args()
	if len(captures) == 0 {
		return fmt.Errorf("usage: downlink-replay [flags] <capture-file>...")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *storeDir != "" {
		cfg.Store.Dir = *storeDir
	}
	if *compressionName != "" {
		cfg.Store.Compression = *compressionName
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cli.NewLogger(cfg.Log)

	compression, err := store.ParseCompression(cfg.Store.Compression)
	if err != nil {
		return err
	}
	productStore, err := store.Open(cfg.Store.Dir, store.Options{
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer productStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stored, duplicates int
	session, err := ingest.NewSession(ingest.Params{
		Registry: gini.NewRegistry(),
		Handler: func(ctx context.Context, img *gini.Image, info product.Info) error {
			inserted, err := productStore.Insert(img.Bytes(), info)
			if err != nil {
				return err
			}
			if inserted {
				stored++
			} else {
				duplicates++
			}
			return nil
		},
		Logger:             logger,
		InitialBufferBytes: cfg.Assembly.InitialBufferBytes,
		MaxProductBytes:    cfg.Assembly.MaxProductBytes,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	for _, path := range captures {
		logger.Info("replaying capture", "path", path)
		if err := replayFile(ctx, session, path); err != nil {
			return fmt.Errorf("replaying %s: %w", path, err)
		}
	}

	stats := session.Stats()
	logger.Info("replay finished",
		"captures", len(captures),
		"products_completed", stats.ProductsCompleted,
		"products_aborted", stats.ProductsAborted,
		"handler_errors", stats.HandlerErrors,
		"blocks_received", stats.BlocksReceived,
		"blocks_filled", stats.BlocksFilled,
		"blocks_late", stats.BlocksLate,
		"blocks_orphaned", stats.BlocksOrphaned,
		"blocks_rejected", stats.BlocksRejected,
		"records_filled", stats.RecordsFilled,
		"bytes_received", stats.BytesReceived,
		"bytes_delivered", stats.BytesDelivered,
		"stored", stored,
		"duplicates", duplicates,
	)
	return nil
}

// loadConfig resolves the configuration source: an explicit --config
// path wins, then DOWNLINK_CONFIG, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("DOWNLINK_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

func replayFile(ctx context.Context, session *ingest.Session, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Captures are read in many small framed pieces; the buffer
	// keeps each piece from becoming its own file read.
	return session.Replay(ctx, bufio.NewReaderSize(file, 1<<20))
}
