// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/echa/log"

	"blockwatch.cc/certreg/pkg/api"
	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/config"
	"blockwatch.cc/certreg/pkg/deploy"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/metastore"
	"blockwatch.cc/certreg/pkg/stx"
	"blockwatch.cc/certreg/pkg/verifier"
)

var (
	configPath string
	listen     string
	deployer   string
	checkpoint string
	verbose    bool
	flags      = flag.NewFlagSet("node", flag.ContinueOnError)
)

func init() {
	flags.Usage = func() {}
	flags.StringVar(&configPath, "config", os.Getenv("CERTREG_CONFIG"), "YAML config file")
	flags.StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	flags.StringVar(&deployer, "deployer", "", "deployer and super admin principal (overrides config)")
	flags.StringVar(&checkpoint, "checkpoint", "", "ledger checkpoint file (overrides config)")
	flags.BoolVar(&verbose, "v", false, "debug logging")
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn", "warning":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}
}

func run() error {
	err := flags.Parse(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			fmt.Printf("Usage: %s [flags]\n", os.Args[0])
			fmt.Println("\nFlags")
			flags.PrintDefaults()
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Node.Listen = listen
	}
	if deployer != "" {
		cfg.Chain.Deployer = stx.Principal(deployer)
	}
	if checkpoint != "" {
		cfg.Chain.Checkpoint = checkpoint
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	setLogLevel(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// chain
	l := ledger.New(ledger.Config{
		TxFee:    cfg.Chain.TxFee,
		Balances: cfg.Chain.Balances,
	})
	sys, err := deploy.Genesis(l, cfg.Chain.Deployer, cfg.Chain.Managers...)
	if err != nil {
		return err
	}
	restored := false
	if cfg.Chain.Checkpoint != "" {
		if restored, err = l.LoadCheckpoint(cfg.Chain.Checkpoint); err != nil {
			return err
		}
	}
	if !restored {
		if err := sys.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if err := sys.Seed(ctx, cfg.Chain.Schools...); err != nil {
			return fmt.Errorf("seeding schools: %w", err)
		}
	}
	log.Infof("Registry %s points to manager %s at height %d", sys.Registry.Principal(), sys.Registry.GetActiveManager(), l.Height())

	// off-chain collaborators
	store, err := metastore.New(cfg.Metadata.Dir, cfg.Metadata.PublicURL)
	if err != nil {
		return err
	}
	db, err := cache.Open(cfg.Cache)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := api.New(api.Options{
		Ledger:   l,
		Registry: sys.Registry.Principal(),
		Data:     sys.Data.Principal(),
		Store:    store,
		Cache:    db,
		Verifier: verifier.New(l, db, nil, sys.Registry.Principal()),
	})

	go produceBlocks(ctx, l, cfg.Chain.BlockTime)
	go checkpoints(ctx, l, cfg.Chain.Checkpoint, cfg.Chain.CheckpointInterval)

	err = srv.ListenAndServe(ctx, cfg.Node.Listen)
	if cfg.Chain.Checkpoint != "" {
		if cerr := l.Checkpoint(cfg.Chain.Checkpoint); cerr != nil {
			log.Errorf("Final checkpoint: %v", cerr)
		} else {
			log.Infof("Saved checkpoint at height %d", l.Height())
		}
	}
	return err
}

func produceBlocks(ctx context.Context, l *ledger.Ledger, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Mine(1)
		}
	}
}

func checkpoints(ctx context.Context, l *ledger.Ledger, path string, every time.Duration) {
	if path == "" || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.Checkpoint(path); err != nil {
				log.Errorf("Checkpoint: %v", err)
			}
		}
	}
}
