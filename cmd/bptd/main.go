package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/conuredb/bpt/db"
	"github.com/conuredb/bpt/pkg/api"
	"github.com/conuredb/bpt/pkg/logger"
	"github.com/conuredb/bpt/pkg/raftnode"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bptd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadEffectiveConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogBackend, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if z, ok := log.(*logger.Zap); ok {
		defer func() { _ = z.Sync() }()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "bpt.db")
	store, err := db.Open(dbPath, dbOptions(cfg, log))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Warn("failed to close database", "error", closeErr)
		}
	}()

	fsm := &raftnode.FSM{DB: store, Log: log}
	node, err := raftnode.StartNode(raftnode.Config{
		NodeID:    cfg.NodeID,
		RaftAddr:  cfg.RaftAddr,
		DataDir:   cfg.DataDir,
		Bootstrap: cfg.Bootstrap,
		LogLevel:  cfg.LogLevel,
	}, fsm)
	if err != nil {
		return fmt.Errorf("start raft: %w", err)
	}
	defer func() {
		if err := node.Shutdown(); err != nil {
			log.Warn("raft shutdown", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Auto-join when not bootstrapping
	if !cfg.Bootstrap {
		j := &joiner{
			nodeID:   cfg.NodeID,
			raftAddr: cfg.RaftAddr,
			seeds:    parseSeeds(),
			client:   &http.Client{Timeout: 10 * time.Second},
			log:      log,
			backoff:  2 * time.Second,
		}
		go func() {
			if err := j.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("join failed", "error", err)
			}
		}()
	} else {
		log.Info("node is configured as bootstrap node", "node_id", cfg.NodeID)
	}

	server := api.New(node, store, log)
	server.BarrierTimeout = cfg.BarrierTimeout
	mux := http.NewServeMux()
	server.Register(mux)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	log.Info("bptd running", "http", cfg.HTTPAddr, "raft", cfg.RaftAddr, "node_id", cfg.NodeID,
		"endpoints", "/kv (GET, POST, PUT, DELETE), /join (POST), /status, /stats")

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
