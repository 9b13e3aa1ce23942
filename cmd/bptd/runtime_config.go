package main

import (
	"time"

	"github.com/conuredb/bpt/btree"
	"github.com/conuredb/bpt/db"
	"github.com/conuredb/bpt/pkg/config"
	"github.com/conuredb/bpt/pkg/logger"
)

// CLIOverrides carries CLI-provided values. Empty strings mean "not set".
// For other types, a pointer is used to detect if the flag was explicitly set.
type CLIOverrides struct {
	NodeID         string
	DataDir        string
	RaftAddr       string
	HTTPAddr       string
	LogLevel       string
	LogBackend     string
	Bootstrap      *bool
	SyncWrites     *bool
	BarrierTimeout *time.Duration
	Order          *int
	KeySize        *int
	ValueSize      *int
	CacheBlocks    *int
}

func mergeConfig(fileCfg config.Config, cli CLIOverrides) config.Config {
	cfg := fileCfg

	// Apply CLI overrides when provided
	if cli.NodeID != "" {
		cfg.NodeID = cli.NodeID
	}
	if cli.DataDir != "" {
		cfg.DataDir = cli.DataDir
	}
	if cli.RaftAddr != "" {
		cfg.RaftAddr = cli.RaftAddr
	}
	if cli.HTTPAddr != "" {
		cfg.HTTPAddr = cli.HTTPAddr
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogBackend != "" {
		cfg.LogBackend = cli.LogBackend
	}
	if cli.Order != nil {
		cfg.Order = *cli.Order
	}
	if cli.KeySize != nil {
		cfg.KeySize = *cli.KeySize
	}
	if cli.ValueSize != nil {
		cfg.ValueSize = *cli.ValueSize
	}
	if cli.CacheBlocks != nil {
		cfg.CacheBlocks = *cli.CacheBlocks
	}
	if cli.Bootstrap != nil {
		cfg.Bootstrap = *cli.Bootstrap
	}
	if cli.SyncWrites != nil {
		cfg.SyncWrites = *cli.SyncWrites
	}
	if cli.BarrierTimeout != nil {
		cfg.BarrierTimeout = *cli.BarrierTimeout
	}

	// Defaults for any still-empty values
	if cfg.NodeID == "" {
		cfg.NodeID = "node1"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.RaftAddr == "" {
		cfg.RaftAddr = "127.0.0.1:7001"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8081"
	}
	if cfg.BarrierTimeout == 0 {
		cfg.BarrierTimeout = 3 * time.Second
	}
	if cfg.Order == 0 {
		cfg.Order = btree.DefaultOrder
	}
	if cfg.KeySize == 0 {
		cfg.KeySize = btree.DefaultKeySize
	}
	if cfg.ValueSize == 0 {
		cfg.ValueSize = btree.DefaultValueSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogBackend == "" {
		cfg.LogBackend = logger.BackendZap
	}

	return cfg
}

// dbOptions translates the effective config for db.Open. A zero cache size
// in the config keeps the default cache.
func dbOptions(cfg config.Config, log logger.Logger) db.Options {
	opts := db.DefaultOptions()
	opts.Order = cfg.Order
	opts.KeySize = cfg.KeySize
	opts.ValueSize = cfg.ValueSize
	if cfg.CacheBlocks > 0 {
		opts.CacheBlocks = cfg.CacheBlocks
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = log
	return opts
}
