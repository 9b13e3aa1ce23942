package main

import (
	"flag"

	"github.com/conuredb/bpt/pkg/config"
)

// LoadEffectiveConfig defines CLI flags, parses the optional YAML config,
// applies CLI overrides, and returns the effective configuration.
func LoadEffectiveConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	var (
		configPath string
		nodeID     string
		dataDir    string
		raftAddr   string
		httpAddr   string
		logLevel   string
		logBackend string
		bootstrap  settableBool
		syncWrites settableBool
		barrier    settableDuration
		order      settableInt
		keySize    settableInt
		valueSize  settableInt
		cache      settableInt
	)

	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&nodeID, "node-id", "", "unique node ID")
	fs.StringVar(&dataDir, "data-dir", "", "data directory for node state")
	fs.StringVar(&raftAddr, "raft-addr", "", "raft bind/advertise address host:port")
	fs.StringVar(&httpAddr, "http-addr", "", "http bind address")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&logBackend, "log-backend", "", "log backend (zap, logrus, none)")
	fs.Var(&bootstrap, "bootstrap", "bootstrap single-node cluster if no existing state")
	fs.Var(&syncWrites, "sync-writes", "fdatasync after every block write")
	fs.Var(&barrier, "barrier-timeout", "raft barrier timeout (e.g., 3s)")
	fs.Var(&order, "order", "tree order for a new database")
	fs.Var(&keySize, "key-size", "key width in bytes for a new database")
	fs.Var(&valueSize, "value-size", "value width in bytes for a new database")
	fs.Var(&cache, "cache-blocks", "number of blocks in the read cache")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfgFile, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	cli := CLIOverrides{
		NodeID:      nodeID,
		DataDir:     dataDir,
		RaftAddr:    raftAddr,
		HTTPAddr:    httpAddr,
		LogLevel:    logLevel,
		LogBackend:  logBackend,
		Order:       order.ptr(),
		KeySize:     keySize.ptr(),
		ValueSize:   valueSize.ptr(),
		CacheBlocks: cache.ptr(),
	}
	if bootstrap.set {
		cli.Bootstrap = &bootstrap.val
	}
	if syncWrites.set {
		cli.SyncWrites = &syncWrites.val
	}
	if barrier.set {
		cli.BarrierTimeout = &barrier.val
	}

	cfg := mergeConfig(cfgFile, cli)
	return cfg, cfg.Validate()
}
