package raftnode

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/pkg/errors"
)

type Config struct {
	NodeID    string
	RaftAddr  string
	DataDir   string
	Bootstrap bool
	// LogLevel is the hclog level name for raft's own logging.
	LogLevel string
}

type Node struct {
	raft   *raft.Raft
	fsm    *FSM
	stores []*raftboltdb.BoltStore
}

func (n *Node) Raft() *raft.Raft {
	return n.raft
}

func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// Leader returns the raft address of the current leader, or "" if unknown.
func (n *Node) Leader() string {
	return string(n.raft.Leader())
}

func (n *Node) State() string {
	return n.raft.State().String()
}

func (n *Node) AddVoter(id, addr string) error {
	future := n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 0)
	return future.Error()
}

// Apply replicates cmd and waits for the FSM to apply it locally. An error
// returned by the FSM, such as db.ErrKeyExists, is passed through.
func (n *Node) Apply(cmd Command, timeout time.Duration) error {
	b, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	f := n.raft.Apply(b, timeout)
	if err := f.Error(); err != nil {
		return err
	}
	if resp, ok := f.Response().(error); ok {
		return resp
	}
	return nil
}

// Barrier blocks until every preceding log entry is applied.
func (n *Node) Barrier(timeout time.Duration) error {
	return n.raft.Barrier(timeout).Error()
}

func (n *Node) Shutdown() error {
	err := n.raft.Shutdown().Error()
	for _, s := range n.stores {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func newRaftLogger(level string) hclog.Logger {
	if level == "" {
		level = "info"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

func StartNode(cfg Config, fsm *FSM) (*Node, error) {
	raftDir := filepath.Join(cfg.DataDir, "raft")
	if err := os.MkdirAll(raftDir, 0o755); err != nil {
		return nil, err
	}
	logger := newRaftLogger(cfg.LogLevel)

	rcfg := raft.DefaultConfig()
	rcfg.LocalID = raft.ServerID(cfg.NodeID)
	rcfg.SnapshotInterval = 30 * time.Second
	rcfg.SnapshotThreshold = 8192
	rcfg.Logger = logger

	// Stores
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "stable.bolt"))
	if err != nil {
		return nil, errors.Wrap(err, "open stable store")
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "log.bolt"))
	if err != nil {
		_ = stableStore.Close()
		return nil, errors.Wrap(err, "open log store")
	}
	n := &Node{fsm: fsm, stores: []*raftboltdb.BoltStore{stableStore, logStore}}
	closeStores := func() {
		for _, s := range n.stores {
			_ = s.Close()
		}
	}

	snaps, err := raft.NewFileSnapshotStoreWithLogger(raftDir, 3, logger.Named("snapshot"))
	if err != nil {
		closeStores()
		return nil, err
	}

	// Transport
	transport, err := raft.NewTCPTransportWithLogger(cfg.RaftAddr, nil, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		closeStores()
		return nil, errors.Wrapf(err, "listen on %s", cfg.RaftAddr)
	}

	r, err := raft.NewRaft(rcfg, fsm, logStore, stableStore, snaps, transport)
	if err != nil {
		closeStores()
		return nil, err
	}
	n.raft = r

	// Bootstrap if requested and no existing state
	if cfg.Bootstrap {
		hasState, err := raft.HasExistingState(logStore, stableStore, snaps)
		if err != nil {
			return nil, err
		}
		if !hasState {
			configuration := raft.Configuration{
				Servers: []raft.Server{{
					ID:      raft.ServerID(cfg.NodeID),
					Address: raft.ServerAddress(cfg.RaftAddr),
				}},
			}
			if err := r.BootstrapCluster(configuration).Error(); err != nil {
				return nil, err
			}
			logger.Info("bootstrapped single-node cluster", "node_id", cfg.NodeID)
		}
	}

	return n, nil
}
