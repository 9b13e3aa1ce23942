package raftnode

import (
	"errors"
	"io"

	"github.com/hashicorp/raft"

	"github.com/conuredb/bpt/db"
	"github.com/conuredb/bpt/pkg/logger"
)

var ErrUnknownCommand = errors.New("unknown command")

// FSM applies committed commands to the database. The value returned from
// Apply is the command's error, or nil; raft hands it back to the leader
// that proposed the entry.
type FSM struct {
	DB  *db.DB
	Log logger.Logger
}

func (f *FSM) Apply(l *raft.Log) interface{} {
	cmd, err := DecodeCommand(l.Data)
	if err != nil {
		return err
	}
	switch cmd.Type {
	case CmdInsert:
		err = f.DB.Insert(cmd.Key, cmd.Value)
	case CmdDelete:
		err = f.DB.Delete(cmd.Key)
	case CmdPut:
		err = f.DB.Put(cmd.Key, cmd.Value)
	default:
		err = ErrUnknownCommand
	}
	if err != nil {
		f.logger().Debug("command rejected", "index", l.Index, "command", cmd.Type.String(), "error", err)
	}
	return err
}

func (f *FSM) logger() logger.Logger {
	if f.Log == nil {
		return logger.Discard{}
	}
	return f.Log
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &dbSnapshot{db: f.DB}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			f.logger().Warn("failed to close snapshot reader", "error", closeErr)
		}
	}()
	return f.DB.RestoreFrom(rc)
}

type dbSnapshot struct {
	db *db.DB
}

func (s *dbSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := s.db.SnapshotTo(sink); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *dbSnapshot) Release() {}
