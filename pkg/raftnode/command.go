package raftnode

import (
	"encoding/json"
	"fmt"
)

type CommandType uint8

const (
	// CmdInsert adds a key and fails if it already exists.
	CmdInsert CommandType = iota
	CmdDelete
	// CmdPut replaces the value of a key, inserting it if missing.
	CmdPut
)

func (t CommandType) String() string {
	switch t {
	case CmdInsert:
		return "insert"
	case CmdDelete:
		return "delete"
	case CmdPut:
		return "put"
	default:
		return fmt.Sprintf("command(%d)", uint8(t))
	}
}

type Command struct {
	Type  CommandType `json:"type"`
	Key   []byte      `json:"key"`
	Value []byte      `json:"value,omitempty"`
}

func EncodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

func DecodeCommand(b []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(b, &c)
	return c, err
}
