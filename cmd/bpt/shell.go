package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

var commandNames = []string{"insert", "put", "get", "delete", "stats", "dump", "verify", "sync", "help", "exit", "quit"}

func newCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commandNames))
	for _, name := range commandNames {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// runShell reads commands until EOF, an interrupt on an empty line, or exit.
func runShell(b backend, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bpt> ",
		HistoryFile:     historyFile,
		AutoComplete:    newCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := execute(b, line, rl.Stdout()); quit {
			return nil
		}
	}
}

// execute runs one shell line against b and reports whether the shell
// should exit.
func execute(b backend, line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	fail := func(err error) { fmt.Fprintf(out, "Error: %v\n", err) }
	switch cmd := parts[0]; cmd {
	case "help":
		printHelp(out)
	case "get":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: get <key>")
			return false
		}
		v, err := b.Get(parts[1])
		if err != nil {
			fail(err)
			return false
		}
		fmt.Fprintln(out, v)
	case "insert", "put":
		if len(parts) < 2 {
			fmt.Fprintf(out, "Usage: %s <key> [value]\n", cmd)
			return false
		}
		value := strings.Join(parts[2:], " ")
		var err error
		if cmd == "insert" {
			err = b.Insert(parts[1], value)
		} else {
			err = b.Put(parts[1], value)
		}
		if err != nil {
			fail(err)
			return false
		}
		fmt.Fprintln(out, "OK")
	case "delete":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: delete <key>")
			return false
		}
		if err := b.Delete(parts[1]); err != nil {
			fail(err)
			return false
		}
		fmt.Fprintln(out, "OK")
	case "stats":
		s, err := b.Stats()
		if err != nil {
			fail(err)
			return false
		}
		fmt.Fprintf(out, "order=%d key_size=%d value_size=%d height=%d internal=%d leaves=%d file_size=%d\n",
			s.Order, s.KeySize, s.ValueSize, s.Height, s.InternalNodes, s.Leaves, s.FileSize)
		fmt.Fprintf(out, "cache hits=%d misses=%d reads=%d writes=%d\n",
			s.Cache.Hits, s.Cache.Misses, s.Cache.Reads, s.Cache.Writes)
	case "dump", "verify", "sync":
		m, ok := b.(maintainer)
		if !ok {
			fmt.Fprintf(out, "%s is only available with -db\n", cmd)
			return false
		}
		maintain(m, cmd, out, fail)
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return true
	default:
		fmt.Fprintf(out, "Unknown command: %s\n", parts[0])
		printHelp(out)
	}
	return false
}

func maintain(m maintainer, cmd string, out io.Writer, fail func(error)) {
	switch cmd {
	case "dump":
		if err := m.Dump(out); err != nil {
			fail(err)
		}
	case "verify":
		s, err := m.Verify()
		if err != nil {
			fail(err)
			return
		}
		fmt.Fprintf(out, "OK: height=%d internal=%d leaves=%d records=%d\n",
			s.Height, s.InternalNodes, s.Leaves, s.Records)
	case "sync":
		if err := m.Sync(); err != nil {
			fail(err)
			return
		}
		fmt.Fprintln(out, "Database synced to disk")
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out, "  insert <key> [value]   - Insert a new key")
	fmt.Fprintln(out, "  put <key> [value]      - Insert or replace a key")
	fmt.Fprintln(out, "  get <key>              - Get a value")
	fmt.Fprintln(out, "  delete <key>           - Delete a key")
	fmt.Fprintln(out, "  stats                  - Show tree and cache statistics")
	fmt.Fprintln(out, "  dump                   - Print every node (local only)")
	fmt.Fprintln(out, "  verify                 - Check the tree structure (local only)")
	fmt.Fprintln(out, "  sync                   - Sync the database to disk (local only)")
	fmt.Fprintln(out, "  help                   - Show this help message")
	fmt.Fprintln(out, "  exit, quit             - Exit the program")
}
