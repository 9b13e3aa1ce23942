package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/conuredb/bpt/db"
	"github.com/conuredb/bpt/pkg/logger"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "open a local database file instead of a server")
		server     = flag.String("server", "http://127.0.0.1:8081", "HTTP base URL for the server (replicated mode)")
		order      = flag.Int("order", 0, "tree order when creating a local database")
		keySize    = flag.Int("key-size", 0, "key width when creating a local database")
		valueSize  = flag.Int("value-size", 0, "value width when creating a local database")
		forceEmpty = flag.Bool("force-empty", false, "discard any existing local database content")
		logLevel   = flag.String("log-level", "warn", "log level for the local engine")
		history    = flag.String("history", defaultHistory(), "readline history file")
	)
	flag.Parse()

	fmt.Println("bpt - disk-resident B+Tree key-value store")
	fmt.Println("Type 'help' for available commands")

	var b backend
	if *dbPath != "" {
		log, err := logger.New(logger.BackendLogrus, *logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts := db.DefaultOptions()
		opts.Order, opts.KeySize, opts.ValueSize = *order, *keySize, *valueSize
		opts.ForceEmpty = *forceEmpty
		opts.Logger = log
		database, err := db.Open(*dbPath, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer database.Close()
		fmt.Printf("Using local database: %s\n", *dbPath)
		b = &localBackend{db: database}
	} else {
		u, err := url.Parse(*server)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -server URL: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Using remote server: %s\n", *server)
		b = &RemoteClient{HTTP: &http.Client{Timeout: 10 * time.Second}, Base: u}
	}

	if err := runShell(b, *history); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bpt_history")
}
