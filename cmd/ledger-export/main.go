// Package main exports the filtered transaction ledger as a dated CSV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"custody-workbench/internal/collections"
	"custody-workbench/internal/config"
	"custody-workbench/internal/ledger"
	"custody-workbench/internal/upstream"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run performs the export and returns the process exit code.
func run(args []string) int {
	cfg := config.Load()

	// Parse flags
	flags := flag.NewFlagSet("ledger-export", flag.ContinueOnError)
	baseURL := flags.String("upstream", cfg.Upstream.BaseURL, "Custody API base URL")
	outputDir := flags.String("output-dir", ".", "Output directory for the CSV file")
	tab := flags.String("tab", "all", "Ledger tab (all, deposits, withdrawals, trades, conversions, transfers)")
	from := flags.String("from", "", "Earliest date, YYYY-MM-DD or RFC 3339 (inclusive)")
	to := flags.String("to", "", "Latest date, YYYY-MM-DD or RFC 3339 (inclusive)")
	query := flags.String("query", "", "Case-insensitive search over id, asset, type, status and amount")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	filter, err := buildFilter(*tab, *from, *to, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := upstream.NewClient(*baseURL,
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithMaxRetries(cfg.Upstream.MaxRetries),
		upstream.WithLogger(log.Logger),
	)
	book := ledger.NewBook(collections.New(client, nil), ledger.WithLogger(log.Logger))
	defer book.Close()

	path, rows, err := export(ctx, book, filter, *outputDir)
	if errors.Is(err, ledger.ErrEmptyExport) {
		fmt.Fprintln(os.Stderr, "No transactions to export")
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting ledger: %s\n", upstream.Message(err))
		return 1
	}

	fmt.Printf("Exported %d transactions to %s\n", rows, path)
	return 0
}

func buildFilter(tab, from, to, query string) (ledger.Filter, error) {
	t, err := ledger.ParseTab(tab)
	if err != nil {
		return ledger.Filter{}, err
	}
	f, err := ledger.ParseDate(from, false)
	if err != nil {
		return ledger.Filter{}, err
	}
	u, err := ledger.ParseDate(to, true)
	if err != nil {
		return ledger.Filter{}, err
	}
	return ledger.Filter{Tab: t, From: f, To: u, Query: query}, nil
}

// export writes the filtered ledger into dir and returns the file path and row count.
func export(ctx context.Context, book *ledger.Book, filter ledger.Filter, dir string) (string, int, error) {
	name, data, err := book.Export(ctx, filter)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return "", 0, fmt.Errorf("write %s: %w", path, err)
	}

	return path, strings.Count(data, "\n") - 1, nil
}
