package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miounet11/miaoda-sub002/internal/config"
	"github.com/miounet11/miaoda-sub002/internal/logging"
	"github.com/miounet11/miaoda-sub002/internal/platform"
	"github.com/miounet11/miaoda-sub002/internal/search"
	"github.com/miounet11/miaoda-sub002/internal/statedb"
)

const Version = "0.3.1"

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "index":
		runIndex(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "recent":
		runRecent(os.Args[2:])
	case "suggest":
		runSuggest(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "version":
		fmt.Println("miaoda-search " + Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`miaoda-search - local chat message search

Usage:
  miaoda-search index <messages.jsonl>    index messages from a JSONL export
  miaoda-search search <text> [flags]     search indexed messages
  miaoda-search recent                    show recent queries
  miaoda-search suggest <partial>         suggest queries from history
  miaoda-search stats                     show index statistics
  miaoda-search version                   print version

Search flags:
  -role string      filter by role (user/assistant/system)
  -chat string      filter by chat id
  -since string     only messages after this date (YYYY-MM-DD)
  -until string     only messages before this date (YYYY-MM-DD)
  -max int          max results (default 20)
  -sort string      sort by relevance, date, or length (default relevance)
  -order string     asc or desc (default desc)
  -fuzzy            enable fuzzy matching
  -regex            treat query terms as regular expressions
  -whole-words      match whole words only
  -case-sensitive   match case
`)
}

// setup wires config, logging, the state DB, and the engine. The returned
// cleanup closes everything in reverse order.
func setup() (*search.Engine, func(), error) {
	dataDir, err := platform.EnsureDataDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve data dir: %w", err)
	}

	cfgPath := filepath.Join(dataDir, config.FileName)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (using defaults)\n", err)
	}

	logging.Init(logging.Config{
		LogDir:     dataDir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   cfg.Logs.Compress,
	})

	dbPath, err := platform.StateDBPath()
	if err != nil {
		logging.Shutdown()
		return nil, nil, err
	}
	db, err := statedb.Open(dbPath)
	if err != nil {
		logging.Shutdown()
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		logging.Shutdown()
		return nil, nil, err
	}

	engine := search.New(engineConfig(cfg, db))

	watcher, err := config.Watch(cfgPath, func(fresh config.Config) {
		engine.ApplyTuning(
			fresh.Search.CacheCapacity,
			fresh.Search.WorkerThreshold,
			fresh.Search.FuzzyThreshold,
		)
	})
	if err != nil {
		cliLog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
	}

	cleanup := func() {
		if watcher != nil {
			watcher.Close()
		}
		_ = engine.Close()
		_ = db.Close()
		logging.Shutdown()
	}
	return engine, cleanup, nil
}

func engineConfig(cfg config.Config, db *statedb.StateDB) search.Config {
	return search.Config{
		BatchSize:           cfg.Search.BatchSize,
		TickInterval:        time.Duration(cfg.Search.TickIntervalMS) * time.Millisecond,
		PersistEvery:        cfg.Search.PersistEvery,
		CacheCapacity:       cfg.Search.CacheCapacity,
		RecentCapacity:      cfg.Search.RecentCapacity,
		WorkerThreshold:     cfg.Search.WorkerThreshold,
		SmallIndexThreshold: cfg.Search.SmallIndexThreshold,
		ScanParallelism:     cfg.Search.ScanParallelism,
		FuzzyThreshold:      cfg.Search.FuzzyThreshold,
		KV:                  db,
	}
}

func runIndex(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: miaoda-search index <messages.jsonl>")
		os.Exit(1)
	}

	engine, cleanup, err := setup()
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	f, err := os.Open(args[0])
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	count := 0
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg search.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			skipped++
			continue
		}
		engine.IndexMessage(msg)
		count++
	}
	if err := scanner.Err(); err != nil {
		fatal(err)
	}

	engine.Flush()
	stats := engine.Stats()
	fmt.Printf("queued %d messages (%d skipped), index now holds %d records\n",
		count, skipped, stats.IndexedCount)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	role := fs.String("role", "", "filter by role")
	chat := fs.String("chat", "", "filter by chat id")
	since := fs.String("since", "", "only messages after this date (YYYY-MM-DD)")
	until := fs.String("until", "", "only messages before this date (YYYY-MM-DD)")
	max := fs.Int("max", 20, "max results")
	sortBy := fs.String("sort", "relevance", "sort by relevance, date, or length")
	order := fs.String("order", "desc", "asc or desc")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching")
	regex := fs.Bool("regex", false, "treat query terms as regular expressions")
	wholeWords := fs.Bool("whole-words", false, "match whole words only")
	caseSensitive := fs.Bool("case-sensitive", false, "match case")

	var text string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		text = args[0]
		args = args[1:]
	}
	_ = fs.Parse(args)

	query := search.SearchQuery{
		Text: text,
		Options: search.SearchOptions{
			FuzzyMatch:    *fuzzy,
			UseRegex:      *regex,
			WholeWords:    *wholeWords,
			CaseSensitive: *caseSensitive,
			MaxResults:    *max,
			SortBy:        search.SortField(*sortBy),
			SortOrder:     search.SortOrder(*order),
		},
	}
	if *role != "" {
		query.Filters.Roles = []search.Role{search.Role(*role)}
	}
	if *chat != "" {
		query.Filters.ChatIDs = []string{*chat}
	}
	if ts, ok := parseDate(*since); ok {
		query.Filters.DateStart = &ts
	}
	if ts, ok := parseDate(*until); ok {
		query.Filters.DateEnd = &ts
	}

	engine, cleanup, err := setup()
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := engine.Search(ctx, query)
	if err != nil {
		fatal(err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, res := range results {
		rec := res.Record
		snippet := res.Snippet
		if snippet == "" {
			snippet = rec.Content
		}
		fmt.Printf("%2d. [%.2f] %s %s %s\n    %s\n",
			i+1, res.Score, rec.Timestamp.Format("2006-01-02 15:04"),
			rec.Role, rec.MessageID, snippet)
	}
}

func runRecent(args []string) {
	engine, cleanup, err := setup()
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	queries := engine.RecentQueries()
	if len(queries) == 0 {
		fmt.Println("no recent queries")
		return
	}
	for i, q := range queries {
		label := q.Text
		if label == "" {
			label = "(filters only)"
		}
		fmt.Printf("%2d. %s\n", i+1, label)
	}
}

func runSuggest(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: miaoda-search suggest <partial>")
		os.Exit(1)
	}

	engine, cleanup, err := setup()
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	for _, s := range engine.Suggestions(args[0], 10) {
		fmt.Println(s)
	}
}

func runStats(args []string) {
	engine, cleanup, err := setup()
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	stats := engine.Stats()
	fmt.Printf("indexed messages: %d\n", stats.IndexedCount)
	fmt.Printf("distinct tokens:  %d\n", stats.TokenCount)
	if !stats.LastUpdated.IsZero() {
		fmt.Printf("last updated:     %s\n", stats.LastUpdated.Format(time.RFC3339))
	}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring invalid date %q\n", s)
		return time.Time{}, false
	}
	return ts, true
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
