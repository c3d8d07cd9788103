package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nova-Search/api/internal/api"
	"github.com/Nova-Search/api/internal/config"
	"github.com/Nova-Search/api/internal/crawler"
	"github.com/Nova-Search/api/internal/index"
	"github.com/Nova-Search/api/internal/search"
	"github.com/Nova-Search/api/internal/store"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and its schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, done, err := a.load(cmd)
			if err != nil || done {
				return err
			}
			if _, err := a.openStore(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s\n", cfg.DatabasePath)
			return nil
		},
	}
}

func (a *app) newCrawlCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "crawl [start_url]",
		Short: "Crawl breadth-first from a start URL",
		Long: `Crawl fetches every page reachable from start_url within max_depth link hops,
records pages and links and indexes each page as it is stored. With --resume
the frontier of an interrupted run is rebuilt from the database and the run
continues. Interrupting the command stops dispatching and lets in-flight
pages finish.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := a.load(cmd)
			if err != nil || done {
				return err
			}
			if ignore, _ := cmd.Flags().GetBool("ignore-robots"); ignore {
				cfg.Crawl.RespectRobots = false
			}
			resumeID, _ := cmd.Flags().GetString("resume")
			if resumeID == "" && len(args) == 0 {
				return errors.New("a start URL or --resume is required")
			}
			if resumeID != "" && len(args) > 0 {
				return errors.New("--resume does not take a start URL")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := a.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			cr, err := newCrawler(cfg, st)
			if err != nil {
				return err
			}
			defer cr.Close()

			var run store.CrawlRun
			if resumeID != "" {
				run, err = cr.Resume(ctx, resumeID)
			} else {
				run, err = cr.Run(ctx, crawler.Request{StartURL: args[0], MaxDepth: cfg.Crawl.MaxDepth})
			}

			if run.ID != "" {
				printRun(cmd, run)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("crawl: %w", err)
			}
			return nil
		},
	}

	c.Flags().Int("max-depth", 2, "Maximum link distance from the start URL")
	c.Flags().IntP("workers", "c", 4, "Number of concurrent fetch workers")
	c.Flags().Duration("delay", time.Second, "Minimum interval between requests to one host")
	c.Flags().Duration("timeout", 10*time.Second, "HTTP request timeout")
	c.Flags().StringP("user-agent", "u", "NovaSearch/1.0", "HTTP User-Agent header")
	c.Flags().Bool("ignore-robots", false, "Ignore robots.txt rules")
	c.Flags().Bool("follow-external-hosts", false, "Allow crawling external hosts")
	c.Flags().IntP("limit", "l", 0, "Stop after N pages (0=unlimited)")
	c.Flags().StringSlice("include-patterns", nil, "Regex patterns for URLs to include")
	c.Flags().StringSlice("exclude-patterns", nil, "Regex patterns for URLs to exclude")
	c.Flags().String("resume", "", "Resume the crawl run with this ID")

	a.bind(c.Flags(), map[string]string{
		"crawl.max_depth":             "max-depth",
		"crawl.worker_count":          "workers",
		"crawl.per_host_delay":        "delay",
		"crawl.fetch_timeout":         "timeout",
		"crawl.user_agent":            "user-agent",
		"crawl.follow_external_hosts": "follow-external-hosts",
		"crawl.max_pages":             "limit",
		"crawl.include_patterns":      "include-patterns",
		"crawl.exclude_patterns":      "exclude-patterns",
	})
	return c
}

func (a *app) newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, done, err := a.load(cmd)
			if err != nil || done {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := a.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			cr, err := newCrawler(cfg, st)
			if err != nil {
				return err
			}
			defer cr.Close()

			engine := search.NewEngine(st, newTokenizer(cfg.Index), search.OptionsFromConfig(cfg.Search))
			jobs := api.NewJobs(cr, slog.Default())
			return api.NewServer(engine, st, jobs, cfg, slog.Default()).ListenAndServe(ctx)
		},
	}

	c.Flags().String("addr", ":8000", "Address to listen on")
	a.bind(c.Flags(), map[string]string{"server.addr": "addr"})
	return c
}

func (a *app) newSearchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "search <query...>",
		Short: "Run a ranked query against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := a.load(cmd)
			if err != nil || done {
				return err
			}
			st, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			modeName, _ := cmd.Flags().GetString("mode")
			asJSON, _ := cmd.Flags().GetBool("json")

			mode, err := search.ParseMode(modeName)
			if err != nil {
				return err
			}

			engine := search.NewEngine(st, newTokenizer(cfg.Index), search.OptionsFromConfig(cfg.Search))
			results, err := engine.Search(cmd.Context(), search.Query{
				Text:   strings.Join(args, " "),
				Limit:  limit,
				Offset: offset,
				Mode:   mode,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s (%.4f)\n   %s\n", offset+i+1, r.Title, r.Score, r.URL)
				if r.Snippet != "" {
					fmt.Fprintf(out, "   %s\n", r.Snippet)
				}
			}
			return nil
		},
	}

	c.Flags().Int("limit", 0, "Maximum number of results (0 uses the configured default)")
	c.Flags().Int("offset", 0, "Number of results to skip")
	c.Flags().String("mode", "", "Term combination: or, and (empty uses the configured mode)")
	c.Flags().Bool("json", false, "Print results as JSON")
	return c
}

func (a *app) newReindexCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the inverted index from stored pages",
		Long: `Reindex re-tokenizes every stored page and replaces its index entry. With
--repair only documents whose content hash no longer matches their page are
rebuilt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, done, err := a.load(cmd)
			if err != nil || done {
				return err
			}
			st, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			ix := index.NewIndexer(st, newTokenizer(cfg.Index), slog.Default())
			repair, _ := cmd.Flags().GetBool("repair")

			start := time.Now()
			var report index.Report
			if repair {
				report, err = ix.Repair(cmd.Context())
			} else {
				report, err = ix.Rebuild(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Reindex complete in %s: %d indexed, %d unchanged, %d removed\n",
				time.Since(start).Round(time.Millisecond), report.Indexed, report.Unchanged, report.Removed)
			return nil
		},
	}

	c.Flags().Bool("repair", false, "Only rebuild documents that are out of date")
	return c
}

func (a *app) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print database statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, done, err := a.load(cmd)
			if err != nil || done {
				return err
			}
			st, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

// openStore opens and initializes the database, creating its directory.
// The store is closed when the command finishes.
func (a *app) openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath, store.Options{Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
	}
	a.closers = append(a.closers, st)

	if err := st.EnsureInitialized(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database %s: %w", cfg.DatabasePath, err)
	}
	return st, nil
}

func newTokenizer(cfg config.IndexConfig) *index.Tokenizer {
	return index.NewTokenizer(index.TokenizerOptions{
		Stemming:  cfg.Stemming,
		StopWords: cfg.StopWords,
		MinLength: cfg.MinTokenLength,
	})
}

// newCrawler wires a crawler that indexes each page as it is stored
func newCrawler(cfg *config.Config, st *store.Store) (*crawler.Crawler, error) {
	ix := index.NewIndexer(st, newTokenizer(cfg.Index), slog.Default())
	c, err := crawler.NewCrawler(&cfg.Crawl, st, ix, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize crawler: %w", err)
	}
	return c, nil
}

func printRun(cmd *cobra.Command, run store.CrawlRun) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Crawl run %s %s\n", run.ID, run.Status)
	fmt.Fprintf(out, "  Start URL: %s\n", run.StartURL)
	fmt.Fprintf(out, "  Max depth: %d\n", run.MaxDepth)
	fmt.Fprintf(out, "  Pages fetched: %d\n", run.PagesFetched)
	fmt.Fprintf(out, "  Pages failed: %d\n", run.PagesFailed)
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", run.Error)
	}
}
