// Package cmd provides the command-line interface for Nova Search.
// It handles command parsing, configuration loading and wiring of the
// crawler, indexer, query engine and HTTP server.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Nova-Search/api/internal/config"
	"github.com/Nova-Search/api/internal/logging"
)

const envPrefix = "NOVA"

var (
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// app carries the state shared by one command tree
type app struct {
	v       *viper.Viper
	cfgFile string
	closers []io.Closer
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "novasearch",
		Short: "A small web search engine",
		Long: `Nova Search crawls websites breadth-first, stores the link graph and page
text in SQLite, builds an inverted index and answers TF-IDF ranked queries
from the command line or over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, done, err := a.load(cmd); err != nil || done {
				return err
			}
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./novasearch.yml)")
	pf.StringP("database", "d", config.DefaultDatabasePath(), "Path to SQLite database file")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Bool("show-config", false, "Display current configuration in YAML format and exit")

	a.bind(pf, map[string]string{
		"database_path": "database",
		"log.level":     "log-level",
	})

	root.AddCommand(
		a.newInitCmd(),
		a.newCrawlCmd(),
		a.newServeCmd(),
		a.newSearchCmd(),
		a.newReindexCmd(),
		a.newStatsCmd(),
	)
	return root
}

// bind ties viper keys to flags. Flags override the config file and
// environment only when set explicitly.
func (a *app) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", name, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func (a *app) initConfig() error {
	if err := setDefaults(a.v, config.DefaultConfig()); err != nil {
		return err
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(config.AppName)
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	fmt.Fprintf(os.Stderr, "Using config file: %s\n", a.v.ConfigFileUsed())
	return nil
}

// setDefaults registers every key of cfg so environment variables can
// override keys absent from the config file.
func setDefaults(v *viper.Viper, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	for key, value := range flatten("", tree) {
		v.SetDefault(key, value)
	}
	return nil
}

func flatten(prefix string, tree map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// load resolves the effective configuration and sets up logging. done is
// true when --show-config already handled the command.
func (a *app) load(cmd *cobra.Command) (*config.Config, bool, error) {
	cfg := config.DefaultConfig()
	if err := a.v.Unmarshal(cfg); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Crawl.UserAgent == "NovaSearch/1.0" {
		cfg.Crawl.UserAgent = generateUserAgent()
	}

	if show, _ := cmd.Flags().GetBool("show-config"); show {
		return cfg, true, showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.SetDefault(logging.FromConfig(cfg.Log))
	if err != nil {
		return nil, false, fmt.Errorf("failed to set up logging: %w", err)
	}
	a.closers = append(a.closers, closer)
	return cfg, false, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("NovaSearch/%s", version)
	}
	return "NovaSearch/dev"
}

func showCurrentConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current Nova Search Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./%s.yml\n", config.AppName)
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", envPrefix)

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (%s_ prefix)\n", envPrefix)
	fmt.Fprintf(w, "# 3. Configuration file (%s.yml)\n", config.AppName)
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")
	return nil
}
