// Package cmd provides the command-line interface for packfetch.
// It handles flag parsing, configuration loading and pipeline execution.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/packfetch/internal/config"
	"github.com/masahif/packfetch/internal/logging"
)

var (
	cfgFile   string
	envFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "packfetch",
	Short: "Discover and download free sample packs",
	Long: `packfetch crawls an index page of sample pack articles, collects every
archive linked from them and downloads the ones not already present in the
destination directory.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPipeline,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a cancellable context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// flagBinding maps a viper key to a root command flag
type flagBinding struct {
	viperKey string
	flagName string
}

var rootBindings = []flagBinding{
	{"seed_url", "seed"},
	{"destination", "dest"},
	{"catalog_path", "catalog"},
	{"assume_yes", "yes"},
	{"crawl.workers", "crawl-workers"},
	{"crawl.queue_size", "crawl-queue-size"},
	{"crawl.max_pages", "max-pages"},
	{"crawl.request_delay", "delay"},
	{"crawl.respect_robots", "respect-robots"},
	{"fetch.workers", "workers"},
	{"fetch.queue_size", "queue-size"},
	{"fetch.mode", "mode"},
	{"fetch.batch_wait", "batch-wait"},
	{"fetch.chunk_size", "chunk-size"},
	{"http.timeout", "timeout"},
	{"http.download_timeout", "download-timeout"},
	{"http.user_agent", "user-agent"},
	{"http.random_user_agent", "random-user-agent"},
	{"http.proxy", "proxy"},
	{"log.level", "log-level"},
	{"log.file", "log-file"},
}

// envOnlyKeys have no flag but can still come from PF_ variables
var envOnlyKeys = []string{
	"extract.seed_selector",
	"extract.seed_skip_head",
	"extract.seed_skip_tail",
	"extract.item_selector",
	"extract.archive_suffix",
	"log.max_size",
	"log.max_backups",
	"log.max_age",
	"log.compress",
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.DefaultConfig()

	// Configuration file flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./packfetch.yml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading PF_ variables")
	rootCmd.PersistentFlags().String("catalog", defaults.CatalogPath, "Path to SQLite run catalog (empty=disabled)")

	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Pipeline flags
	rootCmd.Flags().String("seed", defaults.SeedURL, "Index page listing sample pack articles")
	rootCmd.Flags().StringP("dest", "d", defaults.Destination, "Download directory (prompted for when interactive and not set)")
	rootCmd.Flags().BoolP("yes", "y", defaults.AssumeYes, "Start downloading without asking")

	// Crawl stage flags
	rootCmd.Flags().Int("crawl-workers", defaults.Crawl.Workers, "Number of concurrent page workers")
	rootCmd.Flags().Int("crawl-queue-size", defaults.Crawl.QueueSize, "Page queue capacity (0=unbounded)")
	rootCmd.Flags().IntP("max-pages", "l", defaults.Crawl.MaxPages, "Stop after N secondary pages (0=unlimited)")
	rootCmd.Flags().Duration("delay", defaults.Crawl.RequestDelay, "Per-host delay between page requests (0=off)")
	rootCmd.Flags().Bool("respect-robots", defaults.Crawl.RespectRobots, "Honour robots.txt rules")

	// Fetch stage flags
	rootCmd.Flags().IntP("workers", "w", defaults.Fetch.Workers, "Number of concurrent downloads")
	rootCmd.Flags().Int("queue-size", defaults.Fetch.QueueSize, "Download queue capacity (0=unbounded)")
	rootCmd.Flags().String("mode", defaults.Fetch.Mode, "Download scheduling: 'pool' or 'batch'")
	rootCmd.Flags().Duration("batch-wait", defaults.Fetch.BatchWait, "Pause between batches in batch mode")
	rootCmd.Flags().Int("chunk-size", defaults.Fetch.ChunkSize, "Download copy buffer size in bytes")

	// HTTP flags
	rootCmd.Flags().DurationP("timeout", "t", defaults.HTTP.Timeout, "Page request timeout")
	rootCmd.Flags().Duration("download-timeout", defaults.HTTP.DownloadTimeout, "Archive download timeout (0=none)")
	rootCmd.Flags().StringP("user-agent", "u", defaults.HTTP.UserAgent, "User-Agent used when not randomized")
	rootCmd.Flags().Bool("random-user-agent", defaults.HTTP.RandomUserAgent, "Pick a browser User-Agent per request")
	rootCmd.Flags().String("proxy", defaults.HTTP.Proxy, "Proxy URL for every request")
	rootCmd.Flags().StringArrayP("header", "H", nil, "Custom HTTP headers in 'Name: Value' format (use multiple times for multiple headers)")

	// Logging flags
	rootCmd.Flags().String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-file", defaults.Log.File, "Write JSON logs to this file (rotated)")

	bindFlags()

	rootCmd.AddCommand(historyCmd)
}

// bindFlags ties every root flag to its viper key
func bindFlags() {
	for _, bind := range rootBindings {
		flag := rootCmd.Flags().Lookup(bind.flagName)
		if flag == nil {
			flag = rootCmd.PersistentFlags().Lookup(bind.flagName)
		}
		if err := viper.BindPFlag(bind.viperKey, flag); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig loads the dotenv file, then reads in config file and ENV variables if set.
func initConfig() {
	// A missing .env is normal
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("packfetch")
	}

	viper.SetEnvPrefix("PF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	for _, key := range envOnlyKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flag := cmd.Flags().Lookup("header"); flag != nil {
		headers, _ := cmd.Flags().GetStringArray("header")
		parsed, err := parseHeaders(headers)
		if err != nil {
			return nil, err
		}
		if len(parsed) > 0 && cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = make(map[string]string, len(parsed))
		}
		for name, value := range parsed {
			cfg.HTTP.Headers[name] = value
		}
	}

	if !cmd.Flags().Changed("user-agent") && cfg.HTTP.UserAgent == config.DefaultConfig().HTTP.UserAgent {
		cfg.HTTP.UserAgent = generateUserAgent()
	}

	return cfg, nil
}

// parseHeaders parses "Name: Value" pairs
func parseHeaders(headers []string) (map[string]string, error) {
	out := make(map[string]string, len(headers))
	for _, header := range headers {
		colon := strings.Index(header, ":")
		if colon <= 0 {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: Value'", header)
		}

		name := strings.TrimSpace(header[:colon])
		value := strings.TrimSpace(header[colon+1:])
		if name == "" || value == "" {
			return nil, fmt.Errorf("invalid header %q: empty name or value", header)
		}
		out[name] = value
	}
	return out, nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("packfetch/%s", version)
	}
	return "packfetch/dev"
}

func showCurrentConfig(out io.Writer, cfg *config.Config) error {
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

	fmt.Fprintf(out, "# Current packfetch configuration\n")
	fmt.Fprintf(out, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(out, "# Configuration file search paths: ./packfetch.yml\n")
	fmt.Fprintf(out, "# Environment variables prefix: PF_\n\n")

	_, _ = out.Write(yamlData)

	fmt.Fprintf(out, "\n# Configuration source priority:\n")
	fmt.Fprintf(out, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(out, "# 2. Environment variables (PF_ prefix, .env supported)\n")
	fmt.Fprintf(out, "# 3. Configuration file (packfetch.yml)\n")
	fmt.Fprintf(out, "# 4. Default values (lowest priority)\n")

	return nil
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := logging.SetDefault(logging.FromAppConfig(cfg.Log)); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()
	console := newConsole(in, out)

	if !cmd.Flags().Changed("dest") && !viper.IsSet("destination") && console.interactive {
		dest, err := console.promptDestination(cfg.Destination)
		if err != nil {
			return err
		}
		cfg.Destination = dest
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApp(cfg, console)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.runner.Run(ctx)
	if err != nil {
		return err
	}

	if summary.RunID != "" {
		fmt.Fprintf(out, "Run recorded as %s\n", summary.RunID)
	}
	return nil
}
