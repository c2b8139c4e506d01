package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/config"
	"github.com/TobiSchelling/irevents/internal/logging"
	"github.com/TobiSchelling/irevents/internal/pipeline"
	"github.com/TobiSchelling/irevents/internal/report"
	"github.com/TobiSchelling/irevents/internal/server"
	"github.com/TobiSchelling/irevents/internal/ticker"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "irevents",
	Short:   "Investor relations event finder",
	Long:    "irevents finds each company's investor relations page and extracts its scheduled events: earnings calls, conferences and shareholder meetings.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tickersCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("irevents", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/irevents/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set SERP_API_KEY and the extraction provider's key in the environment or a .env file.")
		return nil
	},
}

// --- tickers command ---

var tickersCmd = &cobra.Command{
	Use:   "tickers <text>",
	Short: "Print the ticker symbols found in the input",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := pipeline.NewNormalizer(cmd.Context(), cfg, logger)
		tickers, err := n.Normalize(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		for _, t := range tickers {
			fmt.Println(t)
		}
		return nil
	},
}

// --- events command ---

var eventsFormat string

var eventsCmd = &cobra.Command{
	Use:   "events <tickers or text>",
	Short: "Find and extract IR events for the given tickers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pipeline.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		outcomes, err := p.Run(cmd.Context(), strings.Join(args, " "))
		if errors.Is(err, ticker.ErrEmptyInput) {
			return fmt.Errorf("no ticker symbols found in %q", strings.Join(args, " "))
		}
		if err != nil {
			return err
		}

		switch eventsFormat {
		case "json":
			data, err := report.PrettyJSON(outcomes)
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
		case "markdown", "md":
			fmt.Print(report.Markdown(outcomes))
		default:
			report.Table(os.Stdout, outcomes)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsFormat, "format", "f", "table", "Output format: table, markdown or json")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pipeline.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), p, port, cfg.Server.RequestTimeout, logger)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
