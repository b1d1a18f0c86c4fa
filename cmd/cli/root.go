package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ashutoshrp06/friday/internal/agent"
	"github.com/ashutoshrp06/friday/internal/config"
	"github.com/ashutoshrp06/friday/internal/ui"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath  string
	verbose     bool
	interactive bool
	sessionID   string
)

var rootCmd = &cobra.Command{
	Use:   "friday [query]",
	Short: "Streaming research assistant over your documents",
	Long: ui.Banner() + `

  Ask questions about your indexed documents. The model reasons in the open,
  calls search tools while it streams, and presents a final answer.

Usage:
  friday "How does the auth service refresh tokens?"
  friday --it
  friday --it --session 3f2a...   # resume a stored session`,

	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if interactive {
			return runInteractive()
		}
		if len(args) > 0 {
			return runOneShot(cmd.Context(), strings.Join(args, " "))
		}
		return cmd.Help()
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("friday", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&interactive, "it", false, "Start interactive mode")
	rootCmd.Flags().StringVar(&sessionID, "session", "", "Resume a stored session by id")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runInteractive() error {
	a, logger, err := initAgent()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	id, err := openSession(context.Background(), a)
	if err != nil {
		return err
	}
	return ui.Run(a, id)
}

func runOneShot(ctx context.Context, query string) error {
	a, logger, err := initAgent()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	id, err := openSession(ctx, a)
	if err != nil {
		return err
	}
	return ui.RunOneShot(ctx, a, id, query, os.Stdout)
}

// openSession resumes --session when set, otherwise starts a new session.
func openSession(ctx context.Context, a *agent.Agent) (string, error) {
	if sessionID == "" {
		return a.NewSession(), nil
	}
	n, err := a.ResumeSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, agent.ErrNoStore) {
			return "", fmt.Errorf("cannot resume %s: set storage.path in the config", sessionID)
		}
		return "", err
	}
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).
		Render(fmt.Sprintf("Resumed session %s (%d turns)", sessionID, n)))
	return sessionID, nil
}

// initAgent loads config and returns a ready agent with its logger.
func initAgent() (*agent.Agent, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	a, err := agent.New(agent.Config{
		AppConfig: cfg,
		Logger:    logger,
	})
	if err != nil {
		printConnectionHelp(cfg)
		return nil, nil, fmt.Errorf("initialize agent: %w", err)
	}

	fmt.Printf("Using model: %s\n", a.LLMInfo())
	return a, logger, nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromPaths(
		"config.local.yaml",
		"config.yaml",
	)
}

// createLogger builds a development logger for -v and a production logger
// otherwise. Logs go to stderr so they do not interleave with streamed output.
func createLogger(level string) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func printError(msg string, err error) {
	fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).
		Render(fmt.Sprintf("Error: %s: %v", msg, err)))
}

func printConnectionHelp(cfg *config.Config) {
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	cmdStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))

	fmt.Println(helpStyle.Render("Check the configured services:"))
	fmt.Println(cmdStyle.Render(fmt.Sprintf("  llm     %s (%s, %s)", cfg.LLM.Endpoint, cfg.LLM.Provider, cfg.LLM.Model)))
	fmt.Println(cmdStyle.Render(fmt.Sprintf("  qdrant  %s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)))
	fmt.Println()
	fmt.Println(helpStyle.Render("Or configure different endpoints:"))
	fmt.Println(cmdStyle.Render("  friday config --init && edit config.yaml"))
}
