package main

import (
	"fmt"
	"os"

	"github.com/ashutoshrp06/friday/internal/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create configuration",
	Long:  "View the effective configuration or create a default config file.",
	RunE:  runConfig,
}

var (
	configInit bool
	configShow bool
)

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Create default config file")
	configCmd.Flags().BoolVar(&configShow, "show", true, "Show current configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configInit {
		return initConfig()
	}
	if configShow {
		return showConfig()
	}
	return nil
}

func initConfig() error {
	path := configPath
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).
			Render(path + " already exists. Use --show to view it."))
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("create config: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).
		Render("Created " + path + " with default settings."))
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - LLM provider, endpoint and model")
	fmt.Println("  - Qdrant connection and collections")
	fmt.Println("  - Context window and prompt cache")
	fmt.Println("  - Session storage path")
	return nil
}

func showConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true).
		Render("Effective Configuration:\n"))

	shown := *cfg
	if shown.LLM.APIKey != "" {
		shown.LLM.APIKey = "********"
	}
	if shown.Qdrant.APIKey != "" {
		shown.Qdrant.APIKey = "********"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Println(string(data))

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).
		Render("Config sources (first match wins, FRIDAY_* variables override):"))
	fmt.Println("  1. --config PATH")
	fmt.Println("  2. ./config.local.yaml")
	fmt.Println("  3. ./config.yaml")
	return nil
}
