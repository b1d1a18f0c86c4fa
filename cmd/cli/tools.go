package main

import (
	"fmt"

	"github.com/ashutoshrp06/friday/internal/tools"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools",
	Long: `List the tools the model can call while it streams.

Each tool is invoked with a <tool_NAME> block in the model's output.
Descriptions and parameters can be overridden in the tool definitions file
(tools.definitions_path).

Examples:
  friday tools           # List all tools
  friday tools --verbose # Show parameters`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools()
	},
}

func runTools() error {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	toolStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	descStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#9CA3AF"))

	paramStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#06B6D4"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// listing needs no backend connection
	registry, err := tools.BuildRegistry(tools.SearchTools(tools.SearchConfig{}), cfg.Tools.DefinitionsPath)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Available Tools"))
	fmt.Println()

	infos := registry.ListTools()
	for _, info := range infos {
		fmt.Printf("  %s\n", toolStyle.Render("tool_"+info.Name))
		fmt.Printf("    %s\n", descStyle.Render(info.Description))

		if verbose && len(info.Parameters) > 0 {
			fmt.Println("    Parameters:")
			for _, p := range info.Parameters {
				req := ""
				if p.Required {
					req = " (required)"
				}
				fmt.Printf("      %s%s\n", paramStyle.Render(p.Name), req)
				if p.Description != "" {
					fmt.Printf("        %s\n", descStyle.Render(p.Description))
				}
			}
		}
		fmt.Println()
	}

	fmt.Println(descStyle.Render(fmt.Sprintf("  Total: %d tools available", len(infos))))
	if !verbose {
		fmt.Println(descStyle.Render("  Use --verbose for parameter details"))
	}
	return nil
}
