package main

import (
	"fmt"

	ctxmgr "github.com/ashutoshrp06/friday/internal/context"
	"github.com/ashutoshrp06/friday/internal/store"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [ID]",
	Short: "List stored sessions or print one transcript",
	Long: `Without arguments, list the sessions in the transcript store, most
recently active first. With an id, print that session's transcript.

Resume a session with: friday --it --session ID`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.Path == "" {
			return fmt.Errorf("transcript store is disabled: set storage.path")
		}

		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
		idStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))

		if len(args) == 1 {
			turns, err := db.LoadTurns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("%w: %s", ctxmgr.ErrSessionNotFound, args[0])
			}
			fmt.Print(ctxmgr.FormatTurns(turns))
			return nil
		}

		sessions, err := db.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println(labelStyle.Render("No stored sessions."))
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s\n", idStyle.Render(s.ID),
				labelStyle.Render(fmt.Sprintf("%d turns, last active %s", s.Turns, s.LastActive.Format("2006-01-02 15:04"))))
		}
		return nil
	},
}
