package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/satchel-dev/satchel/internal/entities"
	"github.com/spf13/cobra"
)

var (
	statusTitleStyle  = lipgloss.NewStyle().Bold(true)
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and sync recency per collection",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		rows, err := a.Status(ctx)
		if err != nil {
			fatal("failed to read sync status: %v", err)
		}

		fmt.Println(statusTitleStyle.Render("Satchel sync status"))
		server := a.Config.ServerURL
		if server == "" {
			server = "not configured"
		}
		link := "offline"
		if a.State.Online() {
			link = "online"
		}
		fmt.Println(statusDimStyle.Render(fmt.Sprintf("server %s (%s)", server, link)))

		fmt.Printf("%s %s %s\n",
			statusHeaderStyle.Width(12).Render("COLLECTION"),
			statusHeaderStyle.Width(9).Render("PENDING"),
			statusHeaderStyle.Render("LAST SYNC"))

		for _, row := range rows {
			pending := statusOKStyle.Render(fmt.Sprintf("%d", row.Pending))
			if row.Pending > 0 {
				pending = statusWarnStyle.Render(fmt.Sprintf("%d", row.Pending))
			}
			last := statusDimStyle.Render("never")
			if row.LastSync != 0 {
				last = humanizeSince(time.Since(time.UnixMilli(row.LastSync)))
			}
			if row.Syncing {
				last += statusWarnStyle.Render(" (syncing)")
			}
			fmt.Printf("%-12s %-9s %s\n", row.Entity, pending, last)
		}
	},
}

func humanizeSince(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func entityNames() []string {
	return []string{
		entities.EntityTasks,
		entities.EntityNotes,
		entities.EntitySessions,
		entities.EntityBlocklist,
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
