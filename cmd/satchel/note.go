package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/satchel-dev/satchel/internal/entities"
	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage notes",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <body>",
	Short: "Add a note",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		pinned, _ := cmd.Flags().GetBool("pin")

		note := entities.Note{Title: title, Body: strings.Join(args, " "), Pinned: pinned}
		if err := note.Validate(); err != nil {
			fatal("%v", err)
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		stored, err := a.Notes.Create(ctx, note)
		if err != nil {
			fatal("failed to add note: %v", err)
		}
		fmt.Printf("Added note %s\n", stored.ID)
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		notes := a.NoteBinding.Items()
		if len(notes) == 0 {
			fmt.Println("No notes.")
			return
		}
		for _, n := range notes {
			pin := " "
			if n.Pinned {
				pin = "*"
			}
			body := n.Body
			if len(body) > 60 {
				body = body[:57] + "..."
			}
			if n.Title != "" {
				fmt.Printf("%s %s  %s: %s\n", pin, n.ID, n.Title, body)
			} else {
				fmt.Printf("%s %s  %s\n", pin, n.ID, body)
			}
		}
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.Notes.Delete(ctx, args[0]); err != nil {
			fatal("failed to delete note: %v", err)
		}
		fmt.Printf("Deleted note %s\n", args[0])
	},
}

func init() {
	noteAddCmd.Flags().String("title", "", "optional title")
	noteAddCmd.Flags().Bool("pin", false, "pin the note")

	noteCmd.AddCommand(noteAddCmd, noteListCmd, noteRmCmd)
	rootCmd.AddCommand(noteCmd)
}
