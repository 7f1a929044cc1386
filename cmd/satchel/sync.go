package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload queued local changes",
	Long: `Push drains the mutation queue for every entity type without pulling
server state. Operations that fail to upload stay queued for the next
attempt.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		// Explicit network command, so assume reachable until proven
		// otherwise.
		a.State.SetOnline(true)
		a.ProcessAll(ctx)

		remaining := 0
		for _, entity := range entityNames() {
			n, err := a.State.PendingCount(ctx, entity)
			if err != nil {
				fatal("failed to read queue depth: %v", err)
			}
			remaining += n
		}
		if remaining > 0 {
			fmt.Printf("Push finished with %d operation(s) still queued.\n", remaining)
			return
		}
		fmt.Println("All queued changes uploaded.")
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Full two-way sync with the server",
	Long: `Sync drains the mutation queue, pulls the server copy of every
collection, and merges it with local state. Newer writes win; deletions
win over concurrent edits.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		a.State.SetOnline(true)
		a.SyncAll(ctx)

		fmt.Printf("Synced: %d task(s), %d note(s), %d session(s), %d blocked site(s).\n",
			a.TaskBinding.Live().Len(),
			a.NoteBinding.Live().Len(),
			a.SessionBinding.Live().Len(),
			a.BlocklistBinding.Live().Len())
	},
}

func init() {
	rootCmd.AddCommand(pushCmd, syncCmd)
}
