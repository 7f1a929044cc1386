package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/satchel-dev/satchel/internal/connectivity"
	"github.com/satchel-dev/satchel/internal/inbox"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the long-lived sync process. The daemon:

- holds a websocket open to the server as the connectivity signal
- drains the mutation queue on a timer and whenever connectivity returns
- watches the inbox directory for session-*.json and blocklist-*.json
  drops from the browser extension and ingests them

Example usage:
  satchel daemon                       # default 30s sync interval
  satchel daemon --interval 2m         # slower timer
  satchel daemon --inbox ~/drops       # custom inbox directory

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		inboxDir, _ := cmd.Flags().GetString("inbox")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		logger := a.Config.Logger

		if inboxDir == "" {
			inboxDir = filepath.Join(filepath.Dir(a.Config.DBPath), "inbox")
		}
		watcher, err := inbox.New(a.Sessions, a.Blocklist, inbox.Config{Dir: inboxDir})
		if err != nil {
			fatal("failed to start inbox watcher: %v", err)
		}

		monitor := connectivity.NewMonitor(a.State, connectivity.Config{
			URL:   connectivity.WebsocketURL(a.Config.ServerURL),
			Token: a.Config.Token,
			OnOnline: func() {
				logger.Println("connectivity restored, syncing")
				a.SyncAll(context.Background())
			},
		})

		a.StartAutoSync(interval)

		go func() {
			if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("connectivity monitor stopped: %v", err)
			}
		}()
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("inbox watcher stopped: %v", err)
			}
		}()

		fmt.Printf("Satchel daemon started (sync every %s, inbox %s)\n", interval, inboxDir)
		fmt.Println("Press Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 30*time.Second, "queue drain interval")
	daemonCmd.Flags().String("inbox", "", "inbox directory for extension drops (default <db dir>/inbox)")

	rootCmd.AddCommand(daemonCmd)
}
