package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/satchel-dev/satchel/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "satchel",
	Short: "Offline-first tasks, notes, stashed sessions, and site blocklists",
	Long: `Satchel keeps your tasks, notes, stashed browser sessions, and
blocked-site lists in a local database and synchronizes them with a sync
server whenever connectivity allows.

All writes land locally first and are queued for upload; the queue survives
restarts and is drained on the next trigger (a new edit, the daemon's
timer, or connectivity coming back). Conflicts between devices resolve by
last-write-wins with delete precedence.

Configuration is read from ~/.satchel/config.yaml, SATCHEL_* environment
variables, and flags, in increasing priority.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", "", "sync server base URL")
	flags.String("token", "", "bearer token for the sync server")
	flags.String("user", "", "authenticated user id")
	flags.String("db", "", "path to the local database (default ~/.satchel/satchel.db)")
	flags.String("log-file", "", "also log to this rotating file")

	for _, key := range []string{"server", "token", "user", "db", "log-file"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("SATCHEL")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".satchel"))
	}
	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

// newLogger builds the engine logger: stderr, plus a rotating file when
// log-file is configured.
func newLogger() *log.Logger {
	var w io.Writer = os.Stderr
	if path := viper.GetString("log-file"); path != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(w, "[sync] ", log.LstdFlags)
}

func defaultDBPath() string {
	if path := viper.GetString("db"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "satchel.db"
	}
	return filepath.Join(home, ".satchel", "satchel.db")
}

// openApp assembles the application from configuration.
func openApp(ctx context.Context) (*app.App, error) {
	cfg := app.Config{
		DBPath:    defaultDBPath(),
		ServerURL: viper.GetString("server"),
		Token:     viper.GetString("token"),
		UserID:    viper.GetString("user"),
		Logger:    newLogger(),
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open satchel: %w", err)
	}
	return a, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
