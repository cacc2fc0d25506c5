package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-annotate/config"
	"go-annotate/debug"
)

var Version = "dev"

// Command-line configuration
var flags struct {
	config string
	debug  bool
	log    string
}

var rootCmd = &cobra.Command{
	Use:   "go-annotate",
	Short: "Review predicted musical structure on MIDI files",
	Long: `go-annotate plays MIDI files from a worklist with the predicted
structure shaded on a piano roll, and records whether the reviewer
agrees with the prediction.`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "",
		"Config file (default ~/.config/go-annotate/config.json)")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false,
		"Write debug logs")
	rootCmd.PersistentFlags().StringVarP(&flags.log, "log", "l", "",
		"Debug log path (default ~/.config/go-annotate/debug.log)")

	rootCmd.AddCommand(serveCmd, playCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if flags.config != "" {
		return config.LoadFrom(flags.config)
	}
	return config.Load()
}

// setupDebug turns on the file log when asked for by flag or config
func setupDebug(cfg *config.Config) {
	if !flags.debug && !cfg.Debug && flags.log == "" {
		return
	}
	path := flags.log
	if path == "" {
		path = debug.DefaultPath()
	}
	if err := debug.Enable(path); err != nil {
		fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
