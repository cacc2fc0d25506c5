package main

import (
	"os"

	"github.com/spf13/cobra"

	"go-annotate/debug"
	"go-annotate/server"
)

var serveFlags struct {
	addr, csv, midi, static string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the worklist CSV and MIDI directory over HTTP",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "Listen address (default from config, :3000)")
	f.StringVar(&serveFlags.csv, "csv", "", "Worklist CSV path")
	f.StringVar(&serveFlags.midi, "midi", "", "MIDI directory")
	f.StringVar(&serveFlags.static, "static", "", "Directory served as static files")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupDebug(cfg)
	if !debug.Enabled() {
		debug.SetOutput(os.Stderr)
	}
	defer debug.Disable()

	sc := server.Config{
		Addr:      cfg.Server.Addr,
		CSVPath:   cfg.Server.CSVPath,
		MIDIDir:   cfg.Server.MIDIDir,
		StaticDir: cfg.Server.StaticDir,
	}
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{serveFlags.addr, &sc.Addr},
		{serveFlags.csv, &sc.CSVPath},
		{serveFlags.midi, &sc.MIDIDir},
		{serveFlags.static, &sc.StaticDir},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}

	ctx, stop := signalContext()
	defer stop()
	return server.New(sc).Run(ctx)
}
