package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	amidi "go-annotate/midi"
	"go-annotate/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		listPorts()
	case "poll":
		pollDevices()
	case "remote":
		err = remote(arg(2))
	case "beep":
		err = beep(arg(2))
	case "dump":
		err = dump(arg(2))
	case "sections":
		err = sections(arg(2), arg(3))
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func arg(i int) string {
	if i < len(os.Args) {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("MIDI probe for go-annotate")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                   - List all MIDI ports")
	fmt.Println("  poll                   - Watch output ports come and go")
	fmt.Println("  remote PORT            - Print the commands an input port sends")
	fmt.Println("  beep [PORT]            - Play a C major arpeggio on an output port")
	fmt.Println("  dump FILE              - Print the parsed notes of a MIDI file")
	fmt.Println("  sections STAMPS TOTAL  - Print the structure sections of a prediction")
}

func listPorts() {
	fmt.Println("=== MIDI Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: midi.GetInPorts(), outs: midi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		fmt.Println("Inputs:")
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("Outputs:")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI driver did not answer.")
	}
}

func pollDevices() {
	fmt.Println("Watching output ports. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dm := amidi.NewDeviceManager()
	go dm.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-dm.Events():
			if !ok {
				return
			}
			state := "connected"
			if ev.Type == amidi.DeviceDisconnected {
				state = "disconnected"
			}
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), state, ev.Port)
		}
	}
}

func remote(port string) error {
	if port == "" {
		return fmt.Errorf("remote needs an input port name")
	}
	r, err := amidi.NewRemote(port, amidi.DefaultBindings)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-r.Commands():
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), c)
		}
	}
}

func beep(port string) error {
	dm := amidi.NewDeviceManager()
	dm.Scan()
	if port == "" {
		ports := dm.Ports()
		if len(ports) == 0 {
			return fmt.Errorf("no output ports")
		}
		port = ports[0]
	}
	fmt.Printf("Playing on %s\n", port)

	sink, err := amidi.NewOutputSink(dm, port, 0)
	if err != nil {
		return err
	}
	for _, pitch := range []uint8{60, 64, 67, 72} {
		if err := sink.TriggerNote(pitch, 300*time.Millisecond, 0.8, 1); err != nil {
			return err
		}
		time.Sleep(350 * time.Millisecond)
	}
	return sink.Close()
}

func dump(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	piece, err := amidi.Parse(data)
	if err != nil {
		return err
	}

	lo, hi := piece.PitchRange()
	fmt.Printf("%s: %d notes, %.3fs, pitches %d-%d\n", path, piece.NoteCount(), piece.TotalDuration, lo, hi)
	for i, t := range piece.Tracks {
		fmt.Printf("  track %d %q: %d notes\n", i, t.Name, len(t.Notes))
	}

	events := amidi.Flatten(piece.Tracks)
	for i, n := range events {
		if i == 40 {
			fmt.Printf("  ... %d more\n", len(events)-i)
			break
		}
		fmt.Printf("  %8.3f  +%.3f  pitch %3d  vel %3d\n", n.Start, n.Duration, n.Pitch, n.Velocity)
	}
	return nil
}

func sections(stamps, total string) error {
	secs, err := strconv.ParseFloat(total, 64)
	if err != nil {
		return fmt.Errorf("total: %w", err)
	}
	for _, s := range store.Sections(store.ParseTimestamps(stamps), secs) {
		fmt.Printf("  %s  %7.3f - %7.3f\n", s.Label, s.Start, s.End)
	}
	return nil
}
