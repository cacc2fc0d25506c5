package midi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-annotate/debug"
	"go-annotate/tags"
)

// DeviceEvent is emitted when an output port appears or goes away
type DeviceEvent struct {
	Type DeviceEventType
	Port string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// SendFunc writes one message to an open port
type SendFunc func(gomidi.Message) error

// DeviceManager tracks MIDI output ports as they are plugged and unplugged
// and hands out lazily opened senders for them.
type DeviceManager struct {
	ports    map[string]drivers.Out
	senders  map[string]SendFunc
	wanted   map[string]bool // opened once, reopened when plugged back in
	mu       sync.RWMutex
	events   chan DeviceEvent
	pollRate time.Duration

	// listPorts is swapped in tests
	listPorts func() []drivers.Out
}

// NewDeviceManager creates a new device manager
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		ports:     make(map[string]drivers.Out),
		senders:   make(map[string]SendFunc),
		wanted:    make(map[string]bool),
		events:    make(chan DeviceEvent, 16),
		pollRate:  time.Second,
		listPorts: func() []drivers.Out { return gomidi.GetOutPorts() },
	}
}

// Events returns a channel of port connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Ports returns the names of the currently visible output ports
func (dm *DeviceManager) Ports() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	names := make([]string, 0, len(dm.ports))
	for name := range dm.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.Scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.Scan()
		}
	}
}

// Scan refreshes the port list once
func (dm *DeviceManager) Scan() {
	// CoreMIDI can hang while enumerating
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- dm.listPorts()
	}()

	var outPorts []drivers.Out
	select {
	case outPorts = <-ch:
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return
	}

	seen := make(map[string]drivers.Out, len(outPorts))
	for _, op := range outPorts {
		seen[op.String()] = op
	}

	dm.mu.Lock()
	var added, removed []string
	for name, op := range seen {
		if _, ok := dm.ports[name]; !ok {
			added = append(added, name)
		}
		dm.ports[name] = op
	}
	for name := range dm.ports {
		if _, ok := seen[name]; !ok {
			removed = append(removed, name)
			delete(dm.ports, name)
			delete(dm.senders, name)
		}
	}
	var reopen []string
	for _, name := range added {
		if dm.wanted[name] {
			reopen = append(reopen, name)
		}
	}
	dm.mu.Unlock()

	sort.Strings(added)
	sort.Strings(removed)
	for _, name := range added {
		debug.Log("midi", "port connected: %s", name)
		dm.emit(DeviceEvent{Type: DeviceConnected, Port: name})
	}
	for _, name := range reopen {
		if _, err := dm.Sender(name); err != nil {
			debug.Log("midi", "reopen %s: %v", name, err)
		}
	}
	for _, name := range removed {
		debug.Log("midi", "port disconnected: %s", name)
		dm.emit(DeviceEvent{Type: DeviceDisconnected, Port: name})
	}
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
	}
}

// Sender returns a sender for the named port, opening it on first use
func (dm *DeviceManager) Sender(port string) (SendFunc, error) {
	dm.mu.RLock()
	if send, ok := dm.senders[port]; ok {
		dm.mu.RUnlock()
		return send, nil
	}
	dm.mu.RUnlock()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	// Double-check after acquiring write lock
	if send, ok := dm.senders[port]; ok {
		return send, nil
	}

	op, ok := dm.ports[port]
	if !ok {
		return nil, fault.New("port not connected",
			fmsg.WithDesc("port not connected: "+port, "MIDI output "+port+" is not connected"),
			ftag.With(tags.NotFound))
	}
	send, err := gomidi.SendTo(op)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("open port "+port, "Could not open MIDI output "+port),
			ftag.With(tags.IO))
	}
	dm.senders[port] = send
	dm.wanted[port] = true
	return send, nil
}

// openSender returns the sender for port if it is already open. It never
// opens a port.
func (dm *DeviceManager) openSender(port string) (SendFunc, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	send, ok := dm.senders[port]
	return send, ok
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, op := range dm.ports {
		if op.IsOpen() {
			op.Close()
		}
	}
	dm.ports = make(map[string]drivers.Out)
	dm.senders = make(map[string]SendFunc)
}
