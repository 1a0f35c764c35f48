// ABOUTME: Monitor application orchestration
// ABOUTME: Coordinates discovery, connection, clock sync and the TUI
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/client"
	"github.com/Resonate-Protocol/linkclock-go/internal/discovery"
	"github.com/Resonate-Protocol/linkclock-go/internal/protocol"
	"github.com/Resonate-Protocol/linkclock-go/internal/sync"
	"github.com/Resonate-Protocol/linkclock-go/internal/ui"
	"github.com/Resonate-Protocol/linkclock-go/internal/version"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

const (
	syncTimeout    = 2 * time.Second
	reconnectDelay = 2 * time.Second
)

// Config holds monitor configuration
type Config struct {
	ServerAddr   string
	Name         string
	StepsPerBeat float64
	SyncInterval time.Duration
}

// Sink receives display messages; *tea.Program satisfies it
type Sink interface {
	Send(msg tea.Msg)
}

// Monitor represents the main monitor application
type Monitor struct {
	config    Config
	clientID  string
	control   *ui.Control
	sink      Sink
	tuiProg   *tea.Program
	discovery *discovery.Manager

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a monitor that displays in a TUI
func New(config Config) *Monitor {
	control := ui.NewControl()
	prog := ui.Run(control, config.StepsPerBeat)

	m := newMonitor(config, prog, control)
	m.tuiProg = prog
	return m
}

func newMonitor(config Config, sink Sink, control *ui.Control) *Monitor {
	if config.SyncInterval <= 0 {
		config.SyncInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		config:   config,
		clientID: uuid.New().String(),
		control:  control,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the monitor until the user quits or Stop is called
func (m *Monitor) Start() error {
	if m.tuiProg != nil {
		go func() {
			if _, err := m.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			m.cancel()
		}()
	}

	go m.handleQuit()

	if m.config.ServerAddr == "" {
		m.discovery = discovery.NewManager(discovery.Config{
			ServiceName: m.config.Name,
			InstanceID:  m.clientID,
		})

		if err := m.discovery.Browse(); err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		go m.handleDiscovery()
	} else {
		go m.run(m.config.ServerAddr)
	}

	<-m.ctx.Done()
	return nil
}

// handleQuit stops the monitor when the TUI asks to quit
func (m *Monitor) handleQuit() {
	select {
	case <-m.control.Quit:
		m.Stop()
	case <-m.ctx.Done():
	}
}

// handleDiscovery connects to hosts as they are found
func (m *Monitor) handleDiscovery() {
	m.followHosts(m.discovery.Hosts(), m.discovery.Forget)
}

// followHosts runs a session with each host received on hosts. A host is
// forgotten once its session ends so a later browse round can hand it back.
func (m *Monitor) followHosts(hosts <-chan *discovery.HostInfo, forget func(*discovery.HostInfo)) {
	for {
		select {
		case host := <-hosts:
			log.Printf("Attempting connection to %s (%s)", host.Name, host.Addr())
			if err := m.session(host.Addr()); err != nil {
				log.Printf("Connection failed: %v", err)
			}
			forget(host)

		case <-m.ctx.Done():
			return
		}
	}
}

// run keeps a session with addr alive, reconnecting after drops
func (m *Monitor) run(addr string) {
	for {
		if err := m.session(addr); err != nil {
			log.Printf("Connection failed: %v", err)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// session connects to addr and pumps events until the connection ends
func (m *Monitor) session(addr string) error {
	c := client.NewClient(client.Config{
		ServerAddr: addr,
		ClientID:   m.clientID,
		Name:       m.config.Name,
		Version:    version.ProtocolVersion,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
	})

	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Close()

	log.Printf("Connected to server: %s", addr)

	connected := true
	m.sink.Send(ui.StatusMsg{Connected: &connected, ServerName: c.Server().Name})

	clockSync := sync.NewClockSync()
	go m.clockSyncLoop(c, clockSync)

	m.pump(c, clockSync)

	disconnected := false
	m.sink.Send(ui.StatusMsg{Connected: &disconnected})
	return nil
}

// pump forwards client events to the display and commands to the host
func (m *Monitor) pump(c *client.Client, clockSync *sync.ClockSync) {
	for {
		select {
		case beat := <-c.Beats:
			m.sink.Send(ui.BeatMsg{
				Beat:    beat.Beat,
				Phase:   beat.Phase,
				Latency: latency(clockSync, beat.HostTime),
			})

		case step := <-c.Steps:
			m.sink.Send(ui.StepMsg{Step: step.Step})

		case state := <-c.States:
			m.sink.Send(ui.SessionMsg(state))

		case serr := <-c.Errors:
			m.sink.Send(ui.ErrorMsg{Message: serr.Message})

		case cmd := <-m.control.Commands:
			if err := c.SendCommand(cmd.Command, cmd.Args...); err != nil {
				log.Printf("Failed to send %s: %v", cmd.Command, err)
			}

		case <-c.Done():
			return

		case <-m.ctx.Done():
			return
		}
	}
}

// latency is how long ago hostTime was on the local clock
func latency(clockSync *sync.ClockSync, hostTime int64) time.Duration {
	if !clockSync.Synced() {
		return 0
	}
	local := clockSync.ServerToLocal(hostTime)
	return time.Duration(clockSync.LocalNow()-local) * time.Microsecond
}

// clockSyncLoop continuously syncs clock
func (m *Monitor) clockSyncLoop(c *client.Client, clockSync *sync.ClockSync) {
	ticker := time.NewTicker(m.config.SyncInterval)
	defer ticker.Stop()

	for {
		m.syncOnce(c, clockSync)

		select {
		case <-ticker.C:
		case <-c.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// syncOnce performs one time exchange and reports the result
func (m *Monitor) syncOnce(c *client.Client, clockSync *sync.ClockSync) {
	t1 := clockSync.LocalNow()
	if err := c.SendTimeSync(t1); err != nil {
		return
	}

	select {
	case resp := <-c.TimeSyncResp:
		t4 := clockSync.LocalNow()
		clockSync.ProcessSyncResponse(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)

	case <-time.After(syncTimeout):
		log.Printf("Time sync timeout")

	case <-c.Done():
		return
	}

	quality := clockSync.CheckQuality()
	offset, rtt, _ := clockSync.GetStats()
	m.sink.Send(ui.StatusMsg{SyncOffset: offset, SyncRTT: rtt, SyncQuality: &quality})
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	m.cancel()

	if m.discovery != nil {
		m.discovery.Stop()
	}

	if m.tuiProg != nil {
		m.tuiProg.Quit()
	}
}
