// ABOUTME: mDNS service discovery for linkclock hosts
// ABOUTME: Advertises this host and browses for others to count peers
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service advertised by linkclock hosts
	ServiceType = "_linkclock._tcp"

	// Path is the websocket endpoint advertised in TXT records
	Path = "/linkclock"

	browseTimeout = 3 * time.Second
	peerTTL       = 10 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int

	// InstanceID identifies this host so it is not counted as its own peer
	InstanceID string

	// OnPeerCount is called after every browse round with the number of
	// other hosts seen recently
	OnPeerCount func(n int)
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	hosts  chan *HostInfo

	mu   sync.Mutex
	seen map[string]time.Time
}

// HostInfo describes a discovered host
type HostInfo struct {
	ID   string
	Name string
	Host string
	Port int
}

// Addr returns host:port
func (h *HostInfo) Addr() string {
	return net.JoinHostPort(h.Host, fmt.Sprintf("%d", h.Port))
}

func (h *HostInfo) key() string {
	if h.ID != "" {
		return h.ID
	}
	return h.Addr()
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		hosts:  make(chan *HostInfo, 10),
		seen:   make(map[string]time.Time),
	}
}

// Advertise advertises this host via mDNS
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	txt := []string{"path=" + Path}
	if m.config.InstanceID != "" {
		txt = append(txt, "id="+m.config.InstanceID)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txt,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for linkclock hosts until Stop
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for hosts
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		collected := make(chan struct{})

		go func() {
			defer close(collected)
			for entry := range entries {
				m.handleEntry(entry)
			}
		}()

		params := &mdns.QueryParam{
			Service:             ServiceType,
			Domain:              "local",
			Timeout:             browseTimeout,
			Entries:             entries,
			WantUnicastResponse: false,
		}

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-collected

		if m.config.OnPeerCount != nil {
			m.config.OnPeerCount(m.PeerCount())
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// handleEntry records a browse result and forwards new hosts
func (m *Manager) handleEntry(entry *mdns.ServiceEntry) {
	if entry.AddrV4 == nil {
		return
	}

	info := &HostInfo{
		ID:   txtValue(entry.InfoFields, "id"),
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}

	if !m.record(info, time.Now()) {
		return
	}

	log.Printf("Discovered host: %s at %s", info.Name, info.Addr())

	select {
	case m.hosts <- info:
	case <-m.ctx.Done():
	default:
		// nobody is waiting for hosts; peer counting still works
	}
}

// record notes a sighting and reports whether the host is new.
// Our own advertisement is ignored.
func (m *Manager) record(info *HostInfo, now time.Time) bool {
	key := info.key()
	if m.config.InstanceID != "" && key == m.config.InstanceID {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	last, known := m.seen[key]
	m.seen[key] = now
	return !known || now.Sub(last) > peerTTL
}

// Forget drops a host so the next browse round that sees it sends it on
// Hosts() again
func (m *Manager) Forget(info *HostInfo) {
	m.mu.Lock()
	delete(m.seen, info.key())
	m.mu.Unlock()
}

// PeerCount returns how many other hosts were seen within the TTL
func (m *Manager) PeerCount() int {
	return m.peerCountAt(time.Now())
}

func (m *Manager) peerCountAt(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, last := range m.seen {
		if now.Sub(last) > peerTTL {
			delete(m.seen, key)
			continue
		}
		n++
	}
	return n
}

// Hosts returns the channel of discovered hosts
func (m *Manager) Hosts() <-chan *HostInfo {
	return m.hosts
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

func txtValue(fields []string, key string) string {
	prefix := key + "="
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) {
			return strings.TrimPrefix(f, prefix)
		}
	}
	return ""
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
