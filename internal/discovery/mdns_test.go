// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager creation, peer bookkeeping and TXT parsing
package discovery

import (
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Test Host",
		Port:        8928,
		InstanceID:  "self",
	})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.PeerCount() != 0 {
		t.Errorf("expected no peers initially, got %d", mgr.PeerCount())
	}
}

func TestRecordIgnoresSelf(t *testing.T) {
	mgr := NewManager(Config{InstanceID: "self"})
	now := time.Now()

	if mgr.record(&HostInfo{ID: "self", Host: "10.0.0.1", Port: 1}, now) {
		t.Error("expected own advertisement to be ignored")
	}
	if mgr.peerCountAt(now) != 0 {
		t.Errorf("expected 0 peers, got %d", mgr.peerCountAt(now))
	}
}

func TestRecordCountsDistinctPeers(t *testing.T) {
	mgr := NewManager(Config{InstanceID: "self"})
	now := time.Now()

	if !mgr.record(&HostInfo{ID: "a", Host: "10.0.0.2", Port: 1}, now) {
		t.Error("expected first sighting of a to be new")
	}
	if mgr.record(&HostInfo{ID: "a", Host: "10.0.0.2", Port: 1}, now.Add(time.Second)) {
		t.Error("expected repeat sighting of a to not be new")
	}
	mgr.record(&HostInfo{Host: "10.0.0.3", Port: 2}, now)

	if got := mgr.peerCountAt(now.Add(time.Second)); got != 2 {
		t.Errorf("expected 2 peers, got %d", got)
	}
}

func TestForgottenHostIsNewAgain(t *testing.T) {
	mgr := NewManager(Config{InstanceID: "self"})
	start := time.Now()
	host := &HostInfo{ID: "a", Host: "10.0.0.2", Port: 1}

	forwarded := 0
	for i := 0; i < 30; i++ {
		if mgr.record(host, start.Add(time.Duration(i)*4*time.Second)) {
			forwarded++
		}
		if i == 9 {
			mgr.Forget(host)
		}
	}

	if forwarded != 2 {
		t.Errorf("expected host to be new on the first round and after Forget, got %d", forwarded)
	}
}

func TestPeersExpire(t *testing.T) {
	mgr := NewManager(Config{})
	now := time.Now()

	mgr.record(&HostInfo{ID: "a", Host: "10.0.0.2", Port: 1}, now)

	if got := mgr.peerCountAt(now.Add(peerTTL + time.Second)); got != 0 {
		t.Errorf("expected expired peer to be dropped, got %d", got)
	}
}

func TestTxtValue(t *testing.T) {
	fields := []string{"path=/linkclock", "id=abc"}

	if got := txtValue(fields, "id"); got != "abc" {
		t.Errorf("expected id abc, got %q", got)
	}
	if got := txtValue(fields, "missing"); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestHostInfoAddr(t *testing.T) {
	h := &HostInfo{Host: "192.168.1.5", Port: 8928}
	if h.Addr() != "192.168.1.5:8928" {
		t.Errorf("unexpected addr %s", h.Addr())
	}
}
