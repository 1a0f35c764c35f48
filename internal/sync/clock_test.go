// ABOUTME: Tests for host clock synchronization
// ABOUTME: Tests RTT calculation, offset tracking, quality and time conversion
package sync

import (
	"testing"
	"time"
)

func TestRTTCalculation(t *testing.T) {
	// 5ms total, 0.5ms spent on the host
	t1 := int64(1000000)
	t2 := int64(2000)
	t3 := int64(2500)
	t4 := int64(1005000)

	cs := NewClockSync()
	cs.ProcessSyncResponse(t1, t2, t3, t4)

	_, rtt, _ := cs.GetStats()
	if rtt != 4500 {
		t.Errorf("expected RTT 4500μs, got %dμs", rtt)
	}
}

func TestInitialOffset(t *testing.T) {
	cs := NewClockSync()
	if cs.Synced() {
		t.Error("expected not synced initially")
	}

	// host is 1s behind the client, symmetric 1ms legs
	cs.ProcessSyncResponse(2000000, 1001000, 1001000, 2002000)

	if !cs.Synced() {
		t.Error("expected synced after first response")
	}
	if got := cs.GetOffset(); got != -1000000 {
		t.Errorf("expected offset -1000000μs, got %d", got)
	}
	if _, _, q := cs.GetStats(); q != QualityGood {
		t.Errorf("expected QualityGood, got %v", q)
	}
}

func TestServerToLocal(t *testing.T) {
	cs := NewClockSync()

	if got := cs.ServerToLocal(1234); got != 1234 {
		t.Errorf("expected identity before sync, got %d", got)
	}

	cs.ProcessSyncResponse(2000000, 1001000, 1001000, 2002000)

	local := cs.ServerToLocal(1101000)
	if local < 2101000-10 || local > 2101000+10 {
		t.Errorf("expected local ~2101000, got %d", local)
	}
}

func TestServerNow(t *testing.T) {
	local := int64(5000000)
	cs := NewClockSyncWithSource(func() int64 { return local })

	if cs.ServerNow() != local {
		t.Error("expected local time before sync")
	}

	cs.ProcessSyncResponse(4998000, 999000, 999000, 5000000)

	// offset is -4000000: host reads 1000000 when the client reads 5000000
	if got := cs.ServerNow(); got < 999000 || got > 1001000 {
		t.Errorf("expected host time ~1000000, got %d", got)
	}
}

func TestQualityTracking(t *testing.T) {
	cs := NewClockSync()

	cs.ProcessSyncResponse(1000000, 1000, 1100, 1025000)
	if _, _, q := cs.GetStats(); q != QualityGood {
		t.Errorf("expected QualityGood for 25ms RTT, got %v", q)
	}

	cs.ProcessSyncResponse(2000000, 1000, 1100, 2080000)
	if _, _, q := cs.GetStats(); q != QualityDegraded {
		t.Errorf("expected QualityDegraded for 80ms RTT, got %v", q)
	}
}

func TestQualityLostAfterSilence(t *testing.T) {
	cs := NewClockSync()
	cs.ProcessSyncResponse(1000000, 1000, 1100, 1025000)

	if q := cs.CheckQuality(); q != QualityGood {
		t.Errorf("expected QualityGood initially, got %v", q)
	}

	cs.mu.Lock()
	cs.lastSync = time.Now().Add(-6 * time.Second)
	cs.mu.Unlock()

	if q := cs.CheckQuality(); q != QualityLost {
		t.Errorf("expected QualityLost after 6s, got %v", q)
	}
}

func TestHighRTTRejection(t *testing.T) {
	cs := NewClockSync()
	cs.ProcessSyncResponse(1000000, 1000, 1100, 1025000)
	offset := cs.GetOffset()

	// 250ms round trip
	cs.ProcessSyncResponse(2000000, 9000, 9100, 2250000)

	if cs.GetOffset() != offset {
		t.Error("expected offset unchanged after high RTT sample")
	}
	if cs.sampleCount != 1 {
		t.Errorf("expected sample count 1, got %d", cs.sampleCount)
	}
}

func TestQualityString(t *testing.T) {
	if QualityGood.String() != "good" || QualityDegraded.String() != "degraded" || QualityLost.String() != "lost" {
		t.Error("unexpected quality names")
	}
}

func TestConcurrentAccess(t *testing.T) {
	cs := NewClockSync()
	cs.ProcessSyncResponse(1000000, 1000, 1100, 1025000)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cs.GetStats()
				cs.CheckQuality()
				cs.ServerNow()
				cs.ServerToLocal(int64(j * 1000))
				cs.ProcessSyncResponse(
					int64(1000000+j),
					int64(1000+j),
					int64(1100+j),
					int64(1025000+j),
				)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if _, rtt, q := cs.GetStats(); rtt <= 0 || q == QualityLost {
		t.Errorf("invalid state after concurrent access: rtt=%d quality=%v", rtt, q)
	}
}
