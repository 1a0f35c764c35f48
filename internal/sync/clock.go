// ABOUTME: Host clock synchronization with drift compensation
// ABOUTME: Maps linkclock host time onto the monitor's local clock
package sync

import (
	"log"
	"sync"
	"time"
)

// ClockSync estimates the offset and drift between a host clock (server)
// and the local clock (client), both in microseconds.
type ClockSync struct {
	mu             sync.RWMutex
	now            func() int64 // local clock, microseconds
	offset         int64        // server - client, microseconds
	drift          float64      // dimensionless: μs/μs
	rawOffset      int64
	rtt            int64
	quality        Quality
	lastSync       time.Time
	lastSyncMicros int64 // client time when offset/drift were last updated
	sampleCount    int
	smoothingRate  float64
}

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

const (
	maxRTT      = 100000 // discard samples above 100ms round trip
	maxResidual = 50000  // discard samples 50ms off prediction
	goodRTT     = 50000
	lostAfter   = 5 * time.Second
)

// NewClockSync creates a synchronizer against the local wall clock
func NewClockSync() *ClockSync {
	return NewClockSyncWithSource(ClientMicros)
}

// NewClockSyncWithSource creates a synchronizer reading local time from now
func NewClockSyncWithSource(now func() int64) *ClockSync {
	return &ClockSync{
		now:           now,
		smoothingRate: 0.1, // 10% weight to new samples
		quality:       QualityLost,
	}
}

// ProcessSyncResponse folds one client/time exchange into the estimate.
// t1/t4 are local send/receive times, t2/t3 host receive/send times.
func (cs *ClockSync) ProcessSyncResponse(t1, t2, t3, t4 int64) {
	rtt, measuredOffset := calculateOffset(t1, t2, t3, t4)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.rtt = rtt
	cs.rawOffset = measuredOffset

	if rtt > maxRTT {
		log.Printf("Discarding sync sample: high RTT %dμs", rtt)
		return
	}

	cs.lastSync = time.Now()

	switch cs.sampleCount {
	case 0:
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = qualityFor(rtt)
		log.Printf("Initial sync: offset=%dμs, rtt=%dμs", cs.offset, rtt)
		return

	case 1:
		dt := float64(t4 - cs.lastSyncMicros)
		if dt > 0 {
			cs.drift = float64(measuredOffset-cs.offset) / dt
		}
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = qualityFor(rtt)
		return
	}

	dt := float64(t4 - cs.lastSyncMicros)
	if dt <= 0 {
		log.Printf("Discarding sync sample: non-monotonic time")
		return
	}

	predictedOffset := cs.offset + int64(cs.drift*dt)
	residual := measuredOffset - predictedOffset
	if residual > maxResidual || residual < -maxResidual {
		log.Printf("Discarding sync sample: large residual %dμs (possible clock jump)", residual)
		return
	}

	// Fixed-gain Kalman-style update of offset and drift
	cs.offset = predictedOffset + int64(cs.smoothingRate*float64(residual))
	cs.drift += cs.smoothingRate * float64(residual) / dt
	cs.lastSyncMicros = t4
	cs.sampleCount++
	cs.quality = qualityFor(rtt)
}

func qualityFor(rtt int64) Quality {
	if rtt < goodRTT {
		return QualityGood
	}
	return QualityDegraded
}

// calculateOffset computes RTT and clock offset
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)
	offset = ((t2 - t1) + (t3 - t4)) / 2
	return
}

// GetOffset returns the current offset
func (cs *ClockSync) GetOffset() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset
}

// GetStats returns sync statistics
func (cs *ClockSync) GetStats() (offset, rtt int64, quality Quality) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset, cs.rtt, cs.quality
}

// Synced reports whether at least one sample was accepted
func (cs *ClockSync) Synced() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.sampleCount > 0
}

// CheckQuality marks the sync lost when no sample arrived recently
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if time.Since(cs.lastSync) > lostAfter {
		cs.quality = QualityLost
	}
	return cs.quality
}

// ServerToLocal converts host time to local microseconds
func (cs *ClockSync) ServerToLocal(serverMicros int64) int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.sampleCount == 0 {
		return serverMicros
	}

	// server = client + offset + drift*(client - lastSync), solved for client
	numerator := float64(serverMicros) - float64(cs.offset) + cs.drift*float64(cs.lastSyncMicros)
	return int64(numerator / (1.0 + cs.drift))
}

// ServerNow estimates the host clock right now
func (cs *ClockSync) ServerNow() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	clientNow := cs.now()
	if cs.sampleCount == 0 {
		return clientNow
	}
	dt := clientNow - cs.lastSyncMicros
	return clientNow + cs.offset + int64(cs.drift*float64(dt))
}

// LocalNow returns the local clock in microseconds
func (cs *ClockSync) LocalNow() int64 {
	return cs.now()
}

// ClientMicros returns raw client Unix epoch time in microseconds
func ClientMicros() int64 {
	return time.Now().UnixMicro()
}
