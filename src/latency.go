package pwar

import (
	"sync"
	"time"
)

// flushInterval is the wall-clock period at which the latency manager
// copies its rolling accumulator into the snapshot consulted by the
// control API and zeroes the accumulator (§3, §4.3).
const flushInterval = 2 * time.Second

// window accumulates min/max/avg/total/count for one rolling signal.
type window struct {
	min, max, total float64
	count           uint64
}

func (w *window) add(v float64) {
	if w.count == 0 {
		w.min = v
		w.max = v
	} else {
		if v < w.min {
			w.min = v
		}
		if v > w.max {
			w.max = v
		}
	}
	w.total += v
	w.count++
}

func (w *window) avg() float64 {
	if w.count == 0 {
		return 0
	}
	return w.total / float64(w.count)
}

func (w *window) snapshot() Stat {
	if w.count == 0 {
		return Stat{}
	}
	return Stat{Min: w.min, Max: w.max, Avg: w.avg()}
}

// Stat is a min/avg/max triple in milliseconds, as returned to the control
// API. A zero-count window yields a zero Stat.
type Stat struct {
	Min, Avg, Max float64
}

// Metrics is the two-second snapshot returned by GetCurrentMetrics.
type Metrics struct {
	RTT         Stat
	AudioProc   Stat
	PeerJitter  Stat
	LocalJitter Stat
	RingFillMs  Stat
	Xruns       uint64
}

// LatencyManager aggregates the four wire timestamps and the ring-buffer
// fill level into rolling min/avg/max statistics, flushed to a consulted
// snapshot every two seconds (§3, §4.3).
//
// It is written only by the receiver task and read only by the control
// thread (§5); a single mutex guards both the accumulator and the
// snapshot, which is cheap since neither side is on a hot per-sample path.
type LatencyManager struct {
	mu sync.Mutex

	sampleRate       int
	bufferSize       int
	backendLatencyMs float64

	rtt         window
	audioProc   window
	peerJitter  window
	localJitter window
	ringFill    window

	havePrevT2 bool
	prevT2     int64
	havePrevT4 bool
	prevT4     int64

	xruns uint64

	lastFlush time.Time
	current   Metrics
}

// NewLatencyManager constructs an uninitialized manager; call Init before
// use.
func NewLatencyManager() *LatencyManager {
	return &LatencyManager{}
}

// Init records the expected inter-callback interval (buffer_size /
// sample_rate) for reference and resets the accumulator.
func (l *LatencyManager) Init(sampleRate, bufferSize int, backendLatencyMs float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sampleRate = sampleRate
	l.bufferSize = bufferSize
	l.backendLatencyMs = backendLatencyMs
	l.rtt = window{}
	l.audioProc = window{}
	l.peerJitter = window{}
	l.localJitter = window{}
	l.ringFill = window{}
	l.havePrevT2 = false
	l.havePrevT4 = false
	l.xruns = 0
	l.lastFlush = time.Now()
	l.current = Metrics{}
}

// clockBase anchors TimestampNow; time.Since measures from it on Go's
// monotonic clock.
var clockBase = time.Now()

// TimestampNow returns a monotonic nanosecond reading, the clock source
// used for every wire timestamp.
func TimestampNow() int64 {
	return int64(time.Since(clockBase))
}

// ExpectedIntervalMs returns the nominal inter-callback interval derived at
// Init, in milliseconds.
func (l *LatencyManager) ExpectedIntervalMs() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sampleRate == 0 {
		return 0
	}
	return float64(l.bufferSize) / float64(l.sampleRate) * 1000
}

// ProcessPacket is called by the receiver for every valid reply packet. It
// stamps t4, computes the round-trip time, the peer's audio-processing
// time, and both sides' inter-arrival jitter, and folds all four into the
// rolling windows. Negative rtt/audio_proc values (which would indicate a
// clock fault, not a real measurement) are dropped rather than recorded.
func (l *LatencyManager) ProcessPacket(pkt *Packet) {
	t4 := TimestampNow()
	pkt.T4LocalRecv = t4

	l.mu.Lock()
	defer l.mu.Unlock()

	rtt := t4 - pkt.T1LocalSend
	audioProc := pkt.T3RemoteSend - pkt.T2RemoteRecv

	if rtt >= 0 {
		l.rtt.add(float64(rtt) / 1e6)
	}
	if audioProc >= 0 {
		l.audioProc.add(float64(audioProc) / 1e6)
	}

	if l.havePrevT2 {
		l.peerJitter.add(float64(pkt.T2RemoteRecv-l.prevT2) / 1e6)
	}
	l.prevT2 = pkt.T2RemoteRecv
	l.havePrevT2 = true

	if l.havePrevT4 {
		l.localJitter.add(float64(t4-l.prevT4) / 1e6)
	}
	l.prevT4 = t4
	l.havePrevT4 = true

	l.maybeFlushLocked()
}

// ReportRingBufferFill records the current ring-buffer fill level, called
// after every successful push.
func (l *LatencyManager) ReportRingBufferFill(frames int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sampleRate > 0 {
		l.ringFill.add(float64(frames) / float64(l.sampleRate) * 1000)
	}

	l.maybeFlushLocked()
}

// AddXrun increments the manager's own xrun counter, reported as
// Metrics.Xruns. Session.GetLatencyMetrics adds the backend's xruns and
// the ring-buffer underruns on top of it, so both count as xruns from the
// control API's point of view.
func (l *LatencyManager) AddXrun() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.xruns++
}

// maybeFlushLocked copies the accumulator into the snapshot and resets it
// if flushInterval has elapsed. Callers must hold l.mu.
func (l *LatencyManager) maybeFlushLocked() {
	now := time.Now()
	if now.Sub(l.lastFlush) < flushInterval {
		return
	}

	l.current = Metrics{
		RTT:         l.rtt.snapshot(),
		AudioProc:   l.audioProc.snapshot(),
		PeerJitter:  l.peerJitter.snapshot(),
		LocalJitter: l.localJitter.snapshot(),
		RingFillMs:  l.ringFill.snapshot(),
		Xruns:       l.xruns,
	}

	l.rtt = window{}
	l.audioProc = window{}
	l.peerJitter = window{}
	l.localJitter = window{}
	l.ringFill = window{}
	l.lastFlush = now
}

// GetCurrentMetrics returns the last two-second snapshot, all durations in
// milliseconds.
func (l *LatencyManager) GetCurrentMetrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	// The snapshot always reflects the most recently completed window;
	// force a flush here too so a caller polling less often than every
	// two seconds still sees fresh numbers rather than a stale window.
	l.maybeFlushLocked()
	m := l.current
	m.Xruns = l.xruns
	return m
}
