package pwar

import (
	"net"
	"sync/atomic"
)

// RelayCore owns the send socket and outbound packet construction, and
// exposes exactly one function to the audio backend: ProcessCallback
// itself (§4.6). The callback never acquires any lock longer than the
// single bounded ring-buffer pop, and never blocks on I/O beyond the
// single non-blocking sendto.
type RelayCore struct {
	conn *net.UDPConn

	ring    *RingBuffer
	latency *LatencyManager

	passthroughTest bool

	pkt Packet // reused every callback; no per-callback allocation

	rcv []float32 // reused scratch for the ring-buffer pop

	packetsSent uint64

	log Logger
}

// NewRelayCore constructs a relay core bound to conn (already connected to
// the peer address), ring, and latency manager.
func NewRelayCore(conn *net.UDPConn, ring *RingBuffer, latency *LatencyManager, passthroughTest bool) *RelayCore {
	return &RelayCore{
		conn:            conn,
		ring:            ring,
		latency:         latency,
		passthroughTest: passthroughTest,
		rcv:             make([]float32, MaxChunk*Channels),
		log:             logRelay(),
	}
}

// SetPassthroughTest toggles passthrough mode at runtime (§4.8:
// passthrough_test is the one runtime-mutable config field).
func (r *RelayCore) SetPassthroughTest(on bool) {
	r.passthroughTest = on
}

// PacketsSent returns the number of packets successfully written to the
// peer so far, for the periodic stats report.
func (r *RelayCore) PacketsSent() uint64 {
	return atomic.LoadUint64(&r.packetsSent)
}

// ProcessCallback is the function handed to the audio backend as its
// process callback (§4.4, §4.6).
func (r *RelayCore) ProcessCallback(in []float32, outLeft, outRight []float32, nSamples int) {
	if r.passthroughTest {
		for i := 0; i < nSamples; i++ {
			outLeft[i] = in[i]
			outRight[i] = in[i]
		}
		return
	}

	r.send(in, nSamples)

	need := nSamples
	if need > len(r.rcv)/Channels {
		need = len(r.rcv) / Channels
	}
	n, err := r.ring.Pop(r.rcv, need, Channels)
	if err != nil {
		// Ring buffer not initialized is a programming error, not a
		// runtime condition the callback can recover from gracefully;
		// fall back to silence rather than panicking on the audio
		// thread.
		for i := 0; i < nSamples; i++ {
			outLeft[i] = 0
			outRight[i] = 0
		}
		return
	}

	for i := 0; i < n && i < nSamples; i++ {
		outLeft[i] = r.rcv[i*Channels]
		outRight[i] = r.rcv[i*Channels+1]
	}
	for i := n; i < nSamples; i++ {
		outLeft[i] = 0
		outRight[i] = 0
	}
}

// send builds the outbound wire packet from mono input, duplicating it
// into both stereo lanes, stamps t1, and fires it at the peer. Send
// errors are logged and otherwise ignored (§7: transient I/O).
func (r *RelayCore) send(in []float32, nSamples int) {
	// The chunk-size invariant (§3: MIN_CHUNK <= n_samples <= MAX_CHUNK)
	// is enforced by the receiver on the far end, not here; a short
	// final buffer during shutdown is still sent rather than dropped.
	n := nSamples
	if n > MaxChunk {
		n = MaxChunk
	}

	r.pkt.NSamples = uint16(n)
	for i := 0; i < n; i++ {
		r.pkt.Samples[i*Channels] = in[i]
		r.pkt.Samples[i*Channels+1] = in[i]
	}
	r.pkt.T1LocalSend = TimestampNow()

	if _, err := r.conn.Write(r.pkt.Bytes()); err != nil {
		r.log.Debug("sendto failed", "err", err)
		return
	}
	atomic.AddUint64(&r.packetsSent, 1)
}
