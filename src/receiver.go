package pwar

import (
	"errors"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// receiverRecvTimeout bounds each recvfrom call so the receiver can
// observe should_stop promptly (§4.5, §5: "within <= 100 ms").
const receiverRecvTimeout = 100 * time.Millisecond

// receiverSocketBuffer is the target OS receive-buffer size, large enough
// to absorb peer-side bursts (§4.5: "target >= 1 MiB").
const receiverSocketBuffer = 1 << 20

// Receiver is the dedicated real-time-priority task that owns the receive
// socket and is the sole pusher to the ring buffer (§4.5, §5).
type Receiver struct {
	conn    *net.UDPConn
	ring    *RingBuffer
	latency *LatencyManager

	shouldStop      int32
	packetsReceived uint64
	wg              sync.WaitGroup

	log Logger
}

// NewReceiver constructs a receiver bound to conn, ring, and latency. conn
// must already be bound to the local receive port.
func NewReceiver(conn *net.UDPConn, ring *RingBuffer, latency *LatencyManager) (*Receiver, error) {
	if err := conn.SetReadBuffer(receiverSocketBuffer); err != nil {
		// Non-fatal: the kernel may clamp this via net.core.rmem_max.
		// The receiver still functions, just with less burst headroom.
		logReceiver().Warn("could not grow receive socket buffer", "err", err)
	}

	return &Receiver{
		conn:    conn,
		ring:    ring,
		latency: latency,
		log:     logReceiver(),
	}, nil
}

// Start launches the receive loop on its own goroutine and attempts to
// raise it to a real-time scheduling class (best effort; denial is a
// warning, never fatal — §5, §9).
func (r *Receiver) Start() error {
	r.wg.Add(1)
	go r.run()
	return nil
}

// PacketsReceived returns the number of valid packets pushed into the
// ring buffer so far, for the periodic stats report.
func (r *Receiver) PacketsReceived() uint64 {
	return atomic.LoadUint64(&r.packetsReceived)
}

// Stop signals should_stop and blocks until the receive loop has exited.
// The loop is guaranteed to observe the signal within one
// receiverRecvTimeout thanks to the bounded recvfrom deadline (§5).
func (r *Receiver) Stop() {
	atomic.StoreInt32(&r.shouldStop, 1)
	r.wg.Wait()
}

func (r *Receiver) run() {
	defer r.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := raiseRealtimePriority(); err != nil {
		r.log.Warn("could not raise receiver thread to real-time priority", "err", err)
	}

	buf := make([]byte, WireSize())

	for {
		if atomic.LoadInt32(&r.shouldStop) == 1 {
			return
		}

		r.conn.SetReadDeadline(time.Now().Add(receiverRecvTimeout))
		n, _, err := r.conn.ReadFromUDP(buf)

		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if atomic.LoadInt32(&r.shouldStop) == 1 {
				return
			}
			r.log.Error("recvfrom error", "err", err)
			continue
		}

		if n != WireSize() {
			// Drop silently, without disturbing ring-buffer state
			// (§4.1, §9: side-channel/aggregated-peer datagrams of a
			// different size are ignored, not treated as errors).
			continue
		}

		pkt, ok := PacketFromBytes(buf[:n])
		if !ok || !pkt.ValidForRelay() {
			continue
		}

		r.latency.ProcessPacket(pkt)

		samples := pkt.SampleSlice()
		if err := r.ring.Push(samples, int(pkt.NSamples), Channels); err != nil {
			r.log.Debug("ring buffer push failed", "err", err)
			continue
		}
		atomic.AddUint64(&r.packetsReceived, 1)

		r.latency.ReportRingBufferFill(r.ring.Available())
	}
}
