package pwar

import (
	"fmt"
	"net"
	"sync"
)

// State is one of the session lifecycle's three states (§3, §4.8):
// uninitialized -> initialized -> running -> initialized -> uninitialized.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Session is the explicit, caller-held handle that replaces the
// teacher's (and the original C program's) single process-wide global
// session pointer (§9 Design Notes: "Rearchitect as an explicit session
// handle returned from init... permits multiple concurrent sessions").
//
// Every control-API call (§6) takes a *Session rather than reaching for
// global state, which is what makes running more than one bridge per
// process — handy for tests — possible at all.
type Session struct {
	mu    sync.Mutex
	state State

	cfg Config

	backend  Backend
	ring     *RingBuffer
	latency  *LatencyManager
	relay    *RelayCore
	receiver *Receiver

	sendConn *net.UDPConn
	recvConn *net.UDPConn

	log Logger
}

// NewSession returns an uninitialized session handle.
func NewSession() *Session {
	return &Session{state: StateUninitialized, log: logSession()}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init builds sockets, the ring buffer, the backend, and the latency
// manager, and starts the receiver task (§4.8). Any step failing tears
// down the prefix that already succeeded and leaves the session
// uninitialized (§5: "Resource scoping").
func (s *Session) Init(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return fmt.Errorf("pwar: session: init called from state %s", s.state)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	recvConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.StreamPort})
	if err != nil {
		return fmt.Errorf("pwar: session: bind receive socket: %w", err)
	}

	peerAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.StreamIP, cfg.StreamPort))
	if err != nil {
		recvConn.Close()
		return fmt.Errorf("pwar: session: resolve peer address: %w", err)
	}
	sendConn, err := net.DialUDP("udp", nil, peerAddr)
	if err != nil {
		recvConn.Close()
		return fmt.Errorf("pwar: session: dial send socket: %w", err)
	}

	ring := NewRingBuffer()
	if err := ring.Init(cfg.RingBufferDepth, Channels, cfg.BufferSize); err != nil {
		sendConn.Close()
		recvConn.Close()
		return fmt.Errorf("pwar: session: init ring buffer: %w", err)
	}

	backend, err := NewBackend(cfg.Backend)
	if err != nil {
		ring.Free()
		sendConn.Close()
		recvConn.Close()
		return err
	}

	latency := NewLatencyManager()
	latency.Init(cfg.SampleRate, cfg.BufferSize, backend.LatencyMs())

	relay := NewRelayCore(sendConn, ring, latency, cfg.PassthroughTest)

	if err := backend.Init(BackendConfig{
		SampleRate:     cfg.SampleRate,
		BufferSize:     cfg.BufferSize,
		CaptureDevice:  cfg.CaptureDevice,
		PlaybackDevice: cfg.PlaybackDevice,
	}, relay.ProcessCallback); err != nil {
		ring.Free()
		sendConn.Close()
		recvConn.Close()
		return fmt.Errorf("pwar: session: init backend: %w", err)
	}

	receiver, err := NewReceiver(recvConn, ring, latency)
	if err != nil {
		backend.Cleanup()
		ring.Free()
		sendConn.Close()
		recvConn.Close()
		return fmt.Errorf("pwar: session: init receiver: %w", err)
	}
	if err := receiver.Start(); err != nil {
		backend.Cleanup()
		ring.Free()
		sendConn.Close()
		recvConn.Close()
		return fmt.Errorf("pwar: session: start receiver: %w", err)
	}

	s.cfg = cfg
	s.sendConn = sendConn
	s.recvConn = recvConn
	s.ring = ring
	s.backend = backend
	s.latency = latency
	s.relay = relay
	s.receiver = receiver
	s.state = StateInitialized

	s.log.Info("session initialized", "backend", cfg.Backend, "stream", fmt.Sprintf("%s:%d", cfg.StreamIP, cfg.StreamPort))

	return nil
}

// Start begins audio I/O (§4.8: backend.start()).
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		return fmt.Errorf("pwar: session: start called from state %s", s.state)
	}
	if err := s.backend.Start(); err != nil {
		return fmt.Errorf("pwar: session: start backend: %w", err)
	}
	s.state = StateRunning
	s.log.Info("session running")
	return nil
}

// Stop halts audio I/O (§4.8: backend.stop()), returning to initialized.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("pwar: session: stop called from state %s", s.state)
	}
	if err := s.backend.Stop(); err != nil {
		return fmt.Errorf("pwar: session: stop backend: %w", err)
	}
	s.state = StateInitialized
	s.log.Info("session stopped")
	return nil
}

// Cleanup signals should_stop, joins the receiver, cleans up the backend,
// frees the ring buffer, and closes both sockets — the reverse order of
// Init's resource acquisition (§5: "Resource scoping").
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return nil
	}
	if s.state == StateRunning {
		if err := s.backend.Stop(); err != nil {
			s.log.Warn("error stopping backend during cleanup", "err", err)
		}
	}

	s.receiver.Stop()
	s.backend.Cleanup()
	s.ring.Free()
	s.sendConn.Close()
	s.recvConn.Close()

	s.log.Info("session cleaned up",
		"overruns", s.ring.Overruns(),
		"underruns", s.ring.Underruns(),
		"xruns", s.backend.Stats().Xruns,
		"packets_sent", s.relay.PacketsSent(),
		"packets_received", s.receiver.PacketsReceived(),
	)

	s.state = StateUninitialized
	return nil
}

// IsRunning reports whether the session is in the running state.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// UpdateConfig reports that a restart is required if any restart-only
// field (buffer size, ring depth, stream IP, stream port, backend)
// differs; otherwise it applies PassthroughTest in place (§4.8). Changes
// to any other field are not applied and do not report a restart. Two
// consecutive calls with the same runtime-mutable fields are a no-op.
func (s *Session) UpdateConfig(newCfg Config) (restartRequired bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := newCfg.Validate(); err != nil {
		return false, err
	}

	if s.cfg.restartOnlyDiffers(newCfg) {
		return true, nil
	}

	s.cfg.PassthroughTest = newCfg.PassthroughTest
	if s.relay != nil {
		s.relay.SetPassthroughTest(newCfg.PassthroughTest)
	}

	return false, nil
}

// GetLatencyMetrics returns the latest two-second latency/ring-fill
// snapshot (§6 control API). Its Xruns adds the backend's xruns and the
// ring buffer's underruns to the latency manager's own count.
func (s *Session) GetLatencyMetrics() Metrics {
	s.mu.Lock()
	latency, ring, backend := s.latency, s.ring, s.backend
	s.mu.Unlock()

	if latency == nil {
		return Metrics{}
	}
	m := latency.GetCurrentMetrics()
	m.Xruns += ring.Underruns() + backend.Stats().Xruns
	return m
}

// GetPacketCounters reports the total packets sent and received so far,
// for the periodic stats report.
func (s *Session) GetPacketCounters() (sent, received uint64) {
	s.mu.Lock()
	relay, receiver := s.relay, s.receiver
	s.mu.Unlock()

	if relay != nil {
		sent = relay.PacketsSent()
	}
	if receiver != nil {
		received = receiver.PacketsReceived()
	}
	return sent, received
}

// GetCurrentPeerBufferSize reports the ring buffer's current readable
// fill level in frames, the closest local proxy for "how many frames the
// peer currently has buffered relative to our playback" (§6 control API).
func (s *Session) GetCurrentPeerBufferSize() int {
	s.mu.Lock()
	ring := s.ring
	s.mu.Unlock()

	if ring == nil {
		return 0
	}
	return ring.Available()
}
