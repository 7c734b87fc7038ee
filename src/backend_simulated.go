package pwar

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// simTestToneHz is the frequency of the synthesized test signal fed to the
// process callback as "captured" input (§4.4: "a real-time thread
// synthesizes a 10 Hz test sine on input").
const simTestToneHz = 10.0

// SimulatedBackend exercises the protocol without any hardware. A
// dedicated goroutine synthesizes a sine wave, calls the process callback
// at precise inter-buffer intervals, and records the left output lane's
// RMS level and the number of sample-to-sample jumps larger than 1.5
// (discontinuities). It does not compare the output against the input
// and does not measure the round-trip delay.
type SimulatedBackend struct {
	cfg BackendConfig
	cb  ProcessCallback

	running int32
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu              sync.Mutex
	callbacksTotal  uint64
	discontinuities uint64
	lastOutRMS      float64
}

// NewSimulatedBackend returns an unconfigured simulated backend.
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{}
}

func (s *SimulatedBackend) Init(cfg BackendConfig, cb ProcessCallback) error {
	s.cfg = cfg
	s.cb = cb
	return nil
}

func (s *SimulatedBackend) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *SimulatedBackend) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return nil
	}
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *SimulatedBackend) Cleanup() {
	_ = s.Stop()
}

func (s *SimulatedBackend) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *SimulatedBackend) Stats() BackendStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BackendStats{
		CallbacksTotal: s.callbacksTotal,
		Extra: map[string]any{
			"discontinuities": s.discontinuities,
			"last_out_rms":    s.lastOutRMS,
		},
	}
}

func (s *SimulatedBackend) LatencyMs() float64 {
	if s.cfg.SampleRate == 0 {
		return 0
	}
	return float64(s.cfg.BufferSize) / float64(s.cfg.SampleRate) * 1000
}

func (s *SimulatedBackend) run() {
	defer s.wg.Done()

	n := s.cfg.BufferSize
	if n <= 0 {
		n = 256
	}
	rate := s.cfg.SampleRate
	if rate <= 0 {
		rate = 48000
	}

	in := make([]float32, n)
	outL := make([]float32, n)
	outR := make([]float32, n)

	interval := time.Duration(float64(n) / float64(rate) * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var phase float64
	phaseStep := 2 * math.Pi * simTestToneHz / float64(rate)
	var prevOutL float32

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		for i := 0; i < n; i++ {
			in[i] = float32(math.Sin(phase))
			phase += phaseStep
		}

		s.cb(in, outL, outR, n)

		var sumSq float64
		var discontinuityThisBuf uint64
		for i := 0; i < n; i++ {
			sumSq += float64(outL[i]) * float64(outL[i])
			if i > 0 || s.callbacksTotal > 0 {
				prev := prevOutL
				if i > 0 {
					prev = outL[i-1]
				}
				if math.Abs(float64(outL[i]-prev)) > 1.5 {
					discontinuityThisBuf++
				}
			}
		}
		if n > 0 {
			prevOutL = outL[n-1]
		}

		s.mu.Lock()
		s.callbacksTotal++
		s.discontinuities += discontinuityThisBuf
		s.lastOutRMS = math.Sqrt(sumSq / float64(n))
		s.mu.Unlock()
	}
}
