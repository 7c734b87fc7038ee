package pwar

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend is a cross-platform audio backend built on
// gordonklaus/portaudio, enriching the three variants spec.md names
// (ALSA, PipeWire, Simulated) with one that also runs on the Windows/ASIO
// side of the bridge.
//
// Like nkristianto-VocaGlyph's audio_service.go, this uses PortAudio's
// blocking stream API rather than its C-thread callback API: calling Go
// runtime functions from a callback invoked on a C thread panics, so a
// dedicated goroutine drives Read/Write instead.
type PortAudioBackend struct {
	cfg BackendConfig
	cb  ProcessCallback

	stream *portaudio.Stream

	// streamIn/streamOut are the exact buffers the stream was opened
	// with; PortAudio's blocking API fills/drains them in place on each
	// Read/Write, so the process goroutine reads and writes through
	// these rather than through any buffer of its own.
	streamIn  []float32
	streamOut []float32

	running int32
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu             sync.Mutex
	callbacksTotal uint64
	xruns          uint64
}

// NewPortAudioBackend returns an unconfigured PortAudio backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

func (p *PortAudioBackend) Init(cfg BackendConfig, cb ProcessCallback) error {
	p.cfg = cfg
	p.cb = cb

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("pwar: portaudio: initialize: %w", err)
	}

	p.streamIn = make([]float32, cfg.BufferSize)
	p.streamOut = make([]float32, cfg.BufferSize*2)

	stream, err := portaudio.OpenDefaultStream(1, 2, float64(cfg.SampleRate), cfg.BufferSize, p.streamIn, p.streamOut)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return fmt.Errorf("pwar: portaudio: open default stream: %w", err)
	}
	p.stream = stream

	return nil
}

func (p *PortAudioBackend) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		atomic.StoreInt32(&p.running, 0)
		return fmt.Errorf("pwar: portaudio: start: %w", err)
	}

	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.run()
	return nil
}

func (p *PortAudioBackend) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return nil
	}
	close(p.stopCh)
	p.wg.Wait()
	return p.stream.Stop()
}

func (p *PortAudioBackend) Cleanup() {
	_ = p.Stop()
	if p.stream != nil {
		p.stream.Close() //nolint:errcheck
	}
	portaudio.Terminate() //nolint:errcheck
}

func (p *PortAudioBackend) IsRunning() bool { return atomic.LoadInt32(&p.running) == 1 }

func (p *PortAudioBackend) Stats() BackendStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BackendStats{Xruns: p.xruns, CallbacksTotal: p.callbacksTotal}
}

func (p *PortAudioBackend) LatencyMs() float64 {
	lat := p.stream.Info().OutputLatency
	return float64(lat.Milliseconds())
}

func (p *PortAudioBackend) run() {
	defer p.wg.Done()

	n := p.cfg.BufferSize
	outL := make([]float32, n)
	outR := make([]float32, n)

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if err := p.stream.Read(); err != nil {
			p.mu.Lock()
			p.xruns++
			p.mu.Unlock()
			continue
		}

		p.cb(p.streamIn, outL, outR, n)

		for i := 0; i < n; i++ {
			p.streamOut[2*i] = outL[i]
			p.streamOut[2*i+1] = outR[i]
		}

		if err := p.stream.Write(); err != nil {
			p.mu.Lock()
			p.xruns++
			p.mu.Unlock()
			continue
		}

		p.mu.Lock()
		p.callbacksTotal++
		p.mu.Unlock()
	}
}
