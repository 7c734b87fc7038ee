package pwar

import "fmt"

// ProcessCallback is invoked by the audio backend at device cadence, once
// per buffer, with non-overlapping successive invocations (§4.4). in is
// mono float input; outLeft/outRight are the two non-interleaved output
// lanes; n is the frame count, guaranteed equal to the backend's
// configured buffer size on every call.
type ProcessCallback func(in []float32, outLeft, outRight []float32, n int)

// BackendConfig is the subset of Config an audio backend needs to open its
// device(s).
type BackendConfig struct {
	SampleRate     int
	BufferSize     int // frames per callback
	CaptureDevice  string
	PlaybackDevice string
}

// BackendStats is a free-form, backend-defined payload returned by Stats
// (§4.4: "get_stats (optional, backend-defined payload)").
type BackendStats struct {
	Xruns          uint64
	CallbacksTotal uint64
	Extra          map[string]any
}

// Backend is the capability set the relay core drives uniformly,
// regardless of which concrete device layer backs it (§4.4, §9: "modeled
// as a capability set... a tagged variant with per-variant state suffices,
// or a trait/interface with a single dynamic dispatch per callback").
type Backend interface {
	// Init opens the device(s) and registers cb as the process callback.
	// It does not start the audio thread.
	Init(cfg BackendConfig, cb ProcessCallback) error

	// Start begins invoking the process callback at device cadence.
	Start() error

	// Stop halts the process callback and joins the audio thread. It
	// must return only after the audio thread has fully stopped, since
	// session cleanup relies on that ordering (§5).
	Stop() error

	// Cleanup releases all backend state. Safe to call after a failed
	// Init.
	Cleanup()

	// IsRunning reports whether the audio thread is currently active.
	IsRunning() bool

	// Stats returns a backend-defined statistics payload.
	Stats() BackendStats

	// LatencyMs returns the nominal one-way device latency: buffer/rate
	// for PipeWire, capture-buffer + playback-buffer for ALSA.
	LatencyMs() float64
}

// BackendKind names one of the concrete Backend variants selectable at
// construction time.
type BackendKind string

const (
	BackendALSA      BackendKind = "alsa"
	BackendPipeWire  BackendKind = "pipewire"
	BackendSimulated BackendKind = "simulated"
	BackendPortAudio BackendKind = "portaudio"
)

// NewBackend constructs the concrete Backend for kind. ALSA and PipeWire
// are Linux-only; see backend_alsa.go / backend_pipewire.go build tags.
func NewBackend(kind BackendKind) (Backend, error) {
	switch kind {
	case BackendALSA:
		return newALSABackend(), nil
	case BackendPipeWire:
		return newPipeWireBackend(), nil
	case BackendSimulated:
		return NewSimulatedBackend(), nil
	case BackendPortAudio:
		return NewPortAudioBackend(), nil
	default:
		return nil, fmt.Errorf("pwar: unknown backend kind %q", kind)
	}
}
