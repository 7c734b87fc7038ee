package pwar

import (
	"errors"
	"sync"
)

// Sentinel errors for ring-buffer operations. Lifecycle and configuration
// failures are returned to the caller (§7); nothing inside push/pop ever
// panics on a well-formed call.
var (
	ErrNotInitialized   = errors.New("ring buffer: not initialized")
	ErrChannelsMismatch = errors.New("ring buffer: channel count mismatch")
)

// RingBuffer is the bounded, interleaved-float PCM queue that decouples the
// receiver task (sole producer) from the audio callback (sole consumer).
//
// It is prefilled to full depth with silence at Init so the consumer can
// never underrun before the network producer delivers its first packet,
// and it is hard-reset to a fresh full-silence prefill on every underrun —
// trading one predictable burst of silence for restored safety margin
// rather than letting the consumer starve repeatedly while the network
// catches up.
//
// All mutating operations, and all counter reads, take the same mutex for
// their duration. This is the only object in the pipeline touched by more
// than one goroutine.
type RingBuffer struct {
	mu sync.Mutex

	initialized bool

	channels           int
	depth              int
	expectedBufferSize int

	data []float32 // depth*channels interleaved frames

	writeIndex int
	readIndex  int
	available  int

	overruns  uint64
	underruns uint64
}

// NewRingBuffer returns a ring buffer with no backing storage; Init must be
// called before it can be used.
func NewRingBuffer() *RingBuffer {
	return &RingBuffer{}
}

// Init allocates depth*channels float slots, zeros them, and sets
// available = depth (a full prefill of silence). expectedBufferSize is the
// nominal per-callback consumption — the safety margin the prefill buys.
//
// If the buffer was already initialized, the prior storage is discarded
// first, so Init is idempotent: init; free; init behaves the same as a
// single init.
func (r *RingBuffer) Init(depth, channels, expectedBufferSize int) error {
	if depth <= 0 || channels <= 0 {
		return errors.New("ring buffer: depth and channels must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = channels
	r.depth = depth
	r.expectedBufferSize = expectedBufferSize
	r.data = make([]float32, depth*channels)
	r.writeIndex = 0
	r.readIndex = 0
	r.available = depth
	r.overruns = 0
	r.underruns = 0
	r.initialized = true

	return nil
}

// Free releases the backing storage. Subsequent operations fail with
// ErrNotInitialized until Init is called again.
func (r *RingBuffer) Free() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data = nil
	r.initialized = false
}

// Push copies n_samples frames of src (channels-wide, interleaved) into the
// buffer.
//
// A channel count other than the configured one is rejected without
// mutation. n_samples == 0 succeeds trivially.
//
// If n_samples exceeds the free space, the overrun policy applies: the
// oldest deficit = n_samples - free_space frames (at most every frame
// currently held) are dropped by advancing read_index and available
// shrinks by that amount *before* any frame is written, so that after the
// push the buffer is full and the most recent min(n_samples, depth) frames
// survive. Exactly one overrun is counted per offending call, never one
// per dropped frame.
func (r *RingBuffer) Push(src []float32, nSamples, channels int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}
	if channels != r.channels {
		return ErrChannelsMismatch
	}
	if nSamples == 0 {
		return nil
	}

	freeSpace := r.depth - r.available

	if nSamples > freeSpace {
		deficit := nSamples - freeSpace
		if deficit > r.available {
			deficit = r.available
		}
		r.readIndex = (r.readIndex + deficit) % r.depth
		r.available -= deficit
		r.overruns++
	}

	// Writing more frames than depth only leaves the tail min(n, depth)
	// frames in the buffer; earlier ones are overwritten in place as the
	// write head wraps around, which is exactly the desired "last frames
	// pushed survive" behaviour.
	toWrite := nSamples
	srcOffset := 0
	if toWrite > r.depth {
		srcOffset = (toWrite - r.depth) * channels
		toWrite = r.depth
	}

	for i := 0; i < toWrite; i++ {
		srcFrame := src[srcOffset+i*channels : srcOffset+i*channels+channels]
		dstStart := r.writeIndex * channels
		copy(r.data[dstStart:dstStart+channels], srcFrame)
		r.writeIndex = (r.writeIndex + 1) % r.depth
	}

	r.available += toWrite
	if r.available > r.depth {
		r.available = r.depth
	}

	return nil
}

// Pop copies n_samples frames into dst (channels-wide, interleaved),
// returning the number of frames actually delivered.
//
// If n_samples exceeds the available count, the underrun policy applies:
// dst is filled with silence for the full requested count, one underrun is
// counted, and the buffer is then fully re-prefilled (zeroed content,
// available = depth, both indices reset to zero) so the next pop only ever
// returns frames pushed after the reset, or prefill zeros if nothing has
// been pushed yet.
func (r *RingBuffer) Pop(dst []float32, nSamples, channels int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return 0, ErrNotInitialized
	}
	if channels != r.channels {
		return 0, ErrChannelsMismatch
	}
	if nSamples == 0 {
		return 0, nil
	}

	if nSamples > r.available {
		for i := 0; i < nSamples*channels && i < len(dst); i++ {
			dst[i] = 0
		}
		r.underruns++

		for i := range r.data {
			r.data[i] = 0
		}
		r.writeIndex = 0
		r.readIndex = 0
		r.available = r.depth

		return nSamples, nil
	}

	for i := 0; i < nSamples; i++ {
		srcStart := r.readIndex * channels
		copy(dst[i*channels:i*channels+channels], r.data[srcStart:srcStart+channels])
		r.readIndex = (r.readIndex + 1) % r.depth
	}
	r.available -= nSamples

	return nSamples, nil
}

// Available returns the number of frames currently readable.
func (r *RingBuffer) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// Overruns returns the monotonically nondecreasing overrun counter.
func (r *RingBuffer) Overruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overruns
}

// Underruns returns the monotonically nondecreasing underrun counter.
func (r *RingBuffer) Underruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underruns
}

// ResetStats zeros the overrun and underrun counters without touching
// audio content.
func (r *RingBuffer) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overruns = 0
	r.underruns = 0
}

// Depth returns the configured capacity in frames.
func (r *RingBuffer) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth
}
