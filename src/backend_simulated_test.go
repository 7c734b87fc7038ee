package pwar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedBackendInvokesCallbackAtCadence(t *testing.T) {
	b := NewSimulatedBackend()
	require.NoError(t, b.Init(BackendConfig{SampleRate: 48000, BufferSize: 32}, func(in, outLeft, outRight []float32, n int) {
		copy(outLeft, in)
		copy(outRight, in)
	}))

	require.NoError(t, b.Start())
	assert.True(t, b.IsRunning())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Stop())
	assert.False(t, b.IsRunning())

	stats := b.Stats()
	assert.Greater(t, stats.CallbacksTotal, uint64(0))
}

func TestSimulatedBackendLatencyMs(t *testing.T) {
	b := NewSimulatedBackend()
	require.NoError(t, b.Init(BackendConfig{SampleRate: 48000, BufferSize: 480}, func([]float32, []float32, []float32, int) {}))
	assert.InDelta(t, 10.0, b.LatencyMs(), 1e-9)
}

func TestSimulatedBackendStopIsIdempotent(t *testing.T) {
	b := NewSimulatedBackend()
	require.NoError(t, b.Init(BackendConfig{SampleRate: 48000, BufferSize: 32}, func([]float32, []float32, []float32, int) {}))
	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())
	assert.NoError(t, b.Stop())
}
