package pwar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayCorePassthroughBypassesNetworkAndRing(t *testing.T) {
	recvConn, sendConn := newLoopbackPair(t)
	_ = recvConn

	ring := NewRingBuffer()
	require.NoError(t, ring.Init(64, Channels, 16))

	latency := NewLatencyManager()
	latency.Init(48000, 16, 1.0)

	relay := NewRelayCore(sendConn, ring, latency, true)

	in := []float32{0.1, 0.2, 0.3, 0.4}
	outL := make([]float32, 4)
	outR := make([]float32, 4)
	relay.ProcessCallback(in, outL, outR, 4)

	assert.Equal(t, in, outL)
	assert.Equal(t, in, outR)
	// Passthrough never touches the ring buffer.
	assert.Equal(t, 64, ring.Available())
	// Nor does it send anything to the peer.
	assert.Equal(t, uint64(0), relay.PacketsSent())
}

func TestRelayCoreSendsPacketAndDrainsRing(t *testing.T) {
	recvConn, sendConn := newLoopbackPair(t)

	ring := NewRingBuffer()
	require.NoError(t, ring.Init(64, Channels, 16))

	latency := NewLatencyManager()
	latency.Init(48000, 16, 1.0)

	relay := NewRelayCore(sendConn, ring, latency, false)

	in := make([]float32, 16)
	for i := range in {
		in[i] = float32(i) / 16
	}
	outL := make([]float32, 16)
	outR := make([]float32, 16)

	relay.ProcessCallback(in, outL, outR, 16)

	buf := make([]byte, WireSize()+16)
	n, err := recvConn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, WireSize(), n)

	pkt, ok := PacketFromBytes(buf[:n])
	require.True(t, ok)
	assert.Equal(t, uint16(16), pkt.NSamples)
	for i := 0; i < 16; i++ {
		assert.Equal(t, in[i], pkt.Samples[i*Channels])
		assert.Equal(t, in[i], pkt.Samples[i*Channels+1])
	}

	assert.Equal(t, uint64(1), relay.PacketsSent())
	// One 16-frame pop from the 64-frame prefill.
	assert.Equal(t, 64-16, ring.Available())
}

func TestRelayCoreFallsBackToSilenceOnUninitializedRing(t *testing.T) {
	_, sendConn := newLoopbackPair(t)

	ring := NewRingBuffer() // never Init'd
	latency := NewLatencyManager()
	latency.Init(48000, 16, 1.0)

	relay := NewRelayCore(sendConn, ring, latency, false)

	in := make([]float32, 16)
	outL := make([]float32, 16)
	outR := make([]float32, 16)
	for i := range outL {
		outL[i] = 99
		outR[i] = 99
	}

	relay.ProcessCallback(in, outL, outR, 16)

	for i := range outL {
		assert.Equal(t, float32(0), outL[i])
		assert.Equal(t, float32(0), outR[i])
	}
}

func TestRelayCoreSetPassthroughTestToggles(t *testing.T) {
	_, sendConn := newLoopbackPair(t)

	ring := NewRingBuffer()
	require.NoError(t, ring.Init(64, Channels, 16))
	latency := NewLatencyManager()
	latency.Init(48000, 16, 1.0)

	relay := NewRelayCore(sendConn, ring, latency, false)
	relay.SetPassthroughTest(true)

	in := []float32{0.5, 0.6}
	outL := make([]float32, 2)
	outR := make([]float32, 2)
	relay.ProcessCallback(in, outL, outR, 2)

	assert.Equal(t, in, outL)
}
