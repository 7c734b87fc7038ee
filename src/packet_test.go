package pwar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPacketWireSizeIsFixed(t *testing.T) {
	assert.Equal(t, WireSize(), WireSize(), "WireSize must not vary between calls")
	assert.Greater(t, WireSize(), 0)
}

func TestPacketBytesRoundTrip(t *testing.T) {
	var p Packet
	p.NSamples = 64
	p.T1LocalSend = 111
	p.T2RemoteRecv = 222
	p.T3RemoteSend = 333
	p.T4LocalRecv = 444
	for i := range p.Samples {
		p.Samples[i] = float32(i) * 0.5
	}

	b := p.Bytes()
	require.Len(t, b, WireSize())

	got, ok := PacketFromBytes(b)
	require.True(t, ok)
	assert.Equal(t, p.NSamples, got.NSamples)
	assert.Equal(t, p.T1LocalSend, got.T1LocalSend)
	assert.Equal(t, p.T2RemoteRecv, got.T2RemoteRecv)
	assert.Equal(t, p.T3RemoteSend, got.T3RemoteSend)
	assert.Equal(t, p.T4LocalRecv, got.T4LocalRecv)
	assert.Equal(t, p.Samples, got.Samples)
}

func TestPacketFromBytesRejectsWrongSize(t *testing.T) {
	_, ok := PacketFromBytes(make([]byte, WireSize()-1))
	assert.False(t, ok)

	_, ok = PacketFromBytes(make([]byte, WireSize()+1))
	assert.False(t, ok)
}

func TestPacketValidForRelay(t *testing.T) {
	var p Packet

	p.NSamples = MinChunk - 1
	assert.False(t, p.ValidForRelay())

	p.NSamples = MinChunk
	assert.True(t, p.ValidForRelay())

	p.NSamples = MaxChunk
	assert.True(t, p.ValidForRelay())

	p.NSamples = MaxChunk + 1
	assert.False(t, p.ValidForRelay())
}

func TestPacketSampleSliceLength(t *testing.T) {
	var p Packet
	p.NSamples = 40
	s := p.SampleSlice()
	assert.Len(t, s, 40*Channels)
}

func TestPacketSampleSliceNeverExceedsBacking(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var p Packet
		p.NSamples = uint16(rapid.IntRange(0, 65535).Draw(t, "nSamples"))
		s := p.SampleSlice()
		assert.LessOrEqual(t, len(s), len(p.Samples))
	})
}
