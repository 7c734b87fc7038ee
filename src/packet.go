// Package pwar implements the real-time audio relay pipeline described in
// the project specification: a ring-buffer-decoupled UDP bridge between a
// hardware-driven audio callback and a remote peer.
package pwar

import "unsafe"

// Chunk size bounds for a single wire packet, in frames.
const (
	MinChunk = 32
	MaxChunk = 128
)

// Channels is the fixed interleaved channel count carried on the wire.
// The relay always duplicates its mono input into both lanes (§4.6).
const Channels = 2

// Packet is the fixed-layout wire record carried in a single UDP datagram.
//
// Its size is always the full record, regardless of n_samples; trailing
// sample slots are simply undefined. The layout is the native layout of
// whichever host sends it — the protocol is LAN-local between peers built
// from the same binary and is not defined cross-endian or cross-arch.
type Packet struct {
	NSamples uint16
	_        [6]byte // pad so the timestamps that follow are 8-byte aligned

	T1LocalSend  int64
	T2RemoteRecv int64
	T3RemoteSend int64
	T4LocalRecv  int64

	Samples [Channels * MaxChunk]float32
}

// wireSize is the exact byte length of a Packet on this host, and therefore
// the exact length of every PWAR datagram.
const wireSize = int(unsafe.Sizeof(Packet{}))

// WireSize reports the fixed datagram size for this build.
func WireSize() int { return wireSize }

// Bytes returns the packet's wire representation as a byte slice backed by
// the packet itself — no copy, no marshaling. The slice is only valid as
// long as p is not reused.
func (p *Packet) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), wireSize)
}

// PacketFromBytes reinterprets a received datagram as a *Packet without
// copying. It returns false if b is not exactly the wire size; callers must
// not retain b after this call returns true, since the returned packet
// aliases it.
func PacketFromBytes(b []byte) (*Packet, bool) {
	if len(b) != wireSize {
		return nil, false
	}
	return (*Packet)(unsafe.Pointer(&b[0])), true
}

// ValidForRelay reports whether the packet passes the two checks the
// receiver performs before touching ring-buffer state: correct size
// (implicit, since PacketFromBytes already enforced it) and a chunk count
// within [MinChunk, MaxChunk].
func (p *Packet) ValidForRelay() bool {
	return p.NSamples >= MinChunk && p.NSamples <= MaxChunk
}

// SampleSlice returns the defined portion of the interleaved sample array,
// i.e. the first NSamples*Channels slots.
func (p *Packet) SampleSlice() []float32 {
	n := int(p.NSamples) * Channels
	if n > len(p.Samples) {
		n = len(p.Samples)
	}
	return p.Samples[:n]
}
