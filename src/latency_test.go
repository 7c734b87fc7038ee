package pwar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyManagerExpectedInterval(t *testing.T) {
	l := NewLatencyManager()
	l.Init(48000, 256, 5.0)
	assert.InDelta(t, 256.0/48000.0*1000, l.ExpectedIntervalMs(), 1e-9)
}

// forceFlush backdates lastFlush so the next GetCurrentMetrics call
// observes the accumulator without a real two-second wait. The test lives
// in the same package, so reaching past the mutex is an ordinary
// white-box trick rather than a hack around the API.
func forceFlush(l *LatencyManager) {
	l.mu.Lock()
	l.lastFlush = time.Now().Add(-flushInterval - time.Millisecond)
	l.mu.Unlock()
}

func TestLatencyManagerProcessPacketAccumulates(t *testing.T) {
	l := NewLatencyManager()
	l.Init(48000, 256, 5.0)

	now := TimestampNow()

	var pkt Packet
	pkt.T1LocalSend = now - int64(20*time.Millisecond)
	pkt.T2RemoteRecv = now - int64(15*time.Millisecond)
	pkt.T3RemoteSend = now - int64(10*time.Millisecond)

	l.ProcessPacket(&pkt)
	forceFlush(l)

	m := l.GetCurrentMetrics()
	assert.Greater(t, m.RTT.Avg, 0.0)
	assert.Greater(t, m.AudioProc.Avg, 0.0)
}

func TestLatencyManagerDropsNegativeRTT(t *testing.T) {
	l := NewLatencyManager()
	l.Init(48000, 256, 5.0)

	var pkt Packet
	// A send timestamp in the future relative to "now" would produce a
	// negative RTT, which indicates a clock fault rather than a real
	// measurement and must not be folded into the window.
	pkt.T1LocalSend = TimestampNow() + int64(time.Second)
	pkt.T2RemoteRecv = pkt.T1LocalSend
	pkt.T3RemoteSend = pkt.T1LocalSend

	l.ProcessPacket(&pkt)
	forceFlush(l)

	m := l.GetCurrentMetrics()
	assert.Equal(t, Stat{}, m.RTT)
}

func TestLatencyManagerAddXrunIncrements(t *testing.T) {
	l := NewLatencyManager()
	l.Init(48000, 256, 5.0)

	l.AddXrun()
	l.AddXrun()

	assert.Equal(t, uint64(2), l.GetCurrentMetrics().Xruns)
}

func TestLatencyManagerReportRingBufferFill(t *testing.T) {
	l := NewLatencyManager()
	l.Init(48000, 256, 5.0)

	l.ReportRingBufferFill(4800) // 100ms of audio at 48kHz
	forceFlush(l)

	m := l.GetCurrentMetrics()
	assert.InDelta(t, 100.0, m.RingFillMs.Avg, 1e-6)
}

func TestWindowSnapshotEmptyIsZero(t *testing.T) {
	var w window
	assert.Equal(t, Stat{}, w.snapshot())
}

func TestWindowTracksMinMaxAvg(t *testing.T) {
	var w window
	w.add(1)
	w.add(5)
	w.add(3)

	s := w.snapshot()
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.InDelta(t, 3.0, s.Avg, 1e-9)
}
