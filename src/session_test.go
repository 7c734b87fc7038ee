package pwar

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = BackendSimulated
	cfg.StreamIP = "127.0.0.1"
	cfg.StreamPort = 0 // re-resolved below once the socket tells us its real port
	cfg.BufferSize = 32
	cfg.PacketBufferSize = 32
	cfg.RingBufferDepth = 128
	return cfg
}

// freePort asks the kernel for an ephemeral UDP port, then immediately
// releases it; a session's own ListenUDP racing for the same port is the
// tradeoff made for keeping Session.Init responsible for its own sockets
// rather than accepting a pre-bound listener.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func TestSessionLifecycle(t *testing.T) {
	cfg := testSessionConfig(t)
	cfg.StreamPort = freePort(t)

	s := NewSession()
	assert.Equal(t, StateUninitialized, s.State())

	require.NoError(t, s.Init(cfg))
	assert.Equal(t, StateInitialized, s.State())
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	assert.True(t, s.IsRunning())

	time.Sleep(10 * time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateInitialized, s.State())
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Cleanup())
	assert.Equal(t, StateUninitialized, s.State())
}

func TestSessionInitRejectsInvalidConfig(t *testing.T) {
	cfg := testSessionConfig(t)
	cfg.StreamPort = freePort(t)
	cfg.BufferSize = MaxChunk + 1

	s := NewSession()
	assert.Error(t, s.Init(cfg))
	assert.Equal(t, StateUninitialized, s.State())
}

func TestSessionStartRequiresInit(t *testing.T) {
	s := NewSession()
	assert.Error(t, s.Start())
}

func TestSessionCleanupFromUninitializedIsNoop(t *testing.T) {
	s := NewSession()
	assert.NoError(t, s.Cleanup())
}

func TestSessionUpdateConfigPassthroughIsRuntimeMutable(t *testing.T) {
	cfg := testSessionConfig(t)
	cfg.StreamPort = freePort(t)

	s := NewSession()
	require.NoError(t, s.Init(cfg))
	defer s.Cleanup()

	changed := cfg
	changed.PassthroughTest = !cfg.PassthroughTest
	restart, err := s.UpdateConfig(changed)
	require.NoError(t, err)
	assert.False(t, restart)
}

func TestSessionUpdateConfigBufferSizeRequiresRestart(t *testing.T) {
	cfg := testSessionConfig(t)
	cfg.StreamPort = freePort(t)

	s := NewSession()
	require.NoError(t, s.Init(cfg))
	defer s.Cleanup()

	changed := cfg
	changed.BufferSize = 64
	changed.PacketBufferSize = 64
	restart, err := s.UpdateConfig(changed)
	require.NoError(t, err)
	assert.True(t, restart)
}

func TestSessionUpdateConfigTwiceWithSameFieldsIsNoop(t *testing.T) {
	cfg := testSessionConfig(t)
	cfg.StreamPort = freePort(t)

	s := NewSession()
	require.NoError(t, s.Init(cfg))
	defer s.Cleanup()

	changed := cfg
	changed.PassthroughTest = true

	restart1, err := s.UpdateConfig(changed)
	require.NoError(t, err)
	restart2, err := s.UpdateConfig(changed)
	require.NoError(t, err)
	assert.Equal(t, restart1, restart2)
	assert.False(t, restart2)
}

func TestSessionGetCurrentPeerBufferSizeBeforeInitIsZero(t *testing.T) {
	s := NewSession()
	assert.Equal(t, 0, s.GetCurrentPeerBufferSize())
}
