package pwar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidateRejectsBadBufferSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = MinChunk - 1
	assert.Error(t, cfg.Validate())

	cfg.BufferSize = MaxChunk + 1
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsNonMultiplePacketBuffer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 64
	cfg.PacketBufferSize = 100
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendKind("not-a-backend")
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamPort = 0
	assert.Error(t, cfg.Validate())

	cfg.StreamPort = 70000
	assert.Error(t, cfg.Validate())
}

func TestRestartOnlyDiffersDetectsRestartFields(t *testing.T) {
	base := DefaultConfig()

	same := base
	assert.False(t, base.restartOnlyDiffers(same))

	onlyPassthrough := base
	onlyPassthrough.PassthroughTest = !base.PassthroughTest
	assert.False(t, base.restartOnlyDiffers(onlyPassthrough))

	differentPort := base
	differentPort.StreamPort = base.StreamPort + 1
	assert.True(t, base.restartOnlyDiffers(differentPort))

	differentBackend := base
	differentBackend.Backend = BackendPortAudio
	assert.True(t, base.restartOnlyDiffers(differentBackend))
}

func TestLoadConfigFileOverridesBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pwar.yaml")

	content := "stream_ip: 10.0.0.5\nstream_port: 9999\nbackend: portaudio\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFile(path, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.StreamIP)
	assert.Equal(t, 9999, cfg.StreamPort)
	assert.Equal(t, BackendPortAudio, cfg.Backend)
	// Fields the file didn't mention keep the base's values.
	assert.Equal(t, DefaultConfig().SampleRate, cfg.SampleRate)
}

func TestLoadConfigFileMissingReturnsError(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig())
	assert.Error(t, err)
}
