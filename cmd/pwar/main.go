package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	pwar "github.com/paring-chan/pwar/src"
	"github.com/spf13/pflag"
)

func main() {
	var backend = pflag.StringP("backend", "b", string(pwar.BackendSimulated), `Audio backend to use.
alsa      Direct ALSA capture/playback (Linux only).
pipewire  PipeWire stream client (Linux only).
portaudio Cross-platform PortAudio blocking stream.
simulated Synthetic tone source, no real device needed.`)
	var streamIP = pflag.StringP("ip", "i", "127.0.0.1", "Peer IP address to send audio to.")
	var streamPort = pflag.IntP("port", "p", 8321, "UDP port used for both send and receive.")
	var bufferSize = pflag.IntP("device-buffer", "B", 128, "Audio device callback buffer size, in frames.")
	var packetBufferSize = pflag.IntP("packet-buffer", "k", 256, "Outbound packet chunk size, in frames; must be a multiple of --device-buffer.")
	var sampleRate = pflag.IntP("rate", "r", 48000, "Audio sample rate, in Hz.")
	var ringDepth = pflag.IntP("ring-depth", "d", 1024, "Jitter ring-buffer depth, in frames.")
	var passthrough = pflag.BoolP("passthrough", "t", false, "Loop capture straight to playback, bypassing the network (local test mode).")
	var captureDevice = pflag.StringP("capture-device", "c", "", "Capture device name/id, backend-specific. Empty selects the default.")
	var playbackDevice = pflag.StringP("playback-device", "o", "", "Playback device name/id, backend-specific. Empty selects the default.")
	var configFile = pflag.StringP("config-file", "f", "", "Optional YAML configuration file; flags explicitly given on the command line still override it.")
	var audioStatsInterval = pflag.IntP("audio-stats-interval", "a", 100, "Periodic latency/xrun report interval in seconds; a final report is printed on shutdown. 0 disables the reporter, so neither periodic nor final reports are printed.")
	var timestampFormat = pflag.StringP("timestamp-format", "T", "", "strftime pattern for report timestamps.")
	var listDevices = pflag.Bool("list-devices", false, "List discoverable ALSA device nodes and exit (Linux only).")
	var logLevel = pflag.String("log-level", "info", "Log level: debug, info, warn, error.")

	pflag.Parse()

	level, err := charmlog.ParseLevel(*logLevel)
	if err != nil {
		level = charmlog.InfoLevel
	}
	pwar.SetLogLevel(level)
	log := pwar.CLILogger()

	if *listDevices {
		runListDevices(log)
		return
	}

	cfg := pwar.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = pwar.LoadConfigFile(*configFile, cfg)
		if err != nil {
			log.Error("failed to load config file", "err", err)
			os.Exit(1)
		}
	}

	applyFlagOverrides(&cfg, backend, streamIP, streamPort, bufferSize, packetBufferSize,
		sampleRate, ringDepth, passthrough, captureDevice, playbackDevice,
		audioStatsInterval, timestampFormat)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	session := pwar.NewSession()
	if err := session.Init(cfg); err != nil {
		log.Error("failed to initialize session", "err", err)
		os.Exit(1)
	}

	var reporter *pwar.StatsReporter
	if cfg.AudioStatsIntervalSec > 0 {
		var err error
		reporter, err = pwar.NewStatsReporter(session, time.Duration(cfg.AudioStatsIntervalSec)*time.Second, cfg.TimestampFormat)
		if err != nil {
			log.Error("failed to start stats reporter", "err", err)
			session.Cleanup()
			os.Exit(1)
		}
		reporter.Start()
	}

	if err := session.Start(); err != nil {
		log.Error("failed to start session", "err", err)
		if reporter != nil {
			reporter.Stop()
		}
		session.Cleanup()
		os.Exit(1)
	}

	log.Info("pwar running", "backend", cfg.Backend, "peer", fmt.Sprintf("%s:%d", cfg.StreamIP, cfg.StreamPort))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")

	if reporter != nil {
		reporter.Stop()
	}
	if err := session.Stop(); err != nil {
		log.Warn("error stopping session", "err", err)
	}
	if err := session.Cleanup(); err != nil {
		log.Warn("error cleaning up session", "err", err)
	}
}

func runListDevices(log pwar.Logger) {
	devices, err := pwar.ListALSADevices()
	if err != nil {
		log.Error("could not enumerate audio devices", "err", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("no audio devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("%-20s card=%-10s %s\n", d.Devnode, d.CardID, d.SysPath)
	}
}

func applyFlagOverrides(cfg *pwar.Config, backend, streamIP *string, streamPort, bufferSize,
	packetBufferSize, sampleRate, ringDepth *int, passthrough *bool, captureDevice, playbackDevice *string,
	audioStatsInterval *int, timestampFormat *string) {

	if pflag.CommandLine.Changed("backend") {
		cfg.Backend = pwar.BackendKind(*backend)
	}
	if pflag.CommandLine.Changed("ip") {
		cfg.StreamIP = *streamIP
	}
	if pflag.CommandLine.Changed("port") {
		cfg.StreamPort = *streamPort
	}
	if pflag.CommandLine.Changed("device-buffer") {
		cfg.BufferSize = *bufferSize
	}
	if pflag.CommandLine.Changed("packet-buffer") {
		cfg.PacketBufferSize = *packetBufferSize
	}
	if pflag.CommandLine.Changed("rate") {
		cfg.SampleRate = *sampleRate
	}
	if pflag.CommandLine.Changed("ring-depth") {
		cfg.RingBufferDepth = *ringDepth
	}
	if pflag.CommandLine.Changed("passthrough") {
		cfg.PassthroughTest = *passthrough
	}
	if pflag.CommandLine.Changed("capture-device") {
		cfg.CaptureDevice = *captureDevice
	}
	if pflag.CommandLine.Changed("playback-device") {
		cfg.PlaybackDevice = *playbackDevice
	}
	if pflag.CommandLine.Changed("audio-stats-interval") {
		cfg.AudioStatsIntervalSec = *audioStatsInterval
	}
	if pflag.CommandLine.Changed("timestamp-format") {
		cfg.TimestampFormat = *timestampFormat
	}
}
