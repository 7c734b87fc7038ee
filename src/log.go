package pwar

import (
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the structured leveled logger every PWAR subsystem uses. It
// replaces the teacher's hand-rolled dw_printf/textcolor pairing
// (textcolor.go) with the structured logger the teacher's own go.mod
// already names but never wires up.
type Logger = *charmlog.Logger

var (
	rootOnce sync.Once
	root     *charmlog.Logger
)

func rootLogger() *charmlog.Logger {
	rootOnce.Do(func() {
		root = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.000",
		})
	})
	return root
}

// SetLogLevel adjusts the verbosity of every subsystem logger (wired to
// the --log-level CLI flag).
func SetLogLevel(level charmlog.Level) {
	rootLogger().SetLevel(level)
}

func logRelay() Logger    { return rootLogger().WithPrefix("relay") }
func logReceiver() Logger { return rootLogger().WithPrefix("receiver") }
func logBackend() Logger  { return rootLogger().WithPrefix("backend") }
func logSession() Logger  { return rootLogger().WithPrefix("session") }

// CLILogger returns the prefixed logger cmd/pwar uses for its own
// top-level messages (startup, shutdown, flag errors).
func CLILogger() Logger { return rootLogger().WithPrefix("cli") }
