package pwar

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
)

// defaultTimestampFormat mirrors kissutil.go's --timestamp-format idea: a
// strftime pattern applied to the periodic report line, not Go's native
// time layout.
const defaultTimestampFormat = "%Y-%m-%d %H:%M:%S"

// StatsReporter prints the periodic, human-readable latency/xrun summary
// line (§3, §4.3: "the accumulator is printed... and copied into the
// current snapshot"), throttled the same way audio_stats.go throttles its
// ADEVICE lines, plus a final one-line summary on shutdown (§7: "a small
// summary is printed on shutdown").
type StatsReporter struct {
	session      *Session
	timestampFmt string

	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}

	log Logger
}

// NewStatsReporter builds a reporter for session, printing every interval
// using timestampFormat (a strftime pattern; empty defaults to
// defaultTimestampFormat).
func NewStatsReporter(session *Session, interval time.Duration, timestampFormat string) (*StatsReporter, error) {
	if timestampFormat == "" {
		timestampFormat = defaultTimestampFormat
	}
	// Validate the pattern eagerly so a typo in --timestamp-format fails
	// at startup rather than on the first report.
	if _, err := strftime.Format(timestampFormat, time.Now()); err != nil {
		return nil, fmt.Errorf("pwar: stats reporter: bad timestamp format %q: %w", timestampFormat, err)
	}

	return &StatsReporter{
		session:      session,
		timestampFmt: timestampFormat,
		interval:     interval,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		log:          logSession(),
	}, nil
}

// Start begins the periodic reporting loop on its own goroutine.
func (s *StatsReporter) Start() {
	go s.run()
}

// Stop halts the loop and prints the final shutdown summary.
func (s *StatsReporter) Stop() {
	close(s.stopCh)
	<-s.done
	s.printSummary("final")
}

func (s *StatsReporter) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.printSummary("periodic")
		}
	}
}

func (s *StatsReporter) printSummary(kind string) {
	m := s.session.GetLatencyMetrics()
	sent, received := s.session.GetPacketCounters()
	ts, _ := strftime.Format(s.timestampFmt, time.Now())

	s.log.Info(fmt.Sprintf("[%s] %s report", ts, kind),
		"rtt_ms_avg", m.RTT.Avg,
		"audio_proc_ms_avg", m.AudioProc.Avg,
		"ring_fill_ms_avg", m.RingFillMs.Avg,
		"xruns", m.Xruns,
		"packets_sent", sent,
		"packets_received", received,
	)
}
