//go:build linux

package pwar

import "golang.org/x/sys/unix"

// rtPriority is a mid-range SCHED_FIFO priority, high enough to preempt
// normal timesharing threads but leaving room above it for anything the
// host OS itself needs to run at higher priority still.
const rtPriority = 50

// raiseRealtimePriority asks the kernel to move the calling OS thread
// (the caller must have already called runtime.LockOSThread) onto the
// SCHED_FIFO real-time class. Denial — typically CAP_SYS_NICE or an
// RLIMIT_RTPRIO limit — is reported to the caller as an error so it can
// be logged as a warning, never treated as fatal (§5, §9: "requested
// best-effort; a failure... is a warning, not a fatal").
func raiseRealtimePriority() error {
	return unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: rtPriority})
}
