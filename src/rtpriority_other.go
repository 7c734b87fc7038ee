//go:build !linux

package pwar

import "errors"

// raiseRealtimePriority has no portable implementation outside Linux in
// this build; callers already treat its failure as a non-fatal warning.
func raiseRealtimePriority() error {
	return errors.New("pwar: real-time scheduling not supported on this platform")
}
