//go:build !(linux || darwin || freebsd || openbsd || netbsd)

package server

import "errors"

var errPriorityUnsupported = errors.New("process priority is not supported on this platform")

func setAudioPriority(prio int) error {
	return errPriorityUnsupported
}

