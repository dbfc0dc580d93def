//go:build linux || darwin || freebsd || openbsd || netbsd

package server

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setAudioPriority sets the nice value of the process.
func setAudioPriority(prio int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, prio); err != nil {
		return fmt.Errorf("unable to set process priority to %d: %w", prio, err)
	}
	return nil
}

