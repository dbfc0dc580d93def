package main

import (
	"os"

	"golang.org/x/sys/unix"
)

func makeRaw(f *os.File) (*unix.Termios, error) {
	termios, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	if err != nil {
		return nil, err
	}

	oldTermios := *termios

	// Turn off ICANON (canonical mode) and ECHO
	termios.Lflag &^= unix.ICANON | unix.ECHO

	// Read single bytes without a timeout.
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, termios); err != nil {
		return nil, err
	}

	return &oldTermios, nil
}

func restoreTerminal(f *os.File, termios *unix.Termios) error {
	return unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, termios)
}
