//go:build !linux

package main

import (
	"errors"
	"os"
)

type termState struct{}

func makeRaw(f *os.File) (*termState, error) {
	return nil, errors.New("raw terminal mode is only supported on linux")
}

func restoreTerminal(f *os.File, st *termState) error {
	return nil
}
