// Package lockfile makes sure a single daemon owns the audio hardware of a
// data dir.
package lockfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rogpeppe/go-internal/lockedfile"
)

// Owner identifies the process holding a lock file.
type Owner struct {
	PID     int
	Host    string
	Process string
	Card    string
}

func (o Owner) String() string {
	return fmt.Sprintf("pid %d on %s (%s, card %q)", o.PID, o.Host, o.Process, o.Card)
}

// LockFile is an acquired lock file.
type LockFile struct {
	f    *lockedfile.File
	path string
}

// Path of the lock file.
func (lf *LockFile) Path() string {
	return lf.path
}

// Close releases the lock.
func (lf *LockFile) Close() error {
	if lf.f == nil {
		return errors.New("lock file already released")
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}

func writeOwner(f *lockedfile.File, card string) {
	// Errors are ignored: the owner info is only informative.
	host, _ := os.Hostname()
	var proc string
	if len(os.Args) > 0 {
		proc = os.Args[0]
	}
	fmt.Fprintf(f, "pid=%d\nhost=%s\nprocess=%s\ncard=%s\n",
		os.Getpid(), host, proc, card)
}

// Acquire locks filePath on behalf of the daemon driving card. It blocks
// until the lock is acquired or ctx is done.
func Acquire(ctx context.Context, filePath, card string) (*LockFile, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, err
	}

	type result struct {
		f   *lockedfile.File
		err error
	}
	c := make(chan result, 1)
	go func() {
		f, err := lockedfile.Create(filePath)
		c <- result{f: f, err: err}
	}()

	select {
	case r := <-c:
		if r.err != nil {
			return nil, r.err
		}
		writeOwner(r.f, card)
		return &LockFile{f: r.f, path: filePath}, nil

	case <-ctx.Done():
		// The file may still be locked later on, so release it when
		// that happens.
		go func() {
			if r := <-c; r.err == nil {
				r.f.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ReadOwner returns the owner recorded in a lock file. It does not take the
// lock, so it works while a daemon holds it.
func ReadOwner(filePath string) (Owner, error) {
	var o Owner
	f, err := os.Open(filePath)
	if err != nil {
		return o, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		k, v, ok := strings.Cut(s.Text(), "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			o.PID, err = strconv.Atoi(v)
			if err != nil {
				return o, fmt.Errorf("invalid pid %q: %w", v, err)
			}
		case "host":
			o.Host = v
		case "process":
			o.Process = v
		case "card":
			o.Card = v
		}
	}
	return o, s.Err()
}
