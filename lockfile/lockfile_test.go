package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/companyzero/audiohal/internal/assert"
)

func TestAcquireRecordsOwner(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "run", "audiohald.lock")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	lf, err := Acquire(ctx, fname, "test-card")
	assert.NilErr(t, err)
	assert.DeepEqual(t, lf.Path(), fname)

	o, err := ReadOwner(fname)
	assert.NilErr(t, err)
	assert.DeepEqual(t, o.PID, os.Getpid())
	assert.DeepEqual(t, o.Card, "test-card")

	assert.NilErr(t, lf.Close())
	assert.NonNilErr(t, lf.Close())
}

// TestConcurrentAcquire tests that a second daemon blocks until the first one
// releases the lock.
func TestConcurrentAcquire(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "audiohald.lock")
	testCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctx1, cancel1 := context.WithCancel(testCtx)
	lf, err := Acquire(ctx1, fname, "card0")
	assert.NilErr(t, err)

	// Canceling the context after acquiring does not release the lock.
	cancel1()

	ctx2, cancel2 := context.WithTimeout(testCtx, 50*time.Millisecond)
	defer cancel2()
	_, err = Acquire(ctx2, fname, "card1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx3, cancel3 := context.WithCancel(testCtx)
	defer cancel3()
	cf3, cerr3 := make(chan *LockFile), make(chan error)
	go func() {
		lf, err := Acquire(ctx3, fname, "card2")
		if err != nil {
			cerr3 <- err
		} else {
			cf3 <- lf
		}
	}()
	assert.Chan2NotWritten(t, cf3, cerr3, time.Second)

	assert.NilErr(t, lf.Close())

	lf3 := assert.ChanWritten(t, cf3)
	o, err := ReadOwner(fname)
	assert.NilErr(t, err)
	assert.DeepEqual(t, o.Card, "card2")
	assert.NilErr(t, lf3.Close())
}
