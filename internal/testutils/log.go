package testutils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/decred/slog"
)

// showLogEnv enables the output of test logs when set to a non empty value.
// Logs of streams running on the null driver are very verbose, so they are
// hidden by default.
const showLogEnv = "AUDIOHAL_TESTLOG"

// subsysLevel returns the level used for subsys in tests. Per control mixer
// traces are too verbose to be logged by default.
func subsysLevel(subsys string) slog.Level {
	if strings.HasPrefix(subsys, "MIXR") {
		return slog.LevelDebug
	}
	return slog.LevelTrace
}

// TestLogBackend is a slog backend that writes through t.Log. Writes after
// the test ended are dropped, since streams may still log from hardware
// callbacks while being torn down.
type TestLogBackend struct {
	mtx     sync.Mutex
	tb      testing.TB
	done    bool
	showLog bool
}

func (tlb *TestLogBackend) Write(b []byte) (int, error) {
	tlb.mtx.Lock()
	if !tlb.done && tlb.showLog {
		tlb.tb.Log(string(b[:len(b)-1]))
	}
	tlb.mtx.Unlock()
	return len(b), nil
}

// NewTestLogBackend returns a log backend that can be used as an io.Writer to
// write logs to during a test.
func NewTestLogBackend(t testing.TB) *TestLogBackend {
	tlb := &TestLogBackend{tb: t, showLog: os.Getenv(showLogEnv) != ""}
	t.Cleanup(func() {
		tlb.mtx.Lock()
		tlb.done = true
		tlb.mtx.Unlock()
	})
	return tlb
}

// TestLoggerSys returns an slog.Logger that logs by issuing t.Log calls.
func TestLoggerSys(t testing.TB, sys string) slog.Logger {
	bknd := slog.NewBackend(NewTestLogBackend(t))
	logg := bknd.Logger(sys)
	logg.SetLevel(subsysLevel(sys))
	return logg
}

// TestLoggerBackend returns a function that generates loggers for subsystems,
// all of which log by calling t.Log.
func TestLoggerBackend(t testing.TB, name string) func(subsys string) slog.Logger {
	bknd := slog.NewBackend(NewTestLogBackend(t))
	return func(subsys string) slog.Logger {
		logg := bknd.Logger(fmt.Sprintf("%7s - %s", name, subsys))
		logg.SetLevel(subsysLevel(subsys))
		return logg
	}
}
