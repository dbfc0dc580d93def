package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Subsystems logged by the daemon. HAL, RTE, STRM and OFLD are created by
// the device itself.
var subsystems = []string{"HALD", "HAL", "RTE", "STRM", "OFLD", "VOIC",
	"FCTY", "MIXR", "XPRT", "RPCS", "STAT"}

type logBackend struct {
	stdOut          io.Writer
	logRotator      *rotator.Rotator
	bknd            *slog.Backend
	defaultLogLevel slog.Level
	logLevels       map[string]slog.Level

	mtx     sync.Mutex
	loggers map[string]slog.Logger
}

func newLogBackend(logFile, debugLevel string, stdOut io.Writer) (*logBackend, error) {

	var logRotator *rotator.Rotator
	if logFile != "" {
		logDir, _ := filepath.Split(logFile)
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}
		logRotator, err = rotator.New(logFile, 1024, false, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %v", err)
		}
	}

	b := &logBackend{
		stdOut:          stdOut,
		logRotator:      logRotator,
		defaultLogLevel: slog.LevelInfo,
		logLevels:       make(map[string]slog.Level),
		loggers:         make(map[string]slog.Logger),
	}
	b.bknd = slog.NewBackend(b)

	// Parse the debugLevel string into log levels for each subsystem.
	for _, v := range strings.Split(debugLevel, ",") {
		fields := strings.Split(strings.TrimSpace(v), "=")
		switch len(fields) {
		case 1:
			level, ok := slog.LevelFromString(fields[0])
			if !ok {
				return nil, fmt.Errorf("unknown log level %q", fields[0])
			}
			b.defaultLogLevel = level
		case 2:
			subsys := strings.ToUpper(fields[0])
			if !knownSubsystem(subsys) {
				return nil, fmt.Errorf("unknown log subsystem %q", fields[0])
			}
			level, ok := slog.LevelFromString(fields[1])
			if !ok {
				return nil, fmt.Errorf("unknown log level %q", fields[1])
			}
			b.logLevels[subsys] = level
		default:
			return nil, fmt.Errorf("unable to parse %q as subsys=level "+
				"debuglevel string", v)
		}
	}

	return b, nil
}

func knownSubsystem(subsys string) bool {
	for _, s := range subsystems {
		if s == subsys {
			return true
		}
	}
	return false
}

func (bknd *logBackend) Write(b []byte) (int, error) {
	if bknd.stdOut != nil {
		bknd.stdOut.Write(b)
	}
	if bknd.logRotator != nil {
		bknd.logRotator.Write(b)
	}

	return len(b), nil
}

func (bknd *logBackend) level(subsys string) slog.Level {
	if level, ok := bknd.logLevels[subsys]; ok {
		return level
	}
	return bknd.defaultLogLevel
}

// logger returns the logger of subsys. It is safe for concurrent use, so it
// can be handed to the device as its log backend.
func (bknd *logBackend) logger(subsys string) slog.Logger {
	bknd.mtx.Lock()
	defer bknd.mtx.Unlock()
	if l, ok := bknd.loggers[subsys]; ok {
		return l
	}

	l := bknd.bknd.Logger(subsys)
	l.SetLevel(bknd.level(subsys))
	bknd.loggers[subsys] = l
	return l
}

func (bknd *logBackend) close() error {
	if bknd.logRotator != nil {
		return bknd.logRotator.Close()
	}
	return nil
}
