package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/companyzero/audiohal/hal"
	"github.com/decred/slog"
)

// hbytes == "human bytes"
func hbytes(i uint64) string {
	switch {
	case i < 1e3:
		return strconv.FormatUint(i, 10) + "B"
	case i < 1e6:
		f := float64(i)
		return strconv.FormatFloat(f/1e3, 'f', 2, 64) + "KB"
	case i < 1e9:
		f := float64(i)
		return strconv.FormatFloat(f/1e6, 'f', 2, 64) + "MB"
	case i < 1e12:
		f := float64(i)
		return strconv.FormatFloat(f/1e9, 'f', 2, 64) + "GB"
	default:
		f := float64(i)
		return strconv.FormatFloat(f/1e12, 'f', 2, 64) + "TB"
	}
}

// hrate == "human rate"
func hrate(f float64) string {
	switch {
	case f < 1e3:
		return strconv.FormatFloat(f, 'f', 2, 64)
	case f < 1e6:
		return strconv.FormatFloat(f/1e3, 'f', 2, 64) + "K"
	case f < 1e9:
		return strconv.FormatFloat(f/1e6, 'f', 2, 64) + "M"
	default:
		return strconv.FormatFloat(f/1e9, 'f', 2, 64) + "G"
	}
}

// statsDelta returns the counters accumulated between prev and cur.
func statsDelta(prev, cur hal.Stats) hal.Stats {
	return hal.Stats{
		Routes:          cur.Routes - prev.Routes,
		Reroutes:        cur.Reroutes - prev.Reroutes,
		Resets:          cur.Resets - prev.Resets,
		Skips:           cur.Skips - prev.Skips,
		Keeps:           cur.Keeps - prev.Keeps,
		BackendErrors:   cur.BackendErrors - prev.BackendErrors,
		TransportErrors: cur.TransportErrors - prev.TransportErrors,
		BytesWritten:    cur.BytesWritten - prev.BytesWritten,
		BytesRead:       cur.BytesRead - prev.BytesRead,
	}
}

// formatStats returns the report line of the counters d accumulated during
// dt.
func formatStats(d hal.Stats, dt time.Duration) string {
	dts := float64(dt.Milliseconds()) / 1000
	return fmt.Sprintf("Stats for the last %s - "+
		"routes %d (%d reroutes, %d resets, %d skips, %d keeps) ; "+
		"OUT: %8s (%7sB/sec) ; IN: %8s (%7sB/sec) ; "+
		"errors %d backend / %d transport",
		dt.Round(time.Millisecond),
		d.Routes, d.Reroutes, d.Resets, d.Skips, d.Keeps,
		hbytes(d.BytesWritten), hrate(float64(d.BytesWritten)/dts),
		hbytes(d.BytesRead), hrate(float64(d.BytesRead)/dts),
		d.BackendErrors, d.TransportErrors)
}

// runReportStatsLoop logs the activity of the device every reportInterval.
func runReportStatsLoop(ctx context.Context, dev *hal.Device, log slog.Logger,
	reportInterval time.Duration) error {

	if reportInterval <= 0 {
		log.Infof("Logging of stats is disabled")
		return nil
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	var tickTime, lastTick time.Time
	tickTime = time.Now()
	prev := dev.Stats()

	log.Debugf("Running report stats loop with interval %s", reportInterval)
	for {
		lastTick = tickTime

		select {
		case <-ctx.Done():
			return ctx.Err()
		case tickTime = <-ticker.C:
		}

		cur := dev.Stats()
		d := statsDelta(prev, cur)
		prev = cur
		if d == (hal.Stats{}) {
			// Skip if there was no activity.
			continue
		}

		dt := tickTime.Sub(lastTick)
		if dt < time.Millisecond {
			continue
		}
		log.Info(formatStats(d, dt))
	}
}
