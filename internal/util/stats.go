package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide session and traffic counter.
var Stats = &stats{}

type stats struct {
	OpenedSessions atomic.Int64 // sessions accepted since process start
	ClosedSessions atomic.Int64 // sessions ended since process start
	Upstream       atomic.Int64 // wire bytes read from clients
	Downstream     atomic.Int64 // wire bytes read from servers
	Packets        atomic.Int64 // packets decoded in either direction
}

func (s *stats) AddSession()         { s.OpenedSessions.Add(1) }
func (s *stats) RemoveSession()      { s.ClosedSessions.Add(1) }
func (s *stats) AddUpstream(n int)   { s.Upstream.Add(int64(n)) }
func (s *stats) AddDownstream(n int) { s.Downstream.Add(int64(n)) }
func (s *stats) AddPacket()          { s.Packets.Add(1) }

// Active returns the number of sessions currently open.
func (s *stats) Active() int64 {
	return s.OpenedSessions.Load() - s.ClosedSessions.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs proxy statistics every
// 10 seconds while there is something to report. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevUp, prevDown, prevOpened, prevClosed, prevPackets int64
		for {
			select {
			case <-ticker.C:
				opened := Stats.OpenedSessions.Load()
				closed := Stats.ClosedSessions.Load()
				up := Stats.Upstream.Load()
				down := Stats.Downstream.Load()
				packets := Stats.Packets.Load()

				secs := reportInterval.Seconds()
				upS := float64(up-prevUp) / secs
				downS := float64(down-prevDown) / secs
				pktS := float64(packets-prevPackets) / secs

				if opened != prevOpened || closed != prevClosed || Stats.Active() > 0 {
					pterm.DefaultLogger.Info(formatStats(upS, downS, pktS, opened-prevOpened, closed-prevClosed, Stats.Active()))
				}

				prevUp, prevDown = up, down
				prevOpened, prevClosed = opened, closed
				prevPackets = packets

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders one reporter line.
func formatStats(upS, downS, pktS float64, opened, closed, active int64) string {
	return fmt.Sprintf("C->S: %s/s | S->C: %s/s | %6.1f pkt/s | Sessions: %d active, %d↑ %d↓",
		formatBytes(upS),
		formatBytes(downS),
		pktS,
		active,
		opened,
		closed,
	)
}
