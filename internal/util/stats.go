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

// Stats is the process-wide traffic/session counter.
var Stats = &stats{}

type stats struct {
	TotalSessions  atomic.Int64 // cumulative count of data sessions since process start
	ClosedSessions atomic.Int64 // cumulative count of closed data sessions since process start
	BytesSent      atomic.Int64 // cumulative bytes written to the relay
	BytesRecv      atomic.Int64 // cumulative bytes read from the relay
}

func (s *stats) AddSession()    { s.TotalSessions.Add(1) }
func (s *stats) RemoveSession() { s.ClosedSessions.Add(1) }
func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)  { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs relay statistics
// every 10 seconds. It stops when ctx is cancelled. Quiet intervals
// (no session churn, negligible traffic) are not logged.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevTotal, prevClosed int64
		for {
			select {
			case <-ticker.C:
				total := Stats.TotalSessions.Load()
				closed := Stats.ClosedSessions.Load()
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0
				opened := total - prevTotal
				done := closed - prevClosed

				if opened > 0 || done > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, opened, done))
				}

				prevSent = sent
				prevRecv = recv
				prevTotal = total
				prevClosed = closed

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
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, opened, done int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Sess: %2d↑ %2d↓",
		formatBytes(inS),
		formatBytes(outS),
		opened,
		done,
	)
}
