package orchestrator

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/GriffinCanCode/wake-listener/internal/events"
)

func (m *Manager) heartbeatLoop(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.clock.Now()
			m.emit(events.Heartbeat(now, events.HeartbeatData{
				UptimeSeconds:   m.state.Uptime(now).Seconds(),
				DetectionsCount: m.state.Detections(),
				AvgConfidence:   m.state.scores.Stats().Average,
			}))
		}
	}
}

// confidenceLoop summarises the rolling buffer; an empty buffer produces no report.
func (m *Manager) confidenceLoop(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.state.scores.Stats()
			if stats.Count == 0 {
				continue
			}
			m.emit(events.Confidence(m.clock.Now(), events.ConfidenceData{
				Average:     stats.Average,
				Maximum:     stats.Maximum,
				SampleCount: stats.Count,
			}))
		}
	}
}
