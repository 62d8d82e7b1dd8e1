// Package orchestrator runs the wake-word pipeline: source, queue, conditioner, engine,
// detection state machine and event channel.
package orchestrator

import "time"

// Orchestrator constants
const (
	// Channels reported in the listening milestone; capture is always mono.
	Channels = 1

	// Bound on engine close during shutdown
	CloseTimeout = 2 * time.Second

	// Fallbacks when the config leaves an interval unset
	DefaultPopTimeout        = 100 * time.Millisecond
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReportInterval    = time.Second
)
