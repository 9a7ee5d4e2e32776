package config

import "time"

type Config struct {
	Environment string
	Port        string

	// conflict arbitration window for near-simultaneous edits
	ConflictWindow time.Duration

	// per-room event log cap (ring eviction, oldest first)
	MaxEventHistory int

	// per-room conflict resolution history cap
	MaxConflictHistory int

	// presence records older than this are reclaimed by the reaper
	PresenceStaleTimeout time.Duration

	// how often the idle reaper sweeps rooms
	ReaperInterval time.Duration
}
