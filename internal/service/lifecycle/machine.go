// Package lifecycle holds the signal state machine: a total transition
// function from one tick's observations to a status.
package lifecycle

import (
	"time"

	"SigTrack/internal/domain/models"
)

// DefaultInvalidThreshold is the number of consecutive invalid ticks after
// which a signal is pruned.
const DefaultInvalidThreshold = 2

// PruneReason is archived with every pruned signal.
const PruneReason = "Sem preço ao vivo/erro de validação após múltiplas tentativas"

// Phase locates now relative to a signal's window.
type Phase int

const (
	Before Phase = iota // now < start
	Open                // start <= now < end
	Closed              // now >= end
)

func (p Phase) String() string {
	switch p {
	case Before:
		return "before"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// PhaseOf places now against the window [start, end).
func PhaseOf(now, start, end time.Time) Phase {
	switch {
	case now.Before(start):
		return Before
	case now.Before(end):
		return Open
	default:
		return Closed
	}
}

// Observation is everything the machine needs for one signal in one tick.
// InvalidStreak counts consecutive invalid ticks including the current one.
type Observation struct {
	Valid         bool
	InvalidStreak int
	Threshold     int
	Phase         Phase
	EntryHit      bool
	HitTarget     bool
	HitStop       bool
}

// Decide returns the status for obs. Level flags only matter once the
// window has closed; while Open they are informational.
func Decide(obs Observation) models.Status {
	if !obs.Valid {
		threshold := obs.Threshold
		if threshold <= 0 {
			threshold = DefaultInvalidThreshold
		}
		if obs.InvalidStreak >= threshold {
			return models.StatusInvalidRemoved
		}
		return models.StatusConfigInvalid
	}
	switch obs.Phase {
	case Before:
		return models.StatusScheduled
	case Open:
		if obs.EntryHit {
			return models.StatusLive
		}
		return models.StatusArmed
	default:
		switch {
		case !obs.EntryHit:
			return models.StatusTimeoutNoEntry
		case obs.HitStop:
			return models.StatusStopHit
		case obs.HitTarget:
			return models.StatusTargetHit
		default:
			return models.StatusTimeout
		}
	}
}

// NeedsEntryScan reports whether the entry scan has to run for obs's phase.
func NeedsEntryScan(p Phase) bool { return p != Before }

// NeedsLevelScan reports whether target/stop must be scanned once the entry
// state is known.
func NeedsLevelScan(p Phase, entryHit bool) bool { return entryHit && p != Before }
