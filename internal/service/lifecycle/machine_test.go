package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SigTrack/internal/domain/models"
)

func TestPhaseOf(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	assert.Equal(t, Before, PhaseOf(start.Add(-time.Second), start, end))
	assert.Equal(t, Open, PhaseOf(start, start, end))
	assert.Equal(t, Open, PhaseOf(end.Add(-time.Nanosecond), start, end))
	assert.Equal(t, Closed, PhaseOf(end, start, end))
	assert.Equal(t, Closed, PhaseOf(end.Add(time.Hour), start, end))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		obs  Observation
		want models.Status
	}{
		{"invalid first tick", Observation{Valid: false, InvalidStreak: 1, Threshold: 2}, models.StatusConfigInvalid},
		{"invalid at threshold", Observation{Valid: false, InvalidStreak: 2, Threshold: 2}, models.StatusInvalidRemoved},
		{"invalid default threshold", Observation{Valid: false, InvalidStreak: 2}, models.StatusInvalidRemoved},
		{"invalid ignores phase", Observation{Valid: false, InvalidStreak: 1, Phase: Closed, EntryHit: true, HitTarget: true}, models.StatusConfigInvalid},
		{"before window", Observation{Valid: true, Phase: Before}, models.StatusScheduled},
		{"open no entry", Observation{Valid: true, Phase: Open}, models.StatusArmed},
		{"open entry", Observation{Valid: true, Phase: Open, EntryHit: true}, models.StatusLive},
		{"open entry target informational", Observation{Valid: true, Phase: Open, EntryHit: true, HitTarget: true}, models.StatusLive},
		{"closed no entry", Observation{Valid: true, Phase: Closed}, models.StatusTimeoutNoEntry},
		{"closed stop", Observation{Valid: true, Phase: Closed, EntryHit: true, HitStop: true}, models.StatusStopHit},
		{"closed target", Observation{Valid: true, Phase: Closed, EntryHit: true, HitTarget: true}, models.StatusTargetHit},
		{"closed both flags stop wins", Observation{Valid: true, Phase: Closed, EntryHit: true, HitTarget: true, HitStop: true}, models.StatusStopHit},
		{"closed open levels", Observation{Valid: true, Phase: Closed, EntryHit: true}, models.StatusTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.obs))
		})
	}
}

func TestScanNeeds(t *testing.T) {
	assert.False(t, NeedsEntryScan(Before))
	assert.True(t, NeedsEntryScan(Open))
	assert.True(t, NeedsEntryScan(Closed))
	assert.False(t, NeedsLevelScan(Open, false))
	assert.True(t, NeedsLevelScan(Closed, true))
}
