package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProgressTracker(t *testing.T) {
	// When: creating a new tracker
	tracker := NewProgressTracker()

	// Then: starts at StageScanning with zero progress
	stats := tracker.Stats()
	assert.Equal(t, StageScanning, stats.Stage)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 0, stats.Total)
}

func TestProgressTracker_SetStage(t *testing.T) {
	// Given: a tracker with progress in one stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageScanning, 50)
	tracker.Update(25, "notes/anova.md")

	// When: transitioning to the next stage
	tracker.SetStage(StageChunking, 100)

	// Then: per-stage state resets
	stats := tracker.Stats()
	assert.Equal(t, StageChunking, stats.Stage)
	assert.Equal(t, 100, stats.Total)
	assert.Equal(t, 0, stats.Current)
	assert.Empty(t, stats.CurrentFile)
}

func TestProgressTracker_Update(t *testing.T) {
	// Given: a tracker in chunking stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageChunking, 100)

	// When: updating progress
	tracker.Update(50, "notes/t-test.md")

	// Then: current and file are updated
	stats := tracker.Stats()
	assert.Equal(t, 50, stats.Current)
	assert.Equal(t, "notes/t-test.md", stats.CurrentFile)
}

func TestProgressTracker_Update_KeepsLastFile(t *testing.T) {
	// Given: a tracker with a current file
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 10)
	tracker.Update(1, "notes/t-test.md")

	// When: updating without a file
	tracker.Update(2, "")

	// Then: the previous file is still shown
	assert.Equal(t, "notes/t-test.md", tracker.Stats().CurrentFile)
}

func TestProgressTracker_Progress_Percentage(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		expected float64
	}{
		{"zero total", 0, 0, 0.0},
		{"zero current", 0, 100, 0.0},
		{"half done", 50, 100, 0.5},
		{"complete", 100, 100, 1.0},
		{"over 100%", 150, 100, 1.0}, // Capped at 1.0
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewProgressTracker()
			tracker.SetStage(StageScanning, tt.total)
			tracker.Update(tt.current, "")

			assert.InDelta(t, tt.expected, tracker.Progress(), 0.01)
		})
	}
}

func TestProgressTracker_AddError(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: adding an error and a warning
	tracker.AddError(ErrorEvent{File: "broken.md", Err: assert.AnError})
	tracker.AddError(ErrorEvent{File: "huge.md", Err: assert.AnError, IsWarn: true})

	// Then: counts and copies reflect both
	stats := tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
	assert.Len(t, tracker.Errors(), 1)
	assert.Len(t, tracker.Warnings(), 1)
	assert.Equal(t, "broken.md", tracker.Errors()[0].File)
}

func TestProgressTracker_ETA_ZeroWithoutProgress(t *testing.T) {
	// Given: a tracker with no progress yet
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)

	// Then: no ETA can be estimated
	assert.Zero(t, tracker.ETA())
}

func TestProgressTracker_ETA_ZeroWhenDone(t *testing.T) {
	// Given: a finished stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)
	tracker.Update(100, "")

	// Then: ETA is zero
	assert.Zero(t, tracker.ETA())
}

func TestProgressTracker_ETA_PositiveMidStage(t *testing.T) {
	// Given: a stage half done after measurable elapsed time
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)
	time.Sleep(20 * time.Millisecond)
	tracker.Update(50, "")

	// When: estimating twice
	first := tracker.ETA()
	second := tracker.ETA()

	// Then: both estimates are positive
	assert.Greater(t, first, time.Duration(0))
	assert.Greater(t, second, time.Duration(0))
}

func TestProgressTracker_Elapsed(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: time passes
	time.Sleep(10 * time.Millisecond)

	// Then: elapsed grows
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}

func TestProgressTracker_RenderSparkline_Width(t *testing.T) {
	// Given: a fresh tracker
	tracker := NewProgressTracker()

	// When: rendering the sparkline
	spark := tracker.RenderSparkline(20)

	// Then: output fits the requested width
	assert.Len(t, []rune(spark), 20)
}

func TestProgressTracker_ThreadSafe(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 1000)

	// When: concurrent updates and reads
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Update(n*10, "note.md")
			tracker.AddError(ErrorEvent{Err: assert.AnError, IsWarn: n%2 == 0})
			_ = tracker.Stats()
			_ = tracker.Progress()
			_ = tracker.ETA()
		}(i)
	}
	wg.Wait()

	// Then: no race, all events recorded
	stats := tracker.Stats()
	assert.Equal(t, 10, stats.ErrorCount+stats.WarnCount)
}

func TestSpeedMeter_Observe(t *testing.T) {
	// Given: a meter anchored at a known time
	base := time.Now()
	m := speedMeter{lastCalc: base}

	// When: observing 100 items after one second
	speed, sampled := m.observe(100, base.Add(time.Second))

	// Then: speed is 100/sec
	assert.True(t, sampled)
	assert.InDelta(t, 100.0, speed, 0.1)
	assert.InDelta(t, 100.0, m.avg, 0.1)
	assert.InDelta(t, 100.0, m.peak, 0.1)
}

func TestSpeedMeter_Observe_TooSoon(t *testing.T) {
	// Given: a meter anchored at a known time
	base := time.Now()
	m := speedMeter{lastCalc: base}

	// When: observing before the sample interval elapses
	_, sampled := m.observe(100, base.Add(100*time.Millisecond))

	// Then: no sample is taken
	assert.False(t, sampled)
}

func TestSpeedMeter_Observe_RollingAverage(t *testing.T) {
	// Given: a meter with one sample at 100/sec
	base := time.Now()
	m := speedMeter{lastCalc: base}
	_, _ = m.observe(100, base.Add(time.Second))

	// When: a second sample arrives at 200/sec
	speed, sampled := m.observe(300, base.Add(2*time.Second))

	// Then: average is weighted 0.2 new, 0.8 old
	assert.True(t, sampled)
	assert.InDelta(t, 200.0, speed, 0.1)
	assert.InDelta(t, 0.2*200+0.8*100, m.avg, 0.1)
	assert.InDelta(t, 200.0, m.peak, 0.1)
}

func TestSpeedMeter_Observe_NoBackwardsProgress(t *testing.T) {
	// Given: a meter with an observed position
	base := time.Now()
	m := speedMeter{lastCalc: base}
	_, _ = m.observe(100, base.Add(time.Second))

	// When: the counter does not advance
	_, sampled := m.observe(100, base.Add(2*time.Second))

	// Then: no sample is recorded
	assert.False(t, sampled)
}
