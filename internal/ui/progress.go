package ui

import (
	"sync"
	"time"
)

// etaSmoothing is the weight given to the newest ETA estimate. Batch
// embedding times vary a lot, so raw estimates swing wildly.
const etaSmoothing = 0.3

// speedSampleInterval is the minimum gap between speed recalculations.
const speedSampleInterval = 500 * time.Millisecond

// ProgressTracker accumulates progress state across build stages. Safe
// for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent
	lastETA     time.Duration
	speed       speedMeter
	sparkline   *Sparkline
}

// speedMeter derives items/sec from progress deltas.
type speedMeter struct {
	lastCurrent int
	lastCalc    time.Time
	current     float64
	avg         float64
	peak        float64
	samples     int
}

// observe updates the meter when enough time has passed since the last
// sample. It returns the new speed and whether a sample was taken.
func (m *speedMeter) observe(current int, now time.Time) (float64, bool) {
	elapsed := now.Sub(m.lastCalc)
	if elapsed < speedSampleInterval {
		return 0, false
	}
	delta := current - m.lastCurrent
	m.lastCurrent = current
	m.lastCalc = now
	if delta <= 0 {
		return 0, false
	}

	speed := float64(delta) / elapsed.Seconds()
	m.current = speed
	m.samples++
	if m.samples == 1 {
		m.avg = speed
	} else {
		m.avg = 0.2*speed + 0.8*m.avg
	}
	if speed > m.peak {
		m.peak = speed
	}
	return speed, true
}

func (m *speedMeter) reset(now time.Time) {
	*m = speedMeter{lastCalc: now}
}

// SpeedStats is a snapshot of throughput metrics.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of tracker state for rendering.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// NewProgressTracker creates a tracker starting at the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startTime:  now,
		stageStart: now,
		speed:      speedMeter{lastCalc: now},
		sparkline:  NewSparkline(60),
	}
}

// SetStage transitions to a new stage and resets per-stage state.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
	p.lastETA = 0
	p.speed.reset(p.stageStart)
	p.sparkline.Clear()
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}
	if speed, sampled := p.speed.observe(current, time.Now()); sampled {
		p.sparkline.Add(speed)
	}
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Progress returns completion in the range 0 to 1.
func (p *ProgressTracker) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progressLocked()
}

func (p *ProgressTracker) progressLocked() float64 {
	if p.total == 0 {
		return 0
	}
	progress := float64(p.current) / float64(p.total)
	if progress > 1 {
		return 1
	}
	return progress
}

// ETA estimates remaining stage time. Takes the write lock because the
// smoothing state advances on every call.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.etaLocked()
}

func (p *ProgressTracker) etaLocked() time.Duration {
	if p.current == 0 || p.total == 0 {
		return 0
	}
	progress := float64(p.current) / float64(p.total)
	if progress <= 0 || progress >= 1 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	smoothed := time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}

// Elapsed returns time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.startTime)
}

// Stats returns a full snapshot for rendering.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    p.progressLocked(),
		ETA:         p.etaLocked(),
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed: SpeedStats{
			Current: p.speed.current,
			Avg:     p.speed.avg,
			Peak:    p.speed.peak,
		},
	}
}

// SpeedStats returns the current throughput metrics.
func (p *ProgressTracker) SpeedStats() SpeedStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return SpeedStats{
		Current: p.speed.current,
		Avg:     p.speed.avg,
		Peak:    p.speed.peak,
	}
}

// Errors returns a copy of the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ErrorEvent, len(p.errors))
	copy(out, p.errors)
	return out
}

// Warnings returns a copy of the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ErrorEvent, len(p.warnings))
	copy(out, p.warnings)
	return out
}

// RenderSparkline renders the throughput chart at the given width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sparkline == nil {
		return ""
	}
	return p.sparkline.RenderWithWidth(width)
}
