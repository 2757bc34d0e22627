package ui

import "strings"

// sparkChars are the block characters for a sparkline, from empty to
// full height.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps a ring buffer of throughput samples and renders them
// as a block-character chart.
type Sparkline struct {
	samples []float64
	width   int
	head    int
	count   int
	max     float64
}

// NewSparkline creates a sparkline holding width samples.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{
		samples: make([]float64, width),
		width:   width,
	}
}

// Add appends a sample, evicting the oldest when the buffer is full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % s.width
	s.count++

	if value > s.max {
		s.max = value
	}
	// The evicted sample may have been the max, so rescan once per lap.
	if s.count%s.width == 0 {
		s.rescanMax()
	}
}

func (s *Sparkline) rescanMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	if s.max < 1 {
		s.max = 1
	}
}

// Render returns the chart at the sparkline's native width.
func (s *Sparkline) Render() string {
	return s.RenderWithWidth(s.width)
}

// RenderWithWidth returns the most recent samples fitted to the given
// width, padding with spaces while the buffer is filling.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width > s.width {
		width = s.width
	}
	if s.count == 0 {
		return strings.Repeat(string(sparkChars[0]), width)
	}
	if s.max <= 0 {
		s.rescanMax()
	}

	filled := s.count
	if filled > s.width {
		filled = s.width
	}

	// Oldest retained sample position.
	start := 0
	if s.count >= s.width {
		start = s.head
	}
	// Show only the newest samples when the display is narrower than
	// the buffer.
	skip := 0
	if filled > width {
		skip = filled - width
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	rendered := 0
	for i := skip; i < filled && rendered < width; i++ {
		value := s.samples[(start+i)%s.width]
		sb.WriteRune(sparkChars[s.level(value)])
		rendered++
	}
	for rendered < width {
		sb.WriteRune(' ')
		rendered++
	}
	return sb.String()
}

// level maps a value to a block character index.
func (s *Sparkline) level(value float64) int {
	if s.max <= 0 {
		return 0
	}
	idx := int(value / s.max * float64(len(sparkChars)-1))
	if idx < 0 {
		return 0
	}
	if idx >= len(sparkChars) {
		return len(sparkChars) - 1
	}
	return idx
}

// Clear resets the sparkline to empty.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns how many samples were ever added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the current scaling maximum.
func (s *Sparkline) Max() float64 {
	return s.max
}
